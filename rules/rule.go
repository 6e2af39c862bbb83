// Package rules implements the rule store: a line-grammar parser plus an
// ordered, atomically-reloadable Rule list (spec §4.6).
package rules

import (
	"github.com/hashicorp/go-set/v3"
)

// Identity sentinels for Rule.UID/Rule.GID.
const (
	// AnyID marks a rule matching every uid/gid ('*' in the rule text).
	AnyID = -1
	// NoID marks a field absent from the rule text (e.g. GID unset
	// because only a UID was given).
	NoID = -2
)

// MaxControllers caps a single rule's controller list, mirroring
// MAX_MNT_ELEMENTS (spec §3, §4.6).
const MaxControllers = 32

// Rule is one parsed line (or continuation) from a rules configuration
// (spec §3 Rule, §4.6).
type Rule struct {
	// UID/GID hold a resolved numeric id, AnyID, or NoID. Group holds the
	// group name for an "@groupname" user field (UID/GID are NoID in
	// that case; the matcher resolves group membership at match time).
	// UserName holds a bare user-name field's literal text when the
	// parser could not resolve it to a numeric uid itself; the matcher
	// resolves it against os/user at match time.
	UID, GID int
	Group    string
	UserName string

	// Procname is the optional process-name glob. A trailing "*" marks a
	// prefix match (HasWildcard); bare "*" matches everything.
	Procname     string
	HasWildcard  bool

	Dest        string
	Controllers *set.Set[string]
	Ignore      bool

	// Continuation marks a "%" line: matches using the preceding head
	// rule's identity/procname, but lists its own destination and
	// controllers.
	Continuation bool
}

// IsHead reports whether r begins a new identity match (the common case;
// false only for "%" continuation lines).
func (r *Rule) IsHead() bool { return !r.Continuation }
