package rules

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
)

// ParseLine parses one non-empty, non-comment rule line into a Rule
// (spec §4.6). Blank lines and pure-comment lines should be filtered by
// the caller before reaching ParseLine.
func ParseLine(line string) (*Rule, error) {
	line = stripComment(line)
	if line == "" {
		return nil, cgerrors.New(cgerrors.InvalidInput, "rules.ParseLine", "empty rule line")
	}

	userField, rest, ok := nextField(line)
	if !ok {
		return nil, cgerrors.New(cgerrors.InvalidInput, "rules.ParseLine", "missing user field")
	}

	r := &Rule{}
	if err := parseUserField(r, userField); err != nil {
		return nil, err
	}

	ctrlField, rest, ok := nextField(rest)
	if !ok {
		return nil, cgerrors.New(cgerrors.InvalidInput, "rules.ParseLine", "missing controller list")
	}
	r.Controllers = parseControllerList(ctrlField)

	destField, rest, ok := nextField(rest)
	if !ok {
		return nil, cgerrors.New(cgerrors.InvalidInput, "rules.ParseLine", "missing destination")
	}
	r.Dest = destField

	if optField, _, ok := nextField(rest); ok {
		if err := parseOptions(r, optField); err != nil {
			// "ignore" already took effect on r even though an unknown
			// option follows it (spec §4.6) — the rule is still usable.
			return r, err
		}
	}

	return r, nil
}

// parseUserField handles the "<user>[:<procname>]" grammar: user is a
// name, "@groupname", "*", or "%" (continuation marker).
func parseUserField(r *Rule, field string) error {
	user := field
	if idx := strings.IndexByte(field, ':'); idx >= 0 {
		user = field[:idx]
		proc := field[idx+1:]
		r.Procname = strings.TrimSuffix(proc, "*")
		r.HasWildcard = strings.HasSuffix(proc, "*") || proc == "*"
		if proc == "*" {
			r.Procname = ""
		}
	}

	switch {
	case user == "%":
		r.Continuation = true
		r.UID, r.GID = NoID, NoID
		return nil
	case user == "*":
		r.UID, r.GID = AnyID, AnyID
		return nil
	case strings.HasPrefix(user, "@"):
		r.Group = strings.TrimPrefix(user, "@")
		r.UID, r.GID = NoID, NoID
		return nil
	default:
		if uid, err := strconv.Atoi(user); err == nil {
			r.UID, r.GID = uid, NoID
			return nil
		}
		// A bare name: ParseLine keeps the literal name in UserName, and
		// the matcher resolves it to a uid via os/user at match time.
		r.UID, r.GID = NoID, NoID
		r.UserName = user
		return nil
	}
}

func parseControllerList(field string) *set.Set[string] {
	s := set.New[string](MaxControllers)
	for _, name := range strings.Split(field, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		s.Insert(name)
	}
	return s
}

// parseOptions parses the trailing comma-separated option list. Per spec
// §4.6, an unrecognized option yields an error, but "ignore" is still
// applied if it parsed before the unknown token was reached.
func parseOptions(r *Rule, field string) error {
	var unknown string
	for _, opt := range strings.Split(field, ",") {
		opt = strings.TrimSpace(opt)
		switch opt {
		case "":
			continue
		case "ignore":
			r.Ignore = true
		default:
			if unknown == "" {
				unknown = opt
			}
		}
	}
	if unknown != "" {
		return cgerrors.New(cgerrors.InvalidInput, "rules.ParseLine", "unrecognized rule option: "+unknown)
	}
	return nil
}
