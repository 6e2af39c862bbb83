// Package mount discovers how the kernel has exposed cgroup hierarchies to
// userspace and maintains the process-wide table mapping controller names
// to mount points and versions (spec §3, §4.1).
package mount

import (
	"sync"
)

// MaxMountEntries is the fixed capacity of a MountTable (spec §3).
const MaxMountEntries = 100

// Version tags a MountEntry with the on-disk cgroup version it was
// discovered under.
type Version int

const (
	Unknown Version = iota
	V1
	V2
	Disk // on-disk v1 or v2 as actually mounted; used by the abstraction layer
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	case Disk:
		return "disk"
	default:
		return "unknown"
	}
}

// SetupMode describes the overall cgroup deployment detected on the host,
// derived from the mount table plus the empty-v2-mounts list.
type SetupMode int

const (
	ModeUnavailable SetupMode = iota
	ModeLegacy                // v1 only
	ModeUnified                // v2 only
	ModeHybrid                 // both present
)

func (m SetupMode) String() string {
	switch m {
	case ModeLegacy:
		return "legacy"
	case ModeUnified:
		return "unified"
	case ModeHybrid:
		return "hybrid"
	default:
		return "unavailable"
	}
}

// Entry is a single controller's mount record (spec §3 MountEntry).
// Name may carry a "name=" prefix for v1 named hierarchies.
type Entry struct {
	Name    string
	Mounts  []string // first entry is canonical; rest are bind-mount aliases
	Version Version
	Shared  bool // true when two or more controllers share this directory
}

// Canonical returns the entry's primary mount path, or "" if the entry has
// no mounts (which should never happen for an entry actually in a Table).
func (e *Entry) Canonical() string {
	if len(e.Mounts) == 0 {
		return ""
	}
	return e.Mounts[0]
}

// Table is the process-wide ordered container of mount entries, guarded by
// a readers-writer lock so readers (path builder, fs driver) never observe
// a half-rebuilt table during re-init (spec §5).
type Table struct {
	mu       sync.RWMutex
	entries  []*Entry          // insertion order, stable except across re-init
	empty    []string          // cgroup2 mounts with no controllers enabled
	setup    SetupMode
}

// NewTable returns an empty table. Tables are normally built by Probe, but
// tests may populate one directly via Insert.
func NewTable() *Table {
	return &Table{}
}

// Lookup returns the entry for name, or nil if not mounted. Asking for
// "cgroup" matches any V2 synthetic entry (spec §4.2).
func (t *Table) Lookup(name string) *Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// AnyV2 returns the first V2-mounted entry's canonical mount path and true,
// or ("", false) if no v2 controller is mounted.
func (t *Table) AnyV2() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, e := range t.entries {
		if e.Version == V2 {
			return e.Canonical(), true
		}
	}
	return "", false
}

// All returns a snapshot slice of the table's entries in insertion order.
func (t *Table) All() []*Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// EmptyV2Mounts returns the cgroup2 mounts discovered with no controllers
// enabled; these participate in setup-mode detection only.
func (t *Table) EmptyV2Mounts() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.empty))
	copy(out, t.empty)
	return out
}

// Mode reports the detected cgroup setup mode.
func (t *Table) Mode() SetupMode {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.setup
}

// insert adds a mount point to the entry named name, creating the entry if
// it doesn't already exist, or merging the mount point into an existing
// entry's alias list. Duplicate-detection uses name only (spec §4.1.4).
// Caller must hold t.mu for writing.
func (t *Table) insert(name string, mountPoint string, version Version) error {
	for _, e := range t.entries {
		if e.Name == name {
			for _, m := range e.Mounts {
				if m == mountPoint {
					return nil
				}
			}
			e.Mounts = append(e.Mounts, mountPoint)
			return nil
		}
	}
	if len(t.entries) >= MaxMountEntries {
		return errMaxMountEntriesExceeded
	}
	t.entries = append(t.entries, &Entry{
		Name:    name,
		Mounts:  []string{mountPoint},
		Version: version,
	})
	return nil
}

// markShared flags every entry whose canonical mount path equals dir as
// sharing that directory with at least one other controller. Caller must
// hold t.mu for writing.
func (t *Table) markShared(dir string) {
	var atDir []*Entry
	for _, e := range t.entries {
		if e.Canonical() == dir {
			atDir = append(atDir, e)
		}
	}
	if len(atDir) > 1 {
		for _, e := range atDir {
			e.Shared = true
		}
	}
}
