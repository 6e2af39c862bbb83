// Package registry implements the daemon's unchanged-pid registry (spec
// §4.10): a small in-memory set of pids the daemon must not reclassify,
// optionally extended to their forked children.
package registry

import "sync"

// Flags mirrors the original CGROUP_DAEMON_* bit flags passed over the
// control socket.
type Flags int

const (
	// UnchangeChildren propagates unchanged status to forked children
	// (spec §4.9 FORK handling).
	UnchangeChildren Flags = 1 << iota
)

const initialCapacity = 100

// Registry is the set of pids the daemon currently leaves alone. The
// original grows a flat array by amortized doubling from a capacity of
// 100; a Go map gives the same amortized-O(1) Store/Remove/IsMember
// without hand-rolled growth, so that is what backs this one.
type Registry struct {
	mu      sync.RWMutex
	entries map[int]Flags
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[int]Flags, initialCapacity)}
}

// Store records pid with flags. Idempotent on pid: a second Store for a
// pid already present overwrites its flags rather than duplicating it
// (spec §4.10 "store(pid, flags) (idempotent on pid)").
func (r *Registry) Store(pid int, flags Flags) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[pid] = flags
}

// Remove drops pid from the registry. A no-op if pid is not present.
func (r *Registry) Remove(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, pid)
}

// IsMember reports whether pid is currently registered.
func (r *Registry) IsMember(pid int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[pid]
	return ok
}

// IsChildUnchanged reports whether pid is registered with UnchangeChildren
// set, meaning its forked children should also be left alone (spec §4.10
// "is_child_unchanged(pid) (member AND flags has UNCHANGE_CHILDREN)").
func (r *Registry) IsChildUnchanged(pid int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	flags, ok := r.entries[pid]
	return ok && flags&UnchangeChildren != 0
}
