package daemon

import "sync"

// parentTracker records, per pid, the monotonic timestamp at which a
// reclassification attempt raced the process's own exit (spec §4.9: "If
// the classifier reports ESRCH/ENOENT, store a ParentInfo (pid,
// monotonic-now) so any child spawned *during* this call still gets
// reclassified via the FORK path").
//
// WasChanging consumes a matching entry on success (it exists to bridge
// exactly the fork(s) that raced a single reclassification), so the set
// never grows from matched entries; unmatched entries are kept, and
// nothing removes them.
type parentTracker struct {
	mu      sync.Mutex
	entries []parentInfo
}

type parentInfo struct {
	pid       int
	timestamp uint64
}

func newParentTracker() *parentTracker {
	return &parentTracker{}
}

// Store records that pid raced its own exit at timestampNS.
func (t *parentTracker) Store(pid int, timestampNS uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, parentInfo{pid: pid, timestamp: timestampNS})
}

// WasChanging reports whether parentPID has a recent ParentInfo entry
// with a timestamp at or before childTimestampNS (spec §4.9: "if the
// parent has a recent ParentInfo with a timestamp ≤ the fork's
// timestamp, classify the child"). A matching entry is consumed so it
// cannot also satisfy an unrelated, later fork of the same pid.
func (t *parentTracker) WasChanging(parentPID int, childTimestampNS uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.pid == parentPID && e.timestamp <= childTimestampNS {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}
