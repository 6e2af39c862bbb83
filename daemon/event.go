// Package daemon implements the event daemon (spec §4.9): it consumes
// kernel process-lifecycle events, consults the unchanged-pid registry,
// and drives a classifier to move pids into their configured cgroups.
package daemon

// Kind enumerates the proc-connector event variants the daemon acts on;
// all others are ignored at the source.
type Kind int

const (
	KindUID Kind = iota
	KindGID
	KindFork
	KindExit
	KindExec
)

func (k Kind) String() string {
	switch k {
	case KindUID:
		return "uid"
	case KindGID:
		return "gid"
	case KindFork:
		return "fork"
	case KindExit:
		return "exit"
	case KindExec:
		return "exec"
	default:
		return "unknown"
	}
}

// Event is the daemon's normalized view of a proc-connector message,
// already stripped of the netlink/connector framing.
type Event struct {
	Kind Kind

	// PID is the subject pid for UID/GID/EXIT/EXEC events.
	PID int
	// ParentPID/ChildPID are populated for KindFork; all other kinds
	// leave them zero.
	ParentPID int
	ChildPID  int

	// TimestampNS is the kernel's monotonic event timestamp, used to
	// decide whether a fork happened during an in-flight reclassification
	// of its parent (spec §4.9, §8 scenario 6).
	TimestampNS uint64
}

// Source yields proc-connector events one at a time. The production
// implementation wraps a NETLINK_CONNECTOR socket (see netlink.go); tests
// substitute a fake that replays a fixed slice of events.
type Source interface {
	Next() (Event, error)
	Close() error
}
