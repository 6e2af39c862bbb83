package daemon

import (
	"context"
	"errors"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
	"github.com/libcgroup/libcgroup-sub000/classify"
	"github.com/libcgroup/libcgroup-sub000/registry"
)

// Daemon consumes proc-connector events from a Source and drives a
// Classifier, consulting the unchanged-pid Registry at every step (spec
// §4.9). It is single-threaded: Run processes one event at a time and
// never returns until the Source is exhausted, an unrecoverable error
// occurs, or ctx is canceled.
type Daemon struct {
	Log        hclog.Logger
	Source     Source
	Classifier *classify.Classifier
	Registry   *registry.Registry
	Proc       procReader

	parents *parentTracker
}

// New builds a Daemon whose Proc reads the real /proc (NewProcFS); callers
// may replace d.Proc afterwards.
func New(log hclog.Logger, src Source, c *classify.Classifier, reg *registry.Registry) *Daemon {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Daemon{
		Log:        log.Named("daemon"),
		Source:     src,
		Classifier: c,
		Registry:   reg,
		Proc:       NewProcFS(),
		parents:    newParentTracker(),
	}
}

// Run reads events from d.Source until ctx is canceled or the source
// returns an error. It does not close d.Source.
func (d *Daemon) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := d.Source.Next()
		if err != nil {
			return err
		}

		if err := d.handle(ev); err != nil {
			d.Log.Warn("event handling failed", "kind", ev.Kind.String(), "pid", ev.PID, "error", err)
		}
	}
}

func (d *Daemon) handle(ev Event) error {
	switch ev.Kind {
	case KindUID, KindGID, KindExec:
		if d.Registry.IsMember(ev.PID) {
			return nil
		}
		return d.reclassify(ev.PID, ev.TimestampNS)

	case KindFork:
		if d.Registry.IsChildUnchanged(ev.ParentPID) {
			d.Registry.Store(ev.ChildPID, registry.UnchangeChildren)
		}
		if !d.parents.WasChanging(ev.ParentPID, ev.TimestampNS) {
			return nil
		}
		return d.reclassify(ev.ChildPID, ev.TimestampNS)

	case KindExit:
		d.Registry.Remove(ev.PID)
		return nil

	default:
		return nil
	}
}

// reclassify looks up pid's current identity and calls the classifier,
// storing a ParentInfo when the pid has already exited so an in-flight
// fork still gets reclassified (spec §4.9).
func (d *Daemon) reclassify(pid int, timestampNS uint64) error {
	uid, gid, err := d.Proc.UIDGID(pid)
	if errors.Is(err, ErrNoSuchProcess) {
		return nil
	}
	if err != nil {
		return err
	}

	procname, err := d.Proc.Procname(pid)
	if errors.Is(err, ErrNoSuchProcess) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = d.Classifier.Classify(uid, gid, pid, procname, false)
	if err != nil {
		if isGoneProcess(err) {
			// The pid exited mid-classification; record it so a fork
			// racing this call still gets reclassified (spec §4.9).
			d.parents.Store(pid, timestampNS)
			return nil
		}
		return err
	}
	return nil
}

// isGoneProcess reports whether err indicates the target pid no longer
// existed by the time a write was attempted, the Go-driver analogue of
// the original's ESRCH/ENOENT classifier result (spec §4.9).
func isGoneProcess(err error) bool {
	if cgerrors.Is(err, cgerrors.NotFound) {
		return true
	}
	return cgerrors.Is(err, cgerrors.OsError) && errors.Is(err, syscall.ESRCH)
}
