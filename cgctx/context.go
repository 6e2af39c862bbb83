// Package cgctx bundles the process-wide singletons the original library
// kept as globals (mount table, rule list, default-slice prefix) into an
// explicit Library context threaded through the public API, per spec §9
// Design Notes ("implementers in a language without process-globals
// should group these into an explicit Library context"). The daemon holds
// exactly one.
package cgctx

import (
	"github.com/hashicorp/go-hclog"
	"github.com/libcgroup/libcgroup-sub000/mount"
	"github.com/libcgroup/libcgroup-sub000/path"
)

// Library is the per-process (or, in tests, per-instance) handle bundling
// the mount table and path builder that every other component needs.
// The rule list lives in the rules package's own Store, which a daemon
// composes alongside a Library; the two are independent because the rule
// engine is usable against an entirely mocked Library in tests.
type Library struct {
	Log hclog.Logger

	Mounts  *mount.Table
	Paths   *path.Builder
}

// New builds a Library around an already-probed mount table.
func New(log hclog.Logger, mounts *mount.Table) *Library {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Library{
		Log:    log,
		Mounts: mounts,
		Paths:  path.NewBuilder(mounts),
	}
}

// Init (re-)probes the mount table and swaps it into the Library,
// replacing the path builder so subsequent Build calls observe the new
// table. This is the only supported re-init path (spec §3: "rebuilt on
// explicit re-init").
func (l *Library) Init(p *mount.Prober) error {
	t, err := p.Probe()
	if err != nil {
		return err
	}
	l.Mounts = t
	l.Paths = path.NewBuilder(t)
	return nil
}
