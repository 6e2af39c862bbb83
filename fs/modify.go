package fs

import (
	"github.com/hashicorp/go-multierror"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
	"github.com/libcgroup/libcgroup-sub000/group"
)

// Modify writes every dirty (or, if ignoreNonDirty is false, every)
// setting on g to disk, clearing the dirty flag on success (spec §4.4.3).
// A non-dirty setting's write is still attempted when ignoreNonDirty is
// set; only its failure is swallowed, matching Create's treatment of
// non-dirty settings.
func (d *Driver) Modify(g *group.Group, ignoreNonDirty bool) error {
	var errs *multierror.Error
	for _, c := range g.Controllers {
		entry := d.lib.Mounts.Lookup(c.Name)
		if entry == nil {
			errs = multierror.Append(errs, cgerrors.New(cgerrors.PreconditionFailed, op+".Modify", "controller not mounted: "+c.Name))
			continue
		}
		target := d.lib.Paths.Build(g.Name, c.Name, "")
		if target == "" {
			continue
		}
		for _, s := range c.Settings {
			if err := d.writeSetting(target, s); err != nil {
				if !s.Dirty && ignoreNonDirty {
					d.log.Debug("ignoring non-dirty setting write failure during modify", "setting", s.Name, "error", err)
					continue
				}
				errs = multierror.Append(errs, err)
				continue
			}
			s.Dirty = false
		}
	}
	return errs.ErrorOrNil()
}
