package fs

import (
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
	"github.com/libcgroup/libcgroup-sub000/group"
	"github.com/libcgroup/libcgroup-sub000/mount"
	"github.com/opencontainers/cgroups/fscommon"
)

const op = "fs"

// Create instantiates g's directories (and, for v2, enables the needed
// controllers along the ancestor chain via subtree_control) and writes its
// pending settings. ignoreOwnership skips the recursive chown/chmod pass
// (spec §4.4.1).
//
// Failure is not all-or-nothing: on a write failure the directory tree may
// already exist. Callers should Delete to clean up; a CANT_SET_VALUE-shaped
// error (cgerrors.Conflict) means "directory created, some values failed".
func (d *Driver) Create(g *group.Group, ignoreOwnership bool) error {
	for _, c := range g.Controllers {
		if d.lib.Mounts.Lookup(c.Name) == nil {
			return cgerrors.New(cgerrors.PreconditionFailed, op+".Create", "controller not mounted: "+c.Name)
		}
	}

	if len(g.Controllers) == 0 {
		v2root, ok := d.lib.Mounts.AnyV2()
		if !ok {
			return cgerrors.New(cgerrors.PreconditionFailed, op+".Create", "no v2 mount available for empty-controller group")
		}
		dir := joinPath(v2root, g.Name)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return mapMkdirErr(op+".Create", dir, err)
		}
		return nil
	}

	var settingErrs *multierror.Error

	for _, c := range g.Controllers {
		entry := d.lib.Mounts.Lookup(c.Name)
		target := d.lib.Paths.Build(g.Name, c.Name, "")
		if target == "" {
			return cgerrors.New(cgerrors.NotFound, op+".Create", "no path for controller: "+c.Name)
		}

		if entry.Version == mount.V2 {
			if err := d.enableSubtreeAncestors(entry.Canonical(), target, c.Name); err != nil {
				return err
			}
		}

		if err := os.MkdirAll(target, 0755); err != nil {
			if mapped := mapMkdirErr(op+".Create", target, err); mapped != nil {
				return mapped
			}
		}

		if !ignoreOwnership {
			if err := chownRecursive(target, g.ControlUID, g.ControlGID); err != nil {
				return cgerrors.Wrap(cgerrors.OsError, op+".Create", "chown failed", err)
			}
			if err := chmodTree(target, g.ControlDirMode, g.ControlFileMode, func(name string) bool {
				return name == "tasks"
			}); err != nil {
				return cgerrors.Wrap(cgerrors.OsError, op+".Create", "chmod failed", err)
			}
		}

		if entry.Version == mount.V2 {
			_ = writeIfPresent(target+"/cgroup.subtree_control", "+"+c.Name)
		}

		for _, s := range c.Settings {
			if err := d.writeSetting(target, s); err != nil {
				if s.Dirty {
					return err
				}
				settingErrs = multierror.Append(settingErrs, err)
				d.log.Debug("ignoring non-dirty setting write failure during create", "setting", s.Name, "error", err)
			} else {
				s.Dirty = false
			}
		}

		if entry.Version == mount.V1 {
			if !ignoreOwnership && (g.TasksUID != group.NoUIDGID || g.TasksGID != group.NoUIDGID) {
				_ = os.Chown(target+"/tasks", orInherit(g.TasksUID), orInherit(g.TasksGID))
			}
			if !ignoreOwnership && g.TasksMode != group.NoPerms {
				_ = os.Chmod(target+"/tasks", os.FileMode(g.TasksMode))
			}
		}
	}

	if settingErrs.ErrorOrNil() != nil && settingErrs.Len() > 0 {
		return cgerrors.Wrap(cgerrors.Conflict, op+".Create", "directory created, some values failed", settingErrs)
	}
	return nil
}

// enableSubtreeAncestors walks every path segment from the v2 root down to
// the parent of target, writing "+controller" to cgroup.subtree_control at
// each level so the leaf may use it (spec §4.4.1 step b). Delegation is
// strictly top-down: a controller only shows up in a child's
// cgroup.controllers once its parent's subtree_control lists it, so the
// root is enabled first and each level below depends on the one above
// having succeeded (original_source's cgroupv2_subtree_control_recursive
// enables root to leaf in that order).
func (d *Driver) enableSubtreeAncestors(v2root, target, controller string) error {
	rel := strings.TrimPrefix(strings.TrimPrefix(target, v2root), "/")
	if rel == "" {
		return nil
	}

	if err := writeIfPresent(v2root+"/cgroup.subtree_control", "+"+controller); err != nil {
		return cgerrors.Wrap(cgerrors.OsError, op+".Create", "enabling "+controller+" at "+v2root, err)
	}

	segs := strings.Split(strings.Trim(rel, "/"), "/")
	cur := v2root
	// walk down to (but not including) the leaf itself: every ancestor,
	// i.e. all segments except the last.
	for i := 0; i < len(segs)-1; i++ {
		cur = cur + "/" + segs[i]
		if err := os.MkdirAll(cur, 0755); err != nil {
			if mapped := mapMkdirErr(op+".Create", cur, err); mapped != nil {
				return mapped
			}
		}
		if err := writeIfPresent(cur+"/cgroup.subtree_control", "+"+controller); err != nil {
			return cgerrors.Wrap(cgerrors.OsError, op+".Create", "enabling "+controller+" at "+cur, err)
		}
	}
	return nil
}

func writeIfPresent(path, value string) error {
	i := strings.LastIndex(path, "/")
	return fscommon.WriteFile(path[:i], path[i+1:], value)
}

func (d *Driver) writeSetting(dir string, s *group.Setting) error {
	path := dir + "/" + s.Name
	if s.MultiLine != nil {
		return mapWriteErr(op+".Modify", dir, writeLines(path, strings.Join(s.MultiLine, "\n"), d.log))
	}
	return mapWriteErr(op+".Modify", dir, writeLines(path, s.Value, d.log))
}

func joinPath(base, group string) string {
	base = strings.TrimSuffix(base, "/")
	group = strings.TrimPrefix(group, "/")
	if group == "" {
		return base + "/"
	}
	return base + "/" + group
}
