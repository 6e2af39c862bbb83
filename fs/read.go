package fs

import (
	"os"
	"sort"
	"strings"
	"syscall"

	"github.com/libcgroup/libcgroup-sub000/cgerrors"
	"github.com/libcgroup/libcgroup-sub000/group"
	"github.com/libcgroup/libcgroup-sub000/mount"
	"github.com/opencontainers/cgroups/fscommon"
)

// maxSettingRead bounds a single control-file read (spec §4.4.4 step 2).
const maxSettingRead = 4096

// Read populates g (which must already carry g.Name) from disk for every
// controller named on g, or every mounted controller if g carries none
// (spec §4.4.4).
func (d *Driver) Read(g *group.Group) error {
	explicit := g.ControllerNames() // empty means "caller asked for all mounted"
	names := explicit.Copy()
	if names.Empty() {
		for _, e := range d.lib.Mounts.All() {
			names.Insert(e.Name)
		}
	}

	reachable := 0
	for _, name := range names.Slice() {
		entry := d.lib.Mounts.Lookup(name)
		if entry == nil {
			continue
		}
		target := d.lib.Paths.Build(g.Name, name, "")
		if target == "" {
			continue
		}
		if entry.Version == mount.V2 && !explicit.Contains(name) {
			if !d.subtreeEnabled(d.parentOf(target), name) && !d.rootEnabled(entry.Canonical(), name) {
				continue
			}
		}
		c := g.AddController(name)
		if err := d.readController(target, c); err != nil {
			continue
		}
		if entry.Version == mount.V1 {
			d.captureTasksOwnership(target, g)
		}
		reachable++
	}

	if reachable == 0 {
		return cgerrors.New(cgerrors.NotFound, op+".Read", "no controllers reachable for group "+g.Name)
	}
	return nil
}

func (d *Driver) parentOf(dir string) string {
	return strings.TrimSuffix(dir, "/") + "/.."
}

func (d *Driver) subtreeEnabled(parentDir, controller string) bool {
	b, err := os.ReadFile(parentDir + "/cgroup.subtree_control")
	if err != nil {
		return false
	}
	for _, f := range strings.Fields(string(b)) {
		if f == controller {
			return true
		}
	}
	return false
}

func (d *Driver) rootEnabled(v2root, controller string) bool {
	return d.subtreeEnabled(v2root, controller)
}

func (d *Driver) readController(dir string, c *group.Controller) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return cgerrors.Wrap(cgerrors.OsError, op+".Read", "readdir failed", err)
	}

	prefix := c.Name + "."
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		v, err := fscommon.ReadFile(dir, name)
		if err != nil {
			continue
		}
		if len(v) > maxSettingRead {
			v = v[:maxSettingRead]
		}
		s := c.AddSetting(name, strings.TrimRight(v, "\n"))
		s.Dirty = false
	}

	reorderMemorySettings(c)
	return nil
}

// reorderMemorySettings ensures memory.limit_in_bytes precedes
// memory.memsw.limit_in_bytes: the kernel rejects a swap limit lower than
// the memory limit, so writers must apply them in this order (spec
// §4.4.4 step 4).
func reorderMemorySettings(c *group.Controller) {
	if c.Name != "memory" {
		return
	}
	idx := func(name string) int {
		for i, s := range c.Settings {
			if s.Name == name {
				return i
			}
		}
		return -1
	}
	li := idx("memory.limit_in_bytes")
	si := idx("memory.memsw.limit_in_bytes")
	if li >= 0 && si >= 0 && si < li {
		c.Settings[li], c.Settings[si] = c.Settings[si], c.Settings[li]
	}
}

func (d *Driver) captureTasksOwnership(dir string, g *group.Group) {
	var st syscall.Stat_t
	if err := syscall.Stat(dir+"/"+TasksFile, &st); err != nil {
		return
	}
	g.ControlUID = int(st.Uid)
	g.ControlGID = int(st.Gid)
}

// ReadAll reads every mounted controller's settings for groupName in one
// call, grounded on cgsnapshot.c's walk-all-controllers loop (spec
// supplement, SPEC_FULL.md §C.6). Used by diagnostics and tests.
func (d *Driver) ReadAll(groupName string) (*group.Group, error) {
	g := group.New(groupName)
	if err := d.Read(g); err != nil {
		return nil, err
	}
	sort.Slice(g.Controllers, func(i, j int) bool {
		return g.Controllers[i].Name < g.Controllers[j].Name
	})
	return g, nil
}
