// Package group implements the in-memory cgroup model: Group, Controller,
// and Setting value objects plus the pure (no I/O) operations on them
// (spec §3, §4.3).
package group

import (
	"github.com/hashicorp/go-set/v3"
)

// MaxControllers and MaxSettings mirror the original's fixed-capacity
// containers (spec §3).
const (
	MaxControllers = 100
	MaxSettings    = 100
)

// NoUIDGID is the sentinel meaning "inherit", distinct from UID/GID 0.
const NoUIDGID = -1

// NoPerms is the sentinel meaning "inherit" for mode fields.
const NoPerms = -1

// Setting is a single (name, value) control-file entry.
type Setting struct {
	Name string
	// Value is the primary value. An empty Value with Dirty=false
	// represents "value unknown, name requested" (read queries use this
	// form).
	Value string
	// MultiLine holds a value spanning more than one line, written as one
	// write(2) per line by the fs driver. Nil when the value is single-line.
	MultiLine []string
	// PrevName disambiguates N-to-1 reverse mappings in the abstraction
	// layer (e.g. which half of cpu.max to emit back as).
	PrevName string
	// Dirty distinguishes values the caller has written from values read
	// back from disk.
	Dirty bool
}

// Controller is an ordered list of Settings under a named controller.
type Controller struct {
	Name     string
	Settings []*Setting
	// Version is the caller-declared intent (V1/V2) or Disk/Unknown,
	// consumed by the abstraction layer. Controller.Version uses the same
	// enum as mount.Version; duplicated here (rather than imported) to
	// keep the model package free of the mount package's filesystem
	// probing concerns.
	Version int
}

// Group is a path-like cgroup name plus its controllers and ownership
// metadata. Groups are value objects: callers construct and own them.
type Group struct {
	Name        string
	Controllers []*Controller

	TasksUID, TasksGID     int
	ControlUID, ControlGID int
	TasksMode              int
	ControlFileMode        int
	ControlDirMode         int
}

// New returns an empty Group named name with inherited ownership/mode.
func New(name string) *Group {
	return &Group{
		Name:            name,
		TasksUID:        NoUIDGID,
		TasksGID:        NoUIDGID,
		ControlUID:      NoUIDGID,
		ControlGID:      NoUIDGID,
		TasksMode:       NoPerms,
		ControlFileMode: NoPerms,
		ControlDirMode:  NoPerms,
	}
}

// AddController appends a new, empty Controller named name and returns it.
// If a controller by that name already exists, it is returned unchanged.
func (g *Group) AddController(name string) *Controller {
	if c := g.GetController(name); c != nil {
		return c
	}
	c := &Controller{Name: name}
	g.Controllers = append(g.Controllers, c)
	return c
}

// GetController returns the named controller, or nil.
func (g *Group) GetController(name string) *Controller {
	for _, c := range g.Controllers {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ControllerNames returns the set of controller names attached to g.
func (g *Group) ControllerNames() *set.Set[string] {
	s := set.New[string](len(g.Controllers))
	for _, c := range g.Controllers {
		s.Insert(c.Name)
	}
	return s
}

// SetPermissions configures directory/control-file/tasks-file modes.
// Pass NoPerms for any field that should inherit.
func (g *Group) SetPermissions(dirMode, controlMode, taskMode int) {
	g.ControlDirMode = dirMode
	g.ControlFileMode = controlMode
	g.TasksMode = taskMode
}

// SetUIDGID configures tasks/control ownership. Pass NoUIDGID for any
// field that should inherit.
func (g *Group) SetUIDGID(taskUID, taskGID, ctlUID, ctlGID int) {
	g.TasksUID = taskUID
	g.TasksGID = taskGID
	g.ControlUID = ctlUID
	g.ControlGID = ctlGID
}

// AddSetting appends (or overwrites) a dirty setting on c.
func (c *Controller) AddSetting(name, value string) *Setting {
	if s := c.GetSetting(name); s != nil {
		s.Value = value
		s.Dirty = true
		return s
	}
	s := &Setting{Name: name, Value: value, Dirty: true}
	c.Settings = append(c.Settings, s)
	return s
}

// RemoveSetting deletes the named setting, if present.
func (c *Controller) RemoveSetting(name string) {
	for i, s := range c.Settings {
		if s.Name == name {
			c.Settings = append(c.Settings[:i], c.Settings[i+1:]...)
			return
		}
	}
}

// GetSetting returns the named setting, or nil.
func (c *Controller) GetSetting(name string) *Setting {
	for _, s := range c.Settings {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Copy deep-clones src into dst, clearing any prior contents of dst.
func Copy(dst, src *Group) {
	dst.Name = src.Name
	dst.TasksUID, dst.TasksGID = src.TasksUID, src.TasksGID
	dst.ControlUID, dst.ControlGID = src.ControlUID, src.ControlGID
	dst.TasksMode = src.TasksMode
	dst.ControlFileMode = src.ControlFileMode
	dst.ControlDirMode = src.ControlDirMode

	dst.Controllers = make([]*Controller, 0, len(src.Controllers))
	for _, sc := range src.Controllers {
		dc := &Controller{Name: sc.Name, Version: sc.Version}
		for _, ss := range sc.Settings {
			ds := &Setting{
				Name:     ss.Name,
				Value:    ss.Value,
				PrevName: ss.PrevName,
				Dirty:    ss.Dirty,
			}
			if ss.MultiLine != nil {
				ds.MultiLine = append([]string(nil), ss.MultiLine...)
			}
			dc.Settings = append(dc.Settings, ds)
		}
		dst.Controllers = append(dst.Controllers, dc)
	}
}

// Diff returns the names of settings present in a but absent, or with a
// different value, in b, per controller. Used by tests to report drift
// between a written and re-read Group.
func Diff(a, b *Group) map[string][]string {
	out := make(map[string][]string)
	for _, ca := range a.Controllers {
		cb := b.GetController(ca.Name)
		var names []string
		for _, sa := range ca.Settings {
			if cb == nil {
				names = append(names, sa.Name)
				continue
			}
			sb := cb.GetSetting(sa.Name)
			if sb == nil || sb.Value != sa.Value {
				names = append(names, sa.Name)
			}
		}
		if len(names) > 0 {
			out[ca.Name] = names
		}
	}
	return out
}
