// Package path composes filesystem paths for (group, controller[, setting])
// tuples against a mount.Table, honoring namespace prefixes and the
// process-wide default-slice prefix (spec §4.2).
package path

import (
	"strings"
	"sync"

	"github.com/libcgroup/libcgroup-sub000/mount"
)

// FilenameMax mirrors the C library's whole-path length limit
// (FILENAME_MAX) used for deterministic truncation of over-long paths.
const FilenameMax = 4096

// Builder composes cgroup filesystem paths. It holds the process-wide
// default-slice prefix and a per-builder table of per-controller namespace
// prefixes (the original's thread-local namespace table, made explicit
// per Design Notes §9 rather than modeled as a goroutine-local).
type Builder struct {
	table *mount.Table

	mu                sync.RWMutex
	defaultSlice      string
	namespacePrefixes map[string]string
}

// NewBuilder returns a Builder reading mount information from table.
func NewBuilder(table *mount.Table) *Builder {
	return &Builder{
		table:             table,
		namespacePrefixes: make(map[string]string),
	}
}

// SetDefaultSlice sets the process-wide default-slice prefix inserted
// after the mount path unless the group name is an operator override
// (starts with "/" followed by a non-empty segment).
func (b *Builder) SetDefaultSlice(prefix string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaultSlice = prefix
}

// SetNamespacePrefix configures the per-controller namespace prefix
// inserted between the mount path and the group name.
func (b *Builder) SetNamespacePrefix(controller, prefix string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.namespacePrefixes[controller] = prefix
}

// Build composes the absolute path for (group, controller). controller may
// be "" to ask for the generic v2 mount path. setting, if non-empty, is
// appended as the leaf filename.
//
// Returns "" if controller is unknown and non-empty (spec §4.2 "unknown
// controller -> null path").
func (b *Builder) Build(group, controller, setting string) string {
	base, ok := b.base(controller)
	if !ok {
		return ""
	}

	b.mu.RLock()
	nsPrefix := b.namespacePrefixes[controller]
	slice := b.defaultSlice
	b.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString(base)

	if nsPrefix != "" {
		writeSegment(&sb, nsPrefix)
	}

	if slice != "" && !isOperatorOverride(group) {
		writeSegment(&sb, slice)
	}

	if group != "" {
		writeSegment(&sb, group)
	}

	out := sb.String()
	if !strings.HasSuffix(out, "/") {
		out += "/"
	}

	if setting != "" {
		out = strings.TrimSuffix(out, "/") + "/" + setting
	}

	return truncate(out)
}

func (b *Builder) base(controller string) (string, bool) {
	if controller == "" {
		if v2, ok := b.table.AnyV2(); ok {
			return v2, true
		}
		return "", false
	}
	if controller == "cgroup" {
		for _, e := range b.table.All() {
			if e.Version == mount.V2 {
				return e.Canonical(), true
			}
		}
		return "", false
	}
	e := b.table.Lookup(controller)
	if e == nil {
		return "", false
	}
	return e.Canonical(), true
}

// isOperatorOverride reports whether group is an absolute path with a
// non-empty first segment, which overrides the default-slice insertion.
func isOperatorOverride(group string) bool {
	if !strings.HasPrefix(group, "/") {
		return false
	}
	rest := strings.TrimPrefix(group, "/")
	return rest != ""
}

func writeSegment(sb *strings.Builder, seg string) {
	s := sb.String()
	if !strings.HasSuffix(s, "/") {
		sb.WriteString("/")
	}
	sb.WriteString(strings.Trim(seg, "/"))
}

// truncate deterministically truncates an over-long path at FilenameMax,
// matching the original's best-effort (not early-reject) behavior.
func truncate(p string) string {
	if len(p) <= FilenameMax {
		return p
	}
	return p[:FilenameMax]
}
