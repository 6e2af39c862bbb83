package mount

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
)

var errMaxMountEntriesExceeded = cgerrors.New(cgerrors.InvalidInput, "mount.insert", "mount table capacity exceeded")

// hierarchyOpaqueName is the sentinel hierarchy name the kernel uses for a
// v1 hierarchy with no named controllers that this probe should skip.
const hierarchyOpaqueName = "name="

// cgroupControllerName is the synthetic controller name installed for the
// v2 pseudo-controller (cgroup.procs, cgroup.type, ...).
const cgroupControllerName = "cgroup"

// Prober discovers the kernel's exposed cgroup hierarchies. The default
// Prober reads /proc/cgroups and /proc/self/mounts; tests substitute their
// own inputs via ControllersPath, MountsPath and ReadControllerFile.
type Prober struct {
	log hclog.Logger

	// ControllersPath and MountsPath default to the real procfs files;
	// overridable for tests.
	ControllersPath string
	MountsPath      string

	// ReadControllerFile reads a file inside a cgroup2 mount (used to read
	// cgroup.controllers); overridable for tests that don't have a real
	// filesystem to probe.
	ReadControllerFile func(dir string) (string, error)
}

// NewProber returns a Prober wired to the real procfs.
func NewProber(log hclog.Logger) *Prober {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Prober{
		log:             log.Named("mount"),
		ControllersPath: "/proc/cgroups",
		MountsPath:      "/proc/self/mounts",
		ReadControllerFile: func(dir string) (string, error) {
			b, err := os.ReadFile(filepath.Join(dir, "cgroup.controllers"))
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}
}

// Probe builds a fresh Table by reading the kernel controller list and the
// process's mount list (spec §4.1).
func (p *Prober) Probe() (*Table, error) {
	mounts, err := p.readMounts()
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.OsError, "mount.Probe", "read mount list", err)
	}

	pureV2 := isPureV2(mounts)

	controllers, err := p.readControllers()
	if err != nil {
		if !pureV2 {
			return nil, cgerrors.Wrap(cgerrors.PreconditionFailed, "mount.Probe",
				"kernel controller list required for v1", err)
		}
		controllers = nil
	}
	_ = controllers // the v1 controller list only gates availability; v1 mounts still drive insertion below

	t := NewTable()
	var v1Count, v2Count int

	for _, m := range mounts {
		switch m.fstype {
		case "cgroup":
			if err := p.processV1Mount(t, m); err != nil {
				return nil, err
			}
			v1Count++
		case "cgroup2":
			empty, err := p.processV2Mount(t, m)
			if err != nil {
				return nil, err
			}
			if empty {
				t.empty = append(t.empty, m.dir)
			} else {
				v2Count++
			}
		}
	}

	switch {
	case v1Count > 0 && v2Count > 0:
		t.setup = ModeHybrid
	case v2Count > 0:
		t.setup = ModeUnified
	case v1Count > 0:
		t.setup = ModeLegacy
	default:
		t.setup = ModeUnavailable
	}

	return t, nil
}

func (p *Prober) processV1Mount(t *Table, m mountLine) error {
	opts := strings.Split(m.opts, ",")
	var namedHierarchy string
	var controllerOpts []string
	for _, o := range opts {
		if strings.HasPrefix(o, hierarchyOpaqueName) {
			namedHierarchy = strings.TrimPrefix(o, hierarchyOpaqueName)
			continue
		}
		controllerOpts = append(controllerOpts, o)
	}

	inserted := false
	for _, name := range controllerOpts {
		if !isKnownControllerOption(name) {
			continue
		}
		if err := t.insert(name, m.dir, V1); err != nil {
			return err
		}
		inserted = true
	}

	if namedHierarchy != "" {
		if err := t.insert("name="+namedHierarchy, m.dir, V1); err != nil {
			return err
		}
		inserted = true
	}

	if inserted {
		t.markShared(m.dir)
	}
	return nil
}

func (p *Prober) processV2Mount(t *Table, m mountLine) (empty bool, err error) {
	contents, readErr := p.ReadControllerFile(m.dir)
	if readErr != nil {
		// directory unreadable (e.g. not yet populated); treat as empty.
		return true, nil
	}
	names := strings.Fields(contents)
	if len(names) == 0 {
		return true, nil
	}
	for _, name := range names {
		if err := t.insert(name, m.dir, V2); err != nil {
			return false, err
		}
	}
	if err := t.insert(cgroupControllerName, m.dir, V2); err != nil {
		return false, err
	}
	t.markShared(m.dir)
	return false, nil
}

// isKnownControllerOption filters mount options down to plausible
// controller names, excluding generic v1 mount flags.
func isKnownControllerOption(opt string) bool {
	switch opt {
	case "", "rw", "ro", "relatime", "nosuid", "nodev", "noexec", "noatime",
		"nodiratime", "strictatime", "release_agent", "clone_children", "xattr":
		return false
	}
	if strings.HasPrefix(opt, "release_agent=") {
		return false
	}
	return true
}

// isPureV2 reports whether the mount list reveals a pure-v2 environment,
// detected by the subset=pid option on a /proc mount (spec §4.1 step 1).
func isPureV2(mounts []mountLine) bool {
	for _, m := range mounts {
		if m.dir == "/proc" && strings.Contains(m.opts, "subset=pid") {
			return true
		}
	}
	return false
}

type mountLine struct {
	fsname string
	dir    string
	fstype string
	opts   string
}

func (p *Prober) readMounts() ([]mountLine, error) {
	f, err := os.Open(p.MountsPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMounts(f)
}

func parseMounts(r io.Reader) ([]mountLine, error) {
	var out []mountLine
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		out = append(out, mountLine{fsname: fields[0], dir: fields[1], fstype: fields[2], opts: fields[3]})
	}
	return out, sc.Err()
}

type controllerLine struct {
	name       string
	hierarchy  int
	numGroups  int
	enabled    bool
}

func (p *Prober) readControllers() ([]controllerLine, error) {
	f, err := os.Open(p.ControllersPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseControllers(f)
}

func parseControllers(r io.Reader) ([]controllerLine, error) {
	var out []controllerLine
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			continue
		}
		var hid, ngroups, enabled int
		if _, err := fmt.Sscanf(fields[1], "%d", &hid); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(fields[2], "%d", &ngroups); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(fields[3], "%d", &enabled); err != nil {
			continue
		}
		out = append(out, controllerLine{name: fields[0], hierarchy: hid, numGroups: ngroups, enabled: enabled != 0})
	}
	return out, sc.Err()
}
