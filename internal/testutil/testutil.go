// Package testutil provides environment-probing skip helpers for tests
// that need a real cgroup hierarchy or root privileges.
package testutil

import (
	"os"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/libcgroup/libcgroup-sub000/mount"
)

// RequiresRoot skips t unless running as root, for tests that create
// cgroup directories or chown/chmod them.
func RequiresRoot(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("test requires root")
	}
}

// CgroupsCompatibleV1 skips t unless the host's mount table includes at
// least one cgroup v1 controller mount.
func CgroupsCompatibleV1(t *testing.T) {
	table := probeOrSkip(t)
	for _, e := range table.All() {
		if e.Version == mount.V1 {
			return
		}
	}
	t.Skip("test requires a cgroup v1 mount")
}

// CgroupsCompatibleV2 skips t unless the host's mount table includes a
// usable cgroup v2 (unified or hybrid) mount.
func CgroupsCompatibleV2(t *testing.T) {
	table := probeOrSkip(t)
	if table.Mode() == mount.ModeUnavailable {
		t.Skip("test requires a cgroup v2 mount")
	}
	if _, ok := table.AnyV2(); !ok {
		t.Skip("test requires a cgroup v2 mount")
	}
}

func probeOrSkip(t *testing.T) *mount.Table {
	t.Helper()
	table, err := mount.NewProber(hclog.NewNullLogger()).Probe()
	if err != nil {
		t.Skipf("probing mount table: %v", err)
	}
	return table
}
