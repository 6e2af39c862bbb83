package cgctx

import (
	"testing"

	"github.com/libcgroup/libcgroup-sub000/mount"
	"github.com/stretchr/testify/require"
)

func TestNew_DefaultsNilLoggerToNullLogger(t *testing.T) {
	lib := New(nil, mount.NewTable())
	require.NotNil(t, lib.Log)
	require.NotNil(t, lib.Paths)
}

func TestInit_ReplacesMountsAndPaths(t *testing.T) {
	lib := New(nil, mount.NewTable())
	originalPaths := lib.Paths

	p := mount.NewProber(nil)
	p.MountsPath = "/dev/null"
	require.NoError(t, lib.Init(p))

	require.NotSame(t, originalPaths, lib.Paths)
}

func TestInit_PropagatesProbeError(t *testing.T) {
	lib := New(nil, mount.NewTable())

	p := mount.NewProber(nil)
	p.MountsPath = "/nonexistent/does/not/exist"
	require.Error(t, lib.Init(p))
}
