package path

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/libcgroup/libcgroup-sub000/mount"
	"github.com/stretchr/testify/require"
)

func fakeV1Table(t *testing.T) *mount.Table {
	t.Helper()
	mountsFile := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(mountsFile, []byte("cgroup /sys/fs/cgroup/cpu cgroup rw,cpu 0 0\n"), 0644))

	p := mount.NewProber(nil)
	p.MountsPath = mountsFile
	table, err := p.Probe()
	require.NoError(t, err)
	return table
}

func TestBuild_UnknownControllerReturnsEmpty(t *testing.T) {
	table := fakeV1Table(t)
	b := NewBuilder(table)
	require.Empty(t, b.Build("mygroup", "nonexistent", ""))
}

func TestBuild_AppendsGroupAndTrailingSlash(t *testing.T) {
	table := fakeV1Table(t)
	b := NewBuilder(table)
	got := b.Build("mygroup", "cpu", "")
	require.Equal(t, "/sys/fs/cgroup/cpu/mygroup/", got)
}

func TestBuild_AppendsSettingWithoutTrailingSlash(t *testing.T) {
	table := fakeV1Table(t)
	b := NewBuilder(table)
	got := b.Build("mygroup", "cpu", "cpu.shares")
	require.Equal(t, "/sys/fs/cgroup/cpu/mygroup/cpu.shares", got)
}

func TestBuild_DefaultSliceSkippedForOperatorOverride(t *testing.T) {
	table := fakeV1Table(t)
	b := NewBuilder(table)
	b.SetDefaultSlice("system.slice")

	require.Equal(t, "/sys/fs/cgroup/cpu/system.slice/mygroup/", b.Build("mygroup", "cpu", ""))
	require.Equal(t, "/sys/fs/cgroup/cpu/override/", b.Build("/override", "cpu", ""))
}

func TestBuild_NamespacePrefixInsertedBeforeGroup(t *testing.T) {
	table := fakeV1Table(t)
	b := NewBuilder(table)
	b.SetNamespacePrefix("cpu", "ns1")
	require.Equal(t, "/sys/fs/cgroup/cpu/ns1/mygroup/", b.Build("mygroup", "cpu", ""))
}

func TestBuild_TruncatesOverlongPaths(t *testing.T) {
	table := fakeV1Table(t)
	b := NewBuilder(table)

	long := make([]byte, FilenameMax*2)
	for i := range long {
		long[i] = 'a'
	}
	got := b.Build(string(long), "cpu", "")
	require.Len(t, got, FilenameMax)
}
