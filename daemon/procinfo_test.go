package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeProcEntry(t *testing.T, root string, pid int, status string) string {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0644))
	return dir
}

func TestProcFS_UIDGID_ReadsEffectiveColumn(t *testing.T) {
	root := t.TempDir()
	writeProcEntry(t, root, 42, "Name:\tbash\nUid:\t1000\t1000\t1000\t1000\nGid:\t100\t100\t100\t100\n")

	p := &ProcFS{Root: root}
	uid, gid, err := p.UIDGID(42)
	require.NoError(t, err)
	require.Equal(t, 1000, uid)
	require.Equal(t, 100, gid)
}

func TestProcFS_UIDGID_MissingPidReturnsErrNoSuchProcess(t *testing.T) {
	p := &ProcFS{Root: t.TempDir()}
	_, _, err := p.UIDGID(99999)
	require.ErrorIs(t, err, ErrNoSuchProcess)
}

func TestProcFS_Procname_PrefersExeSymlink(t *testing.T) {
	root := t.TempDir()
	dir := writeProcEntry(t, root, 7, "Name:\tfallback\n")
	require.NoError(t, os.Symlink("/usr/bin/prog", filepath.Join(dir, "exe")))

	p := &ProcFS{Root: root}
	name, err := p.Procname(7)
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/prog", name)
}

func TestProcFS_Procname_FallsBackToCmdline(t *testing.T) {
	root := t.TempDir()
	dir := writeProcEntry(t, root, 8, "Name:\tfallback\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cmdline"), []byte("/opt/interp\x00arg1\x00"), 0644))

	p := &ProcFS{Root: root}
	name, err := p.Procname(8)
	require.NoError(t, err)
	require.Equal(t, "/opt/interp", name)
}

func TestProcFS_Procname_FallsBackToStatusName(t *testing.T) {
	root := t.TempDir()
	writeProcEntry(t, root, 9, "Name:\tworker\n")

	p := &ProcFS{Root: root}
	name, err := p.Procname(9)
	require.NoError(t, err)
	require.Equal(t, "worker", name)
}

func TestProcFS_Procname_MissingPidReturnsErrNoSuchProcess(t *testing.T) {
	p := &ProcFS{Root: t.TempDir()}
	_, err := p.Procname(99999)
	require.ErrorIs(t, err, ErrNoSuchProcess)
}
