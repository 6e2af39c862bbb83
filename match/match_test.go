package match

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/libcgroup/libcgroup-sub000/rules"
	"github.com/stretchr/testify/require"
)

func storeFromLines(t *testing.T, lines string) *rules.Store {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cgrules.conf")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0644))
	st := rules.NewStore(hclog.NewNullLogger(), path)
	require.NoError(t, st.Reload())
	return st
}

func TestMatch_ByUID(t *testing.T) {
	st := storeFromLines(t, "1000 cpu /user1000\n")
	m := New(st, nil)

	res, ok := m.Match(1000, 1000, 1, "bash")
	require.True(t, ok)
	require.Equal(t, "/user1000", res.Head.Dest)
}

func TestMatch_NoMatch(t *testing.T) {
	st := storeFromLines(t, "1000 cpu /user1000\n")
	m := New(st, nil)

	_, ok := m.Match(2000, 2000, 1, "bash")
	require.False(t, ok)
}

func TestMatch_WildcardUserCatchesEveryone(t *testing.T) {
	st := storeFromLines(t, "* cpu /default\n")
	m := New(st, nil)

	_, ok := m.Match(9999, 9999, 1, "anything")
	require.True(t, ok)
}

func TestMatch_GroupLookup(t *testing.T) {
	st := storeFromLines(t, "@admins cpu /admins\n")
	lookup := func(name string) ([]int, bool) {
		if name == "admins" {
			return []int{42}, true
		}
		return nil, false
	}
	m := New(st, lookup)

	res, ok := m.Match(42, 42, 1, "bash")
	require.True(t, ok)
	require.Equal(t, "/admins", res.Head.Dest)

	_, ok = m.Match(43, 43, 1, "bash")
	require.False(t, ok)
}

func TestMatch_ProcnameWildcardBasenameAware(t *testing.T) {
	st := storeFromLines(t, "1000:firefox* cpu /browser\n")
	m := New(st, nil)

	res, ok := m.Match(1000, 1000, 1, "/usr/lib/firefox/firefox-bin")
	require.True(t, ok)
	require.Equal(t, "/browser", res.Head.Dest)
}

func TestMatch_CollectsContinuations(t *testing.T) {
	st := storeFromLines(t, "1000 cpu /user1000\n% memory /user1000/extra\n")
	m := New(st, nil)

	res, ok := m.Match(1000, 1000, 1, "bash")
	require.True(t, ok)
	require.Len(t, res.Continuations, 1)
	require.Equal(t, "/user1000/extra", res.Continuations[0].Dest)
}

func TestProcnameMatches_ExactAgainstBasename(t *testing.T) {
	r := &rules.Rule{Procname: "sshd"}
	require.True(t, procnameMatches(r, "/usr/sbin/sshd"))
	require.False(t, procnameMatches(r, "/usr/sbin/sshd-extra"))
}

func TestDestPrefixMatches_DirectoryBoundary(t *testing.T) {
	require.True(t, destPrefixMatches("/user1000/sub", "/user1000"))
	require.True(t, destPrefixMatches("/user1000", "/user1000"))
	require.False(t, destPrefixMatches("/user1000extra", "/user1000"))
}

func TestIgnoreRule_RequiresControllerIntersectionAndPrefix(t *testing.T) {
	st := storeFromLines(t, "1000 cpu,memory /user1000 ignore\n")
	m := New(st, nil)
	m.procPath = t.TempDir()

	pid := 4242
	procDir := filepath.Join(m.procPath, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(procDir, 0755))
	cgroupContent := "4:cpu,cpuacct:/user1000/sub\n1:name=systemd:/other\n"
	require.NoError(t, os.WriteFile(filepath.Join(procDir, "cgroup"), []byte(cgroupContent), 0644))

	res, ok := m.Match(1000, 1000, pid, "bash")
	require.True(t, ok)
	require.Equal(t, "/user1000", res.Head.Dest)
}

func TestIgnoreRule_RejectsWhenPathDoesNotMatch(t *testing.T) {
	st := storeFromLines(t, "1000 cpu /user1000 ignore\n")
	m := New(st, nil)
	m.procPath = t.TempDir()

	pid := 4242
	procDir := filepath.Join(m.procPath, strconv.Itoa(pid))
	require.NoError(t, os.MkdirAll(procDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(procDir, "cgroup"), []byte("4:cpu:/other\n"), 0644))

	_, ok := m.Match(1000, 1000, pid, "bash")
	require.False(t, ok)
}

func TestParseCgroupLine(t *testing.T) {
	ctrls, path, ok := parseCgroupLine("4:cpu,cpuacct:/foo/bar")
	require.True(t, ok)
	require.True(t, strings.Join(ctrls, ",") == "cpu,cpuacct")
	require.Equal(t, "/foo/bar", path)

	_, _, ok = parseCgroupLine("not-a-valid-line")
	require.False(t, ok)
}
