package daemon

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/libcgroup/libcgroup-sub000/cgctx"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
	"github.com/libcgroup/libcgroup-sub000/classify"
	fspkg "github.com/libcgroup/libcgroup-sub000/fs"
	"github.com/libcgroup/libcgroup-sub000/match"
	"github.com/libcgroup/libcgroup-sub000/mount"
	"github.com/libcgroup/libcgroup-sub000/registry"
	"github.com/libcgroup/libcgroup-sub000/rules"
	"github.com/stretchr/testify/require"
)

// fakeSource replays a fixed list of events, then returns io.EOF.
type fakeSource struct {
	events []Event
	i      int
}

func (s *fakeSource) Next() (Event, error) {
	if s.i >= len(s.events) {
		return Event{}, io.EOF
	}
	ev := s.events[s.i]
	s.i++
	return ev, nil
}

func (s *fakeSource) Close() error { return nil }

// fakeProc answers UIDGID/Procname from a fixed table, used so tests don't
// depend on real /proc entries for arbitrary pids.
type fakeProc struct {
	identities map[int][2]int
	names      map[int]string
}

func (f *fakeProc) UIDGID(pid int) (int, int, error) {
	v, ok := f.identities[pid]
	if !ok {
		return 0, 0, ErrNoSuchProcess
	}
	return v[0], v[1], nil
}

func (f *fakeProc) Procname(pid int) (string, error) {
	n, ok := f.names[pid]
	if !ok {
		return "", ErrNoSuchProcess
	}
	return n, nil
}

func newFakeClassifier(t *testing.T, root string, lines string) *classify.Classifier {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "cgroup.subtree_control"), []byte(""), 0644))

	mountsFile := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(mountsFile, []byte(
		"cgroup2 "+root+" cgroup2 rw,nsdelegate 0 0\n"), 0644))

	p := mount.NewProber(nil)
	p.MountsPath = mountsFile
	p.ReadControllerFile = func(dir string) (string, error) { return "cpu memory", nil }
	table, err := p.Probe()
	require.NoError(t, err)

	lib := cgctx.New(hclog.NewNullLogger(), table)
	driver := fspkg.New(lib)

	rulesPath := filepath.Join(t.TempDir(), "cgrules.conf")
	require.NoError(t, os.WriteFile(rulesPath, []byte(lines), 0644))
	store := rules.NewStore(hclog.NewNullLogger(), rulesPath)
	require.NoError(t, store.Reload())

	m := match.New(store, nil)
	return classify.New(m, driver, lib, nil)
}

func TestDaemon_UIDEventAttachesMatchingPid(t *testing.T) {
	root := t.TempDir()
	c := newFakeClassifier(t, root, "1000 cpu /alice\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alice"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alice", "cgroup.procs"), []byte(""), 0644))

	src := &fakeSource{events: []Event{{Kind: KindUID, PID: 55}}}
	d := New(hclog.NewNullLogger(), src, c, registry.New())
	d.Proc = &fakeProc{
		identities: map[int][2]int{55: {1000, 1000}},
		names:      map[int]string{55: "bash"},
	}

	err := d.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)

	got, err := os.ReadFile(filepath.Join(root, "alice", "cgroup.procs"))
	require.NoError(t, err)
	require.Contains(t, string(got), "55")
}

func TestDaemon_UIDEventSkipsRegisteredPid(t *testing.T) {
	root := t.TempDir()
	c := newFakeClassifier(t, root, "1000 cpu /alice\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alice"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alice", "cgroup.procs"), []byte(""), 0644))

	reg := registry.New()
	reg.Store(55, 0)

	src := &fakeSource{events: []Event{{Kind: KindUID, PID: 55}}}
	d := New(hclog.NewNullLogger(), src, c, reg)
	d.Proc = &fakeProc{
		identities: map[int][2]int{55: {1000, 1000}},
		names:      map[int]string{55: "bash"},
	}

	err := d.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)

	got, err := os.ReadFile(filepath.Join(root, "alice", "cgroup.procs"))
	require.NoError(t, err)
	require.Empty(t, string(got))
}

func TestDaemon_ExitRemovesFromRegistry(t *testing.T) {
	root := t.TempDir()
	c := newFakeClassifier(t, root, "1000 cpu /alice\n")

	reg := registry.New()
	reg.Store(55, 0)

	src := &fakeSource{events: []Event{{Kind: KindExit, PID: 55}}}
	d := New(hclog.NewNullLogger(), src, c, reg)

	err := d.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.False(t, reg.IsMember(55))
}

func TestDaemon_ForkPropagatesUnchangeChildren(t *testing.T) {
	root := t.TempDir()
	c := newFakeClassifier(t, root, "1000 cpu /alice\n")

	reg := registry.New()
	reg.Store(10, registry.UnchangeChildren)

	src := &fakeSource{events: []Event{{Kind: KindFork, ParentPID: 10, ChildPID: 11}}}
	d := New(hclog.NewNullLogger(), src, c, reg)

	err := d.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.True(t, reg.IsMember(11))
	require.True(t, reg.IsChildUnchanged(11))
}

func TestDaemon_ForkReclassifiesChildOfRacedParent(t *testing.T) {
	root := t.TempDir()
	c := newFakeClassifier(t, root, "1000 cpu /alice\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "alice"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "alice", "cgroup.procs"), []byte(""), 0644))

	reg := registry.New()
	src := &fakeSource{}
	d := New(hclog.NewNullLogger(), src, c, reg)
	d.Proc = &fakeProc{
		identities: map[int][2]int{12: {1000, 1000}},
		names:      map[int]string{12: "bash"},
	}
	d.parents.Store(10, 100)

	require.NoError(t, d.handle(Event{Kind: KindFork, ParentPID: 10, ChildPID: 12, TimestampNS: 200}))

	got, err := os.ReadFile(filepath.Join(root, "alice", "cgroup.procs"))
	require.NoError(t, err)
	require.Contains(t, string(got), "12")
}

func TestDaemon_ForkIgnoresUnrelatedParent(t *testing.T) {
	root := t.TempDir()
	c := newFakeClassifier(t, root, "1000 cpu /alice\n")

	reg := registry.New()
	src := &fakeSource{}
	d := New(hclog.NewNullLogger(), src, c, reg)

	err := d.handle(Event{Kind: KindFork, ParentPID: 999, ChildPID: 12, TimestampNS: 200})
	require.NoError(t, err)
}

func TestIsGoneProcess_DetectsESRCH(t *testing.T) {
	require.True(t, isGoneProcess(cgerrors.Wrap(cgerrors.OsError, "test", "write failed", syscall.ESRCH)))
	require.False(t, isGoneProcess(errors.New("unrelated")))
}
