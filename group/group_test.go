package group

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroup_AddSetting(t *testing.T) {
	g := New("/g1")
	c := g.AddController("cpu")
	c.AddSetting("cpu.shares", "2048")

	s := c.GetSetting("cpu.shares")
	require.NotNil(t, s)
	require.Equal(t, "2048", s.Value)
	require.True(t, s.Dirty)
}

func TestGroup_AddSetting_Overwrite(t *testing.T) {
	g := New("/g1")
	c := g.AddController("cpu")
	c.AddSetting("cpu.shares", "1024")
	c.AddSetting("cpu.shares", "2048")

	require.Len(t, c.Settings, 1)
	require.Equal(t, "2048", c.GetSetting("cpu.shares").Value)
}

func TestGroup_RemoveSetting(t *testing.T) {
	g := New("/g1")
	c := g.AddController("cpu")
	c.AddSetting("cpu.shares", "2048")
	c.RemoveSetting("cpu.shares")

	require.Nil(t, c.GetSetting("cpu.shares"))
}

func TestGroup_AddController_Idempotent(t *testing.T) {
	g := New("/g1")
	c1 := g.AddController("cpu")
	c2 := g.AddController("cpu")
	require.Same(t, c1, c2)
	require.Len(t, g.Controllers, 1)
}

func TestGroup_Copy(t *testing.T) {
	src := New("/g1")
	c := src.AddController("cpu")
	c.AddSetting("cpu.shares", "2048")
	c.Settings[0].Dirty = false
	c.Settings[0].MultiLine = []string{"a", "b"}
	src.SetUIDGID(1, 2, 3, 4)
	src.SetPermissions(0755, 0644, 0644)

	dst := New("/stale")
	dst.AddController("memory")

	Copy(dst, src)

	require.Equal(t, "/g1", dst.Name)
	require.Len(t, dst.Controllers, 1)
	require.Nil(t, dst.GetController("memory"))

	dc := dst.GetController("cpu")
	require.NotNil(t, dc)
	ds := dc.GetSetting("cpu.shares")
	require.Equal(t, "2048", ds.Value)
	require.False(t, ds.Dirty)
	require.Equal(t, []string{"a", "b"}, ds.MultiLine)

	// mutating the copy must not affect the source (deep clone)
	ds.MultiLine[0] = "mutated"
	require.Equal(t, "a", c.Settings[0].MultiLine[0])

	require.Equal(t, 1, dst.TasksUID)
	require.Equal(t, 0755, dst.ControlDirMode)
}

func TestGroup_Diff(t *testing.T) {
	a := New("/g1")
	ca := a.AddController("cpu")
	ca.AddSetting("cpu.shares", "2048")
	ca.AddSetting("cpu.weight", "100")

	b := New("/g1")
	cb := b.AddController("cpu")
	cb.AddSetting("cpu.shares", "1024")

	d := Diff(a, b)
	require.ElementsMatch(t, []string{"cpu.shares", "cpu.weight"}, d["cpu"])
}

func TestGroup_NilSentinelsInherit(t *testing.T) {
	g := New("/g1")
	require.Equal(t, NoUIDGID, g.TasksUID)
	require.Equal(t, NoPerms, g.TasksMode)
}
