package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLine_Basic(t *testing.T) {
	r, err := ParseLine("alice cpu,memory /alice")
	require.NoError(t, err)
	require.Equal(t, "alice", r.UserName)
	require.True(t, r.Controllers.Contains("cpu"))
	require.True(t, r.Controllers.Contains("memory"))
	require.Equal(t, "/alice", r.Dest)
	require.False(t, r.Ignore)
	require.False(t, r.Continuation)
}

func TestParseLine_WildcardUser(t *testing.T) {
	r, err := ParseLine("* cpu /default")
	require.NoError(t, err)
	require.Equal(t, AnyID, r.UID)
	require.Equal(t, AnyID, r.GID)
}

func TestParseLine_Group(t *testing.T) {
	r, err := ParseLine("@admins cpu /admins")
	require.NoError(t, err)
	require.Equal(t, "admins", r.Group)
}

func TestParseLine_Continuation(t *testing.T) {
	r, err := ParseLine("% memory /alice/extra")
	require.NoError(t, err)
	require.True(t, r.Continuation)
}

func TestParseLine_ProcnameWildcard(t *testing.T) {
	r, err := ParseLine("alice:firefox* cpu /alice/browser")
	require.NoError(t, err)
	require.Equal(t, "firefox", r.Procname)
	require.True(t, r.HasWildcard)
}

func TestParseLine_ProcnameBareStar(t *testing.T) {
	r, err := ParseLine("alice:* cpu /alice")
	require.NoError(t, err)
	require.Equal(t, "", r.Procname)
	require.True(t, r.HasWildcard)
}

func TestParseLine_IgnoreOption(t *testing.T) {
	r, err := ParseLine("alice cpu /alice ignore")
	require.NoError(t, err)
	require.True(t, r.Ignore)
}

func TestParseLine_UnknownOptionErrors(t *testing.T) {
	_, err := ParseLine("alice cpu /alice bogus")
	require.Error(t, err)
}

func TestParseLine_IgnoreParsedBeforeUnknownOptionFails(t *testing.T) {
	r, err := ParseLine("alice cpu /alice ignore,bogus")
	require.Error(t, err)
	require.NotNil(t, r)
	require.True(t, r.Ignore)
}

func TestParseLine_TrailingComment(t *testing.T) {
	r, err := ParseLine("alice cpu /alice # a comment")
	require.NoError(t, err)
	require.Equal(t, "/alice", r.Dest)
}

func TestParseLine_QuotedFieldWithSpace(t *testing.T) {
	r, err := ParseLine(`alice cpu "/alice with space"`)
	require.NoError(t, err)
	require.Equal(t, "/alice with space", r.Dest)
}

func TestParseLine_MissingFieldsError(t *testing.T) {
	_, err := ParseLine("alice")
	require.Error(t, err)
}

func TestParseReader_SkipsBlankAndComments(t *testing.T) {
	src := "# header comment\n\nalice cpu /alice\n\n@ops memory /ops\n"
	rs, err := ParseReader(strings.NewReader(src))
	require.NoError(t, err)
	require.Len(t, rs, 2)
}

func TestStripComment_IgnoresHashInQuotes(t *testing.T) {
	got := stripComment(`alice cpu "dest#notcomment" # real comment`)
	require.Equal(t, `alice cpu "dest#notcomment"`, got)
}
