package daemon

import (
	"testing"

	"github.com/hashicorp/logutils"
	"github.com/stretchr/testify/require"
)

func TestExtractLevel_ParsesBracketedLevel(t *testing.T) {
	require.Equal(t, "INFO", extractLevel([]byte("[INFO] daemon: started")))
	require.Equal(t, "", extractLevel([]byte("no brackets here")))
}

func TestValidateLevelFilter_AcceptsKnownLevel(t *testing.T) {
	filt := LevelFilter()
	require.True(t, ValidateLevelFilter(logutils.LogLevel("INFO"), filt))
	require.False(t, ValidateLevelFilter(logutils.LogLevel("FOO"), filt))
}

func TestLevelFilter_DefaultsToDaemonLevelSet(t *testing.T) {
	filt := LevelFilter()
	require.Equal(t, logLevels, filt.Levels)
}
