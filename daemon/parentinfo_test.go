package daemon

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParentTracker_MatchesAtOrBeforeTimestamp(t *testing.T) {
	pt := newParentTracker()
	pt.Store(100, 500)

	require.True(t, pt.WasChanging(100, 500))
}

func TestParentTracker_MatchesLaterTimestamp(t *testing.T) {
	pt := newParentTracker()
	pt.Store(100, 500)

	require.True(t, pt.WasChanging(100, 900))
}

func TestParentTracker_NoMatchBeforeStoredTimestamp(t *testing.T) {
	pt := newParentTracker()
	pt.Store(100, 500)

	require.False(t, pt.WasChanging(100, 100))
}

func TestParentTracker_NoMatchForDifferentPid(t *testing.T) {
	pt := newParentTracker()
	pt.Store(100, 500)

	require.False(t, pt.WasChanging(200, 900))
}

func TestParentTracker_ConsumesMatchOnSuccess(t *testing.T) {
	pt := newParentTracker()
	pt.Store(100, 500)

	require.True(t, pt.WasChanging(100, 900))
	require.False(t, pt.WasChanging(100, 900))
}
