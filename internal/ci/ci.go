// Package ci holds small test helpers that vary behavior under CI, kept
// out of the exported API so they never leak into production builds.
package ci

import "testing"

// Parallel marks t safe to run in parallel, except under -short where
// resource contention between cgroup-mutating tests makes parallelism
// unreliable.
func Parallel(t *testing.T) {
	if testing.Short() {
		return
	}
	t.Parallel()
}
