// Package fs implements the filesystem driver: create/delete/modify/read
// of a group.Group against a mounted cgroupfs (spec §4.4).
package fs

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/libcgroup/libcgroup-sub000/cgctx"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
	"github.com/libcgroup/libcgroup-sub000/group"
)

// Driver applies Group models to a mounted cgroupfs.
type Driver struct {
	lib *cgctx.Library
	log hclog.Logger
}

// New returns a Driver operating against lib.
func New(lib *cgctx.Library) *Driver {
	log := hclog.NewNullLogger()
	if lib != nil && lib.Log != nil {
		log = lib.Log.Named("fs")
	}
	return &Driver{lib: lib, log: log}
}

// readableTasksFile reports whether <dir>/tasks exists and is readable,
// used to disambiguate EPERM into NotAllowed vs SubsysNotMounted (spec
// §4.4.3).
func readableTasksFile(dir string) bool {
	f, err := os.Open(dir + "/tasks")
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// mapWriteErr translates a raw write-path OS error into the corresponding
// semantic kind (spec §4.4.3, §7).
func mapWriteErr(op, dir string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cgerrors.Wrap(cgerrors.NotFound, op, "value does not exist", err)
	case errors.Is(err, fs.ErrPermission):
		if readableTasksFile(dir) {
			return cgerrors.Wrap(cgerrors.PermissionDenied, op, "not allowed", err)
		}
		return cgerrors.Wrap(cgerrors.PreconditionFailed, op, "controller not mounted", err)
	default:
		return cgerrors.Wrap(cgerrors.OsError, op, "write failed", err)
	}
}

// mapMkdirErr translates mkdir's error, treating EEXIST as non-fatal
// (spec §4.4.1 step c): returns nil when the directory already existed.
func mapMkdirErr(op, dir string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if errors.Is(err, fs.ErrPermission) {
		return cgerrors.Wrap(cgerrors.PermissionDenied, op, "not owner", err)
	}
	if _, statErr := os.Stat(dir); statErr == nil {
		return nil
	}
	return cgerrors.Wrap(cgerrors.Other, op, "not allowed", err)
}

// sameDevice reports whether a and b reside on the same filesystem device,
// used by Delete to detect a mount-point boundary (spec §4.4.2 step 1).
func sameDevice(a, b string) (bool, error) {
	var sa, sb syscall.Stat_t
	if err := syscall.Stat(a, &sa); err != nil {
		return false, err
	}
	if err := syscall.Stat(b, &sb); err != nil {
		return false, err
	}
	return sa.Dev == sb.Dev, nil
}

// isEmptyLine reports whether a value line is blank (spec §4.4.3: "empty
// lines are skipped with a warning").
func isEmptyLine(s string) bool {
	return strings.TrimSpace(s) == ""
}

// writeLines writes v one write(2) per newline-separated chunk, skipping
// blank lines, matching the original's multi-line write behavior.
func writeLines(path string, v string, log hclog.Logger) error {
	lines := strings.Split(v, "\n")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	wrote := false
	for _, line := range lines {
		if isEmptyLine(line) {
			log.Warn("skipping empty line in multi-line setting write", "path", path)
			continue
		}
		if _, err := f.Write([]byte(line)); err != nil {
			return err
		}
		wrote = true
	}
	if !wrote {
		// nothing non-blank to write; still attempt the single value so a
		// genuinely empty setting (e.g. clearing a value) round-trips.
		if _, err := f.Write([]byte(v)); err != nil {
			return err
		}
	}
	return nil
}

func chownRecursive(dir string, uid, gid int) error {
	if uid == group.NoUIDGID && gid == group.NoUIDGID {
		return nil
	}
	return walkDir(dir, func(p string, isDir bool) error {
		return os.Chown(p, orInherit(uid), orInherit(gid))
	})
}

func orInherit(v int) int {
	if v == group.NoUIDGID {
		return -1
	}
	return v
}

func chmodTree(dir string, dirMode, fileMode int, skip func(name string) bool) error {
	return walkDir(dir, func(p string, isDir bool) error {
		base := basename(p)
		if skip != nil && skip(base) {
			return nil
		}
		if isDir {
			if dirMode == group.NoPerms {
				return nil
			}
			return os.Chmod(p, os.FileMode(dirMode))
		}
		if fileMode == group.NoPerms {
			return nil
		}
		return os.Chmod(p, os.FileMode(fileMode))
	})
}

func basename(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return p
	}
	return p[i+1:]
}

func walkDir(dir string, fn func(path string, isDir bool) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if err := fn(dir, true); err != nil {
		return err
	}
	for _, e := range entries {
		p := dir + "/" + e.Name()
		if e.IsDir() {
			if err := walkDir(p, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(p, false); err != nil {
			return err
		}
	}
	return nil
}
