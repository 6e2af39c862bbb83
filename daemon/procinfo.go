package daemon

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"
)

// ErrNoSuchProcess reports that pid no longer exists, mirroring the
// original's ECGROUPNOTEXIST short-circuit on a raced exit (spec §4.9:
// "If the classifier reports ESRCH/ENOENT...").
var ErrNoSuchProcess = errors.New("no such process")

// procReader reads the /proc facts the daemon needs about a pid. The
// production ProcFS implementation reads a real procfs; tests substitute
// a fake rooted at a tempdir.
type procReader interface {
	UIDGID(pid int) (uid, gid int, err error)
	Procname(pid int) (string, error)
}

// ProcFS reads process identity from a mounted procfs, defaulting to
// "/proc".
type ProcFS struct {
	Root string
}

// NewProcFS returns a ProcFS rooted at "/proc".
func NewProcFS() *ProcFS { return &ProcFS{Root: "/proc"} }

func (p *ProcFS) path(pid int, leaf string) string {
	root := p.Root
	if root == "" {
		root = "/proc"
	}
	return filepath.Join(root, strconv.Itoa(pid), leaf)
}

// UIDGID reads the effective uid/gid from /proc/<pid>/status (spec §4.9:
// "read euid/egid from /proc/<pid>/status").
func (p *ProcFS) UIDGID(pid int) (uid, gid int, err error) {
	f, err := os.Open(p.path(pid, "status"))
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, ErrNoSuchProcess
	}
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	haveUID, haveGID := false, false
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "Uid:"):
			if v, ok := effectiveField(line); ok {
				uid = v
				haveUID = true
			}
		case strings.HasPrefix(line, "Gid:"):
			if v, ok := effectiveField(line); ok {
				gid = v
				haveGID = true
			}
		}
		if haveUID && haveGID {
			break
		}
	}
	if !haveUID || !haveGID {
		return 0, 0, fmt.Errorf("parsing %s: Uid/Gid fields not found", p.path(pid, "status"))
	}
	return uid, gid, nil
}

// effectiveField extracts the second (effective) column of a "Uid:"/
// "Gid:" status line, whose fields are real, effective, saved, fs.
func effectiveField(line string) (int, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return 0, false
	}
	v, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, false
	}
	return v, true
}

// Procname resolves a pid's executable name, preferring the resolved
// /proc/<pid>/exe symlink target, falling back to the first cmdline
// argument for interpreters whose exe is themselves, and finally the
// "Name:" field in /proc/<pid>/status (spec §4.9).
func (p *ProcFS) Procname(pid int) (string, error) {
	// Permission or protocol errors on exe fall through to the go-ps,
	// cmdline, and status fallbacks below, matching the original's
	// best-effort chain.
	if target, err := os.Readlink(p.path(pid, "exe")); err == nil {
		return target, nil
	}

	// go-ps always reads the host's /proc, so it is only consulted when
	// p.Root is that same procfs.
	if p.Root == "" || p.Root == "/proc" {
		if proc, err := ps.FindProcess(pid); err == nil && proc != nil {
			if exe := proc.Executable(); exe != "" {
				return exe, nil
			}
		}
	}

	if cmdline, err := os.ReadFile(p.path(pid, "cmdline")); err == nil {
		if arg0 := firstNULField(cmdline); arg0 != "" {
			return arg0, nil
		}
	}

	f, err := os.Open(p.path(pid, "status"))
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoSuchProcess
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "Name:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "Name:")), nil
		}
	}
	return "", ErrNoSuchProcess
}

func firstNULField(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
