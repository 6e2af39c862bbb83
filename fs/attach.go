package fs

import (
	"os"
	"strconv"
	"strings"

	"github.com/libcgroup/libcgroup-sub000/cgerrors"
)

// Attach file names (spec §3 glossary, §4.4.5).
const (
	TasksFile   = "tasks"
	ProcsFile   = "cgroup.procs"
	ThreadsFile = "cgroup.threads"
)

// AttachFileName returns the leaf filename a writer must publish a pid to
// in order to move it into the group at dir (spec §4.4.5). Directories
// with no cgroup.type file and no cgroup.controllers, other than a
// root-like v2 directory, are taken as v1 and use "tasks"; this function
// is used for any directory whose
// caller already knows it's a v2 directory or wants the general rule.
func AttachFileName(dir string) string {
	typ, err := os.ReadFile(dir + "/cgroup.type")
	if err != nil {
		// Either a v1 directory, or the v2 root group (no cgroup.type file).
		if _, statErr := os.Stat(dir + "/cgroup.controllers"); statErr == nil || isRootLike(dir) {
			return ProcsFile
		}
		return TasksFile
	}
	switch strings.TrimSpace(string(typ)) {
	case "domain", "domain threaded":
		return ProcsFile
	case "threaded":
		return ThreadsFile
	default:
		return ProcsFile
	}
}

// AttachFileNameChecked is the strict form of AttachFileName that returns
// an error for a cgroup.type value this system doesn't recognize (e.g.
// "domain invalid"), rather than silently falling back (spec §4.4.5).
func AttachFileNameChecked(dir string) (string, error) {
	typ, err := os.ReadFile(dir + "/cgroup.type")
	if err != nil {
		return ProcsFile, nil
	}
	switch v := strings.TrimSpace(string(typ)); v {
	case "domain", "domain threaded":
		return ProcsFile, nil
	case "threaded":
		return ThreadsFile, nil
	default:
		return "", cgerrors.New(cgerrors.InvalidInput, "fs.AttachFileNameChecked", "unrecognized cgroup.type: "+v)
	}
}

func isRootLike(dir string) bool {
	_, err := os.Stat(dir + "/cgroup.subtree_control")
	return err == nil
}

// Attach writes pid (and, if threads is true, every tid under
// /proc/<pid>/task) into dir's attach file.
func (d *Driver) Attach(dir string, pid int, threads bool) error {
	file, err := AttachFileNameChecked(dir)
	if err != nil {
		return err
	}
	if err := writePid(dir+"/"+file, pid); err != nil {
		return mapWriteErr(op+".Attach", dir, err)
	}
	if !threads {
		return nil
	}
	entries, err := os.ReadDir("/proc/" + strconv.Itoa(pid) + "/task")
	if err != nil {
		return nil // process may have exited between attach and thread walk
	}
	for _, e := range entries {
		tid, convErr := strconv.Atoi(e.Name())
		if convErr != nil {
			continue
		}
		if tid == pid {
			continue
		}
		_ = writePid(dir+"/"+file, tid)
	}
	return nil
}

func writePid(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write([]byte(strconv.Itoa(pid)))
	return err
}
