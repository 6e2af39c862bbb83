package fs

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"strings"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/libcgroup/libcgroup-sub000/cgerrors"
	"github.com/libcgroup/libcgroup-sub000/group"
)

// DeleteFlags controls Delete's behavior (spec §4.4.2).
type DeleteFlags uint

const (
	// Recursive descends into and deletes subgroups post-order.
	Recursive DeleteFlags = 1 << iota
	// IgnoreMigration skips draining tasks into the parent before rmdir.
	IgnoreMigration
	// EmptyOnly fails with Conflict (NON_EMPTY) instead of forcing removal
	// of a group that still has live tasks.
	EmptyOnly
)

// Delete removes g's directories across all its controllers. It returns
// the first non-ignorable error but always continues past a per-controller
// failure so partial clean-ups still make progress (spec §4.4.2).
func (d *Driver) Delete(g *group.Group, flags DeleteFlags) error {
	var first error
	for _, c := range g.Controllers {
		entry := d.lib.Mounts.Lookup(c.Name)
		if entry == nil {
			continue
		}
		target := d.lib.Paths.Build(g.Name, c.Name, "")
		if target == "" {
			continue
		}
		if err := d.deleteOne(target, flags); err != nil {
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (d *Driver) deleteOne(target string, flags DeleteFlags) error {
	if flags&Recursive != 0 {
		children, err := os.ReadDir(target)
		if err == nil {
			for _, ch := range children {
				if !ch.IsDir() {
					continue
				}
				if err := d.deleteOne(target+"/"+ch.Name(), flags); err != nil {
					d.log.Debug("recursive delete of subgroup failed", "path", target+"/"+ch.Name(), "error", err)
				}
			}
		}
	}

	if flags&IgnoreMigration == 0 && flags&EmptyOnly == 0 {
		if err := d.drainTasks(target); err != nil {
			d.log.Debug("task migration before delete failed", "path", target, "error", err)
		}
	}

	err := os.Remove(target)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if errors.Is(err, syscall.EBUSY) {
		if flags&EmptyOnly != 0 {
			return cgerrors.Wrap(cgerrors.Conflict, op+".Delete", "group is not empty", err)
		}
		return cgerrors.Wrap(cgerrors.OsError, op+".Delete", "rmdir failed", err)
	}
	return cgerrors.Wrap(cgerrors.OsError, op+".Delete", "rmdir failed", err)
}

// hasParent reports whether dir has a parent within the same hierarchy
// (i.e. dir and dir/.. are on the same device; a mismatch means dir is a
// mount point and has no parent).
func hasParent(dir string) (string, bool, error) {
	parent := dir + "/.."
	same, err := sameDevice(dir, parent)
	if err != nil {
		return "", false, err
	}
	if !same {
		return "", false, nil
	}
	return parent, true, nil
}

// drainTasks streams every pid out of target's attach file into its
// parent's attach file. ESRCH on a pid write is non-fatal: the process
// exited between read and write (spec §4.4.2 step 2).
func (d *Driver) drainTasks(target string) error {
	parent, ok, err := hasParent(target)
	if err != nil {
		return err
	}
	if !ok {
		return nil // mount point, nothing to drain into
	}

	attachFile := AttachFileName(target)
	pf, err := os.Open(target + "/" + attachFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	defer pf.Close()

	parentAttach := parent + "/" + AttachFileName(parent)
	out, err := os.OpenFile(parentAttach, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer out.Close()

	var errs *multierror.Error
	sc := bufio.NewScanner(pf)
	for sc.Scan() {
		pid := strings.TrimSpace(sc.Text())
		if pid == "" {
			continue
		}
		if _, err := out.Write([]byte(pid)); err != nil {
			if isESRCH(err) {
				continue
			}
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func isESRCH(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
