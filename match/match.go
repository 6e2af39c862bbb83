// Package match implements the rule matcher (spec §4.7): given an
// observed (uid, gid, pid, procname), walk a rule list in order and
// report the first matching head rule plus any trailing continuations.
package match

import (
	"bufio"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v3"
	"github.com/libcgroup/libcgroup-sub000/rules"
)

// GroupLookup resolves a group name to its member uids, used for
// "@groupname" rules. Production code wires this to os/user; tests
// substitute a fake.
type GroupLookup func(name string) (memberUIDs []int, ok bool)

// Matcher walks a rule list to classify observed processes.
type Matcher struct {
	store       *rules.Store
	lookupGroup GroupLookup
	procPath    string // overridable for tests; defaults to "/proc"
}

// New returns a Matcher reading rules from store and resolving groups via
// lookupGroup (pass nil to disable "@group" rule support).
func New(store *rules.Store, lookupGroup GroupLookup) *Matcher {
	if lookupGroup == nil {
		lookupGroup = func(string) ([]int, bool) { return nil, false }
	}
	return &Matcher{store: store, lookupGroup: lookupGroup, procPath: "/proc"}
}

// Result is the outcome of a successful match: the head rule and any
// "%"-continuation rules immediately following it in the list.
type Result struct {
	Head          *rules.Rule
	Continuations []*rules.Rule
}

// Match scans the rule list in order for the first rule whose identity
// and procname match, skipping continuation lines as heads (spec §4.7).
// Returns (nil, false) if no rule matches, which the classifier should
// treat as "leave this process alone".
func (m *Matcher) Match(uid, gid, pid int, procname string) (*Result, bool) {
	all := m.store.Rules()
	for i, r := range all {
		if r.Continuation {
			continue
		}
		if !m.identityMatches(r, uid, gid) {
			continue
		}
		if !procnameMatches(r, procname) {
			continue
		}
		if r.Ignore && !m.ignoreRuleApplies(r, pid) {
			continue
		}
		return &Result{Head: r, Continuations: collectContinuations(all, i)}, true
	}
	return nil, false
}

func collectContinuations(all []*rules.Rule, headIdx int) []*rules.Rule {
	var out []*rules.Rule
	for j := headIdx + 1; j < len(all); j++ {
		if !all[j].Continuation {
			break
		}
		out = append(out, all[j])
	}
	return out
}

func (m *Matcher) identityMatches(r *rules.Rule, uid, gid int) bool {
	if r.UID == rules.AnyID && r.GID == rules.AnyID {
		return true
	}
	if r.Group != "" {
		members, ok := m.lookupGroup(r.Group)
		if !ok {
			return false
		}
		for _, u := range members {
			if u == uid {
				return true
			}
		}
		return false
	}
	if r.UID != rules.NoID && r.UID == uid {
		return true
	}
	if r.GID != rules.NoID && r.GID == gid {
		return true
	}
	if r.UserName != "" {
		if resolved, ok := ResolveUser(r.UserName); ok && resolved == uid {
			return true
		}
	}
	return false
}

// procnameMatches implements the basename-aware wildcard rule (spec
// §4.7; SPEC_FULL.md §C.2): an absent pattern matches everything, a
// trailing-"*" pattern is a prefix match tried against both the full
// procname and its basename, and an exact pattern is likewise tried
// against both forms.
func procnameMatches(r *rules.Rule, procname string) bool {
	if r.Procname == "" && r.HasWildcard {
		return true // bare "*"
	}
	if r.Procname == "" {
		return true // no procname field in the rule at all
	}
	base := filepath.Base(procname)
	if r.HasWildcard {
		return strings.HasPrefix(procname, r.Procname) || strings.HasPrefix(base, r.Procname)
	}
	return procname == r.Procname || base == r.Procname
}

// ignoreRuleApplies implements the ignore-rule verification pass (spec
// §4.7; SPEC_FULL.md §C.1): read pid's /proc/<pid>/cgroup, find the line
// for a hierarchy carrying any controller in r.Controllers, require that
// hierarchy's controller set to intersect r.Controllers (not necessarily
// equal), and require the cgroup path to equal r.Dest or lie under it
// (see destPrefixMatches).
func (m *Matcher) ignoreRuleApplies(r *rules.Rule, pid int) bool {
	f, err := os.Open(filepath.Join(m.procPath, strconv.Itoa(pid), "cgroup"))
	if err != nil {
		return false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		hier, cgPath, ok := parseCgroupLine(sc.Text())
		if !ok {
			continue
		}
		if !intersects(hier, r.Controllers) {
			continue
		}
		if destPrefixMatches(cgPath, r.Dest) {
			return true
		}
	}
	return false
}

// parseCgroupLine splits one "<id>:<controller-list>:<path>" line from
// /proc/<pid>/cgroup.
func parseCgroupLine(line string) (controllers []string, path string, ok bool) {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) != 3 {
		return nil, "", false
	}
	if parts[1] == "" {
		return nil, parts[2], true // v2 unified line has no names field
	}
	return strings.Split(parts[1], ","), parts[2], true
}

func intersects(hier []string, want *set.Set[string]) bool {
	if len(hier) == 0 {
		return true // v2 unified hierarchy always counts
	}
	for _, c := range hier {
		if want.Contains(c) {
			return true
		}
	}
	return false
}

// destPrefixMatches requires cgPath to equal dest or begin with dest at a
// directory boundary (spec §4.7). A trailing "/" in dest is ignored, so
// "/a/" matches "/a" itself; an empty or "/" dest matches every path.
func destPrefixMatches(cgPath, dest string) bool {
	dest = strings.TrimSuffix(dest, "/")
	if dest == "" {
		return true
	}
	if cgPath == dest {
		return true
	}
	return strings.HasPrefix(cgPath, dest+"/")
}

// ResolveUser resolves name to a numeric uid using os/user, used by
// callers that need to turn a Rule.UserName into a comparable uid before
// calling Match.
func ResolveUser(name string) (int, bool) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, false
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, false
	}
	return uid, true
}

// ResolveGroup is a GroupLookup implementation backed by os/user,
// resolving name to its member uids for "@groupname" rule matching.
func ResolveGroup(name string) ([]int, bool) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return nil, false
	}
	ids, err := osUserGroupMembers(g)
	if err != nil {
		return nil, false
	}
	return ids, true
}

// osUserGroupMembers resolves the member uids of g. os/user does not
// expose a direct group-membership query, so this scans /etc/passwd for
// users whose primary gid matches g's. Supplementary members listed in
// /etc/group are not found.
func osUserGroupMembers(g *user.Group) ([]int, error) {
	var ids []int
	f, err := os.Open("/etc/passwd")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Split(line, ":")
		if len(fields) < 4 {
			continue
		}
		if fields[3] != g.Gid {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		ids = append(ids, uid)
	}
	return ids, sc.Err()
}
