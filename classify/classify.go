package classify

import (
	"github.com/libcgroup/libcgroup-sub000/cgctx"
	"github.com/libcgroup/libcgroup-sub000/fs"
	"github.com/libcgroup/libcgroup-sub000/match"
	"github.com/libcgroup/libcgroup-sub000/rules"
)

// Classifier ties a Matcher to a filesystem Driver, performing template
// resolution and pid attachment for a matched rule (spec §4.8).
type Classifier struct {
	Matcher  *match.Matcher
	Driver   *fs.Driver
	Lib      *cgctx.Library
	Resolver IdentityResolver
	Templates *TemplateDB
}

// New returns a Classifier. templates may be nil if no template rules
// are configured.
func New(m *match.Matcher, driver *fs.Driver, lib *cgctx.Library, templates *TemplateDB) *Classifier {
	return &Classifier{Matcher: m, Driver: driver, Lib: lib, Resolver: DefaultResolver(), Templates: templates}
}

// Classify matches (uid, gid, pid, procname) against the rule list and,
// on a non-ignore match, resolves the destination's template segments
// and attaches pid to every controller in the rule's set, then repeats
// for each "%"-continuation rule (spec §4.8 step 3). threads additionally
// attaches every tid under /proc/<pid>/task.
//
// Returns (matched=false, nil) when no rule matches, and (matched=true,
// nil) when an ignore rule matched (classification is short-circuited:
// spec §4.8 "Ignore-rule matches short-circuit classification").
func (c *Classifier) Classify(uid, gid, pid int, procname string, threads bool) (matched bool, err error) {
	res, ok := c.Matcher.Match(uid, gid, pid, procname)
	if !ok {
		return false, nil
	}
	if res.Head.Ignore {
		return true, nil
	}

	if err := c.applyRule(res.Head, uid, gid, pid, procname, threads); err != nil {
		return true, err
	}
	for _, cont := range res.Continuations {
		if err := c.applyRule(cont, uid, gid, pid, procname, threads); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (c *Classifier) applyRule(r *rules.Rule, uid, gid, pid int, procname string, threads bool) error {
	expanded := Expand(r.Dest, uid, gid, pid, procname, c.Resolver)
	controllers := r.Controllers.Slice()

	if IsTemplate(r.Dest, expanded) {
		if err := resolvePath(c.Driver, c.Lib, expanded, controllers, c.Templates); err != nil {
			return err
		}
	}

	for _, ctrl := range controllers {
		target := c.Lib.Paths.Build(expanded, ctrl, "")
		if target == "" {
			continue
		}
		if err := c.Driver.Attach(target, pid, threads); err != nil {
			return err
		}
	}
	return nil
}
