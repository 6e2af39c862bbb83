package classify

import (
	"os"
	"strings"

	"github.com/libcgroup/libcgroup-sub000/cgctx"
	"github.com/libcgroup/libcgroup-sub000/fs"
	"github.com/libcgroup/libcgroup-sub000/group"
)

// TemplateDB holds named template Groups used to instantiate a leaf
// segment of a classified destination (spec §4.8 step 2). The template
// Group itself is created under the target name (see instantiateTemplate).
type TemplateDB struct {
	templates map[string]*group.Group
}

// NewTemplateDB returns an empty database; use Add to register templates.
func NewTemplateDB() *TemplateDB {
	return &TemplateDB{templates: make(map[string]*group.Group)}
}

// Add registers a named template. name is looked up against a
// destination's leaf path segment.
func (db *TemplateDB) Add(name string, tmpl *group.Group) {
	db.templates = orInit(db.templates)
	db.templates[name] = tmpl
}

func orInit(m map[string]*group.Group) map[string]*group.Group {
	if m != nil {
		return m
	}
	return make(map[string]*group.Group)
}

func (db *TemplateDB) lookup(name string) (*group.Group, bool) {
	if db == nil {
		return nil, false
	}
	t, ok := db.templates[name]
	return t, ok
}

// resolvePath walks dest's path segments and, for each that does not yet
// exist under any controller in controllers, either creates an empty
// cgroup or instantiates it from a named template for the leaf segment
// (spec §4.8 step 2). driver and lib supply the filesystem and mount
// context to probe existence and perform creation.
func resolvePath(driver *fs.Driver, lib *cgctx.Library, dest string, controllers []string, db *TemplateDB) error {
	segs := strings.Split(strings.Trim(dest, "/"), "/")
	cur := ""
	for i, seg := range segs {
		if seg == "" {
			continue
		}
		cur = cur + "/" + seg
		isLeaf := i == len(segs)-1

		if groupExists(lib, cur, controllers) {
			continue
		}

		if isLeaf {
			if tmpl, ok := db.lookup(seg); ok {
				if err := instantiateTemplate(driver, tmpl, cur, controllers); err != nil {
					return err
				}
				continue
			}
		}

		g := group.New(cur)
		for _, c := range controllers {
			g.AddController(c)
		}
		if err := driver.Create(g, true); err != nil {
			return err
		}
	}
	return nil
}

func groupExists(lib *cgctx.Library, name string, controllers []string) bool {
	for _, c := range controllers {
		target := lib.Paths.Build(name, c, "")
		if target == "" {
			continue
		}
		if _, err := os.Stat(target); err == nil {
			return true
		}
	}
	return false
}

// instantiateTemplate swaps tmpl's name to target, invokes Create, and
// swaps it back (spec §4.8 step 2: "temporarily swaps the template
// cgroup's name ... and swaps back"). No lock is held, so concurrent
// callers sharing tmpl may observe the swapped name. Controllers missing
// from tmpl are added to it and stay there.
func instantiateTemplate(driver *fs.Driver, tmpl *group.Group, target string, controllers []string) error {
	original := tmpl.Name
	tmpl.Name = target
	defer func() { tmpl.Name = original }()

	for _, c := range controllers {
		if tmpl.GetController(c) == nil {
			tmpl.AddController(c)
		}
	}
	return driver.Create(tmpl, true)
}
