// Command cgrulesengd is the rules-engine daemon (spec §4.9): it
// subscribes to kernel process events, classifies pids against the rule
// database, and serves a local control socket that lets other processes
// mark pids as sticky (unchanged).
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/logutils"
	"github.com/ryanuber/columnize"

	"github.com/libcgroup/libcgroup-sub000/cgctx"
	"github.com/libcgroup/libcgroup-sub000/classify"
	"github.com/libcgroup/libcgroup-sub000/daemon"
	"github.com/libcgroup/libcgroup-sub000/fs"
	"github.com/libcgroup/libcgroup-sub000/group"
	"github.com/libcgroup/libcgroup-sub000/match"
	"github.com/libcgroup/libcgroup-sub000/mount"
	"github.com/libcgroup/libcgroup-sub000/registry"
	"github.com/libcgroup/libcgroup-sub000/rules"
)

type config struct {
	rulesPath      string
	templatePath   string
	controlSocket  string
	socketUID      int
	socketGID      int
	socketMode     uint
	logLevel       string
	logJSON        bool
	syslog         bool
	syslogFacility string
	pidFile        string

	dumpRules  bool
	dumpMounts bool
	dumpGroup  string
}

func parseFlags(args []string) (*config, error) {
	flagSet := flag.NewFlagSet("cgrulesengd", flag.ContinueOnError)
	cfg := &config{}

	flagSet.StringVar(&cfg.rulesPath, "rules-file", "/etc/cgrules.conf", "path to the rules file or drop-in directory")
	flagSet.StringVar(&cfg.templatePath, "template-file", "", "path to the template rules file or drop-in directory (optional)")
	flagSet.StringVar(&cfg.controlSocket, "control-socket", daemon.ControlSocketPath, "UNIX control socket path")
	flagSet.IntVar(&cfg.socketUID, "socket-uid", -1, "control socket owner uid (-1 leaves it as created)")
	flagSet.IntVar(&cfg.socketGID, "socket-gid", -1, "control socket owner gid (-1 leaves it as created)")
	flagSet.UintVar(&cfg.socketMode, "socket-mode", 0660, "control socket permission bits")
	flagSet.StringVar(&cfg.logLevel, "log-level", "INFO", "minimum log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	flagSet.BoolVar(&cfg.logJSON, "log-json", false, "emit structured JSON logs instead of human-readable text")
	flagSet.BoolVar(&cfg.syslog, "syslog", false, "also send log output to syslog")
	flagSet.StringVar(&cfg.syslogFacility, "syslog-facility", "DAEMON", "syslog facility to use with -syslog")
	flagSet.StringVar(&cfg.pidFile, "pid-file", "", "write the daemon's pid to this path")

	flagSet.BoolVar(&cfg.dumpRules, "dump-rules", false, "print the parsed rule list and exit")
	flagSet.BoolVar(&cfg.dumpMounts, "dump-mounts", false, "print the probed mount table and exit")
	flagSet.StringVar(&cfg.dumpGroup, "dump-group", "", "print every mounted controller's settings for this group and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cgrulesengd:", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config) (hclog.Logger, error) {
	opts := &hclog.LoggerOptions{
		Name:       "cgrulesengd",
		Level:      hclog.LevelFromString(cfg.logLevel),
		JSONFormat: cfg.logJSON,
	}
	if cfg.syslog {
		wrapper, err := daemon.NewSyslogWrapper(cfg.syslogFacility, logutils.LogLevel(strings.ToUpper(cfg.logLevel)))
		if err != nil {
			return nil, fmt.Errorf("opening syslog: %w", err)
		}
		opts.Output = wrapper
	}
	return hclog.New(opts), nil
}

func run(cfg *config, log hclog.Logger) error {
	prober := mount.NewProber(log.Named("mount"))
	table, err := prober.Probe()
	if err != nil {
		return fmt.Errorf("probing mount table: %w", err)
	}

	switch {
	case cfg.dumpMounts:
		return dumpMounts(table)
	case cfg.dumpRules:
		return dumpRules(log, cfg.rulesPath)
	case cfg.dumpGroup != "":
		lib := cgctx.New(log, table)
		driver := fs.New(lib)
		g, err := driver.ReadAll(cfg.dumpGroup)
		if err != nil {
			return err
		}
		return dumpGroup(g)
	}

	if cfg.pidFile != "" {
		if err := os.WriteFile(cfg.pidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
			return fmt.Errorf("writing pid file: %w", err)
		}
		defer os.Remove(cfg.pidFile)
	}

	lib := cgctx.New(log, table)
	driver := fs.New(lib)

	store := rules.NewStore(log.Named("rules"), cfg.rulesPath)
	if err := store.Reload(); err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}

	templates := classify.NewTemplateDB()
	if cfg.templatePath != "" {
		if err := loadTemplates(templates, cfg.templatePath); err != nil {
			return fmt.Errorf("loading templates: %w", err)
		}
	}

	matcher := match.New(store, match.ResolveGroup)
	classifier := classify.New(matcher, driver, lib, templates)
	reg := registry.New()

	src, err := daemon.OpenNetlinkSource()
	if err != nil {
		return fmt.Errorf("opening process-event channel: %w", err)
	}
	defer src.Close()

	listener, err := listenControl(cfg)
	if err != nil {
		return fmt.Errorf("opening control socket: %w", err)
	}
	defer listener.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := daemon.ServeControl(listener, reg); err != nil {
			log.Warn("control socket server stopped", "error", err)
		}
	}()

	handleReloadSignals(ctx, log, store, templates, cfg.templatePath)

	d := daemon.New(log.Named("daemon"), src, classifier, reg)
	return d.Run(ctx)
}

// handleReloadSignals installs SIGUSR2 (reload rules) and SIGUSR1
// (reload the separate template list) handlers, per spec §4.6/§4.9. Go
// delivers signals over a channel rather than interrupting a blocking
// syscall, so there is no analog to the original daemon's block/unblock
// dance around its poll loop: a reload simply runs on its own goroutine
// whenever the signal arrives.
func handleReloadSignals(ctx context.Context, log hclog.Logger, store *rules.Store, templates *classify.TemplateDB, templatePath string) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(ch)
				return
			case sig := <-ch:
				switch sig {
				case syscall.SIGUSR2:
					if err := store.Reload(); err != nil {
						log.Warn("rule reload failed", "error", err)
					}
				case syscall.SIGUSR1:
					if templatePath == "" {
						continue
					}
					if err := loadTemplates(templates, templatePath); err != nil {
						log.Warn("template reload failed", "error", err)
					}
				}
			}
		}
	}()
}

func listenControl(cfg *config) (net.Listener, error) {
	_ = os.Remove(cfg.controlSocket)
	l, err := net.Listen("unix", cfg.controlSocket)
	if err != nil {
		return nil, err
	}
	if cfg.socketUID >= 0 || cfg.socketGID >= 0 {
		uid, gid := cfg.socketUID, cfg.socketGID
		if uid < 0 {
			uid = os.Getuid()
		}
		if gid < 0 {
			gid = os.Getgid()
		}
		if err := os.Chown(cfg.controlSocket, uid, gid); err != nil {
			l.Close()
			return nil, err
		}
	}
	if err := os.Chmod(cfg.controlSocket, os.FileMode(cfg.socketMode)); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// loadTemplates parses path with the rule database's own line grammar
// (spec §4.6) and registers the last path segment of each parsed rule's
// destination as a template name, carrying its controller set. The template file does not define a
// settings block of its own here; template bodies (per-setting values)
// are registered programmatically via TemplateDB.Add by callers that
// need them, the same way a template-shaped Rule is turned into a
// cgroup by classify.resolvePath/instantiateTemplate (spec §4.8 step 2).
func loadTemplates(db *classify.TemplateDB, path string) error {
	parsed := rules.NewStore(hclog.NewNullLogger(), path)
	if err := parsed.Reload(); err != nil {
		return err
	}
	for _, r := range parsed.Rules() {
		if !r.IsHead() || r.Dest == "" {
			continue
		}
		seg := r.Dest
		if i := strings.LastIndex(seg, "/"); i >= 0 {
			seg = seg[i+1:]
		}
		g := templateGroup(seg, r.Controllers.Slice())
		db.Add(seg, g)
	}
	return nil
}

func templateGroup(name string, controllers []string) *group.Group {
	g := group.New(name)
	for _, c := range controllers {
		g.AddController(c)
	}
	return g
}

func dumpMounts(table *mount.Table) error {
	lines := []string{"CONTROLLER | VERSION | MOUNT | SHARED"}
	for _, e := range table.All() {
		lines = append(lines, fmt.Sprintf("%s | %s | %s | %t", e.Name, e.Version, e.Canonical(), e.Shared))
	}
	fmt.Println(columnize.SimpleFormat(lines))
	fmt.Println("mode:", table.Mode())
	if empty := table.EmptyV2Mounts(); len(empty) > 0 {
		fmt.Println("cgroup2 mounts with no controllers enabled:", strings.Join(empty, ", "))
	}
	return nil
}

func dumpRules(log hclog.Logger, path string) error {
	store := rules.NewStore(log.Named("rules"), path)
	if err := store.Reload(); err != nil {
		return err
	}
	lines := []string{"UID | GID | GROUP | PROCNAME | DEST | CONTROLLERS | IGNORE"}
	for _, r := range store.Rules() {
		lines = append(lines, fmt.Sprintf("%d | %d | %s | %s | %s | %s | %t",
			r.UID, r.GID, r.Group, r.Procname, r.Dest, strings.Join(r.Controllers.Slice(), ","), r.Ignore))
	}
	fmt.Println(columnize.SimpleFormat(lines))
	return nil
}

func dumpGroup(g *group.Group) error {
	lines := []string{"CONTROLLER | SETTING | VALUE"}
	for _, c := range g.Controllers {
		for _, s := range c.Settings {
			lines = append(lines, fmt.Sprintf("%s | %s | %s", c.Name, s.Name, s.Value))
		}
	}
	fmt.Println(columnize.SimpleFormat(lines))
	return nil
}
