package daemon

import (
	"bytes"
	"io"

	gsyslog "github.com/hashicorp/go-syslog"
	"github.com/hashicorp/logutils"
)

// logLevels mirrors the bracketed level tokens hclog's standard writer
// emits ("[DEBUG]", "[INFO]", ...), which LevelFilter and SyslogWrapper
// key on below.
var logLevels = []logutils.LogLevel{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}

// LevelFilter returns a logutils.LevelFilter preconfigured with the
// daemon's level set and no minimum (callers set MinLevel).
func LevelFilter() *logutils.LevelFilter {
	return &logutils.LevelFilter{
		Levels: logLevels,
	}
}

// ValidateLevelFilter reports whether level is one filt.Levels accepts.
func ValidateLevelFilter(level logutils.LogLevel, filt *logutils.LevelFilter) bool {
	for _, l := range filt.Levels {
		if l == level {
			return true
		}
	}
	return false
}

// SyslogWrapper forwards already-leveled log lines (as hclog's standard
// writer formats them, "[LEVEL] message") to a syslog facility at the
// matching priority, dropping lines below filt.MinLevel (spec §A.1;
// SPEC_FULL.md §B "optional syslog output for the daemon's own log").
type SyslogWrapper struct {
	L    gsyslog.Syslogger
	Filt *logutils.LevelFilter
}

// NewSyslogWrapper opens a syslog connection at facility (e.g. "DAEMON",
// "LOCAL0") tagged cgrulesengd and wraps it with a level filter at
// minLevel.
func NewSyslogWrapper(facility string, minLevel logutils.LogLevel) (*SyslogWrapper, error) {
	l, err := gsyslog.NewLogger(gsyslog.LOG_NOTICE, facility, "cgrulesengd")
	if err != nil {
		return nil, err
	}
	filt := LevelFilter()
	filt.MinLevel = minLevel
	return &SyslogWrapper{L: l, Filt: filt}, nil
}

// Write implements io.Writer, used as an hclog.LoggerOptions.Output.
func (s *SyslogWrapper) Write(p []byte) (int, error) {
	level := extractLevel(p)
	if level != "" && !s.Filt.Check([]byte(p)) {
		return len(p), nil
	}

	priority := gsyslog.LOG_NOTICE
	switch level {
	case "TRACE", "DEBUG":
		priority = gsyslog.LOG_DEBUG
	case "INFO":
		priority = gsyslog.LOG_INFO
	case "WARN":
		priority = gsyslog.LOG_WARNING
	case "ERROR":
		priority = gsyslog.LOG_ERR
	}

	err := s.L.WriteLevel(priority, p)
	return len(p), err
}

var _ io.Writer = (*SyslogWrapper)(nil)

func extractLevel(p []byte) string {
	start := bytes.IndexByte(p, '[')
	end := bytes.IndexByte(p, ']')
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return string(p[start+1 : end])
}
