// Package logging installs the process-wide logrus formatter exactly
// once at startup. Every other package takes a logrus.FieldLogger at
// construction time rather than reaching for the global logger, so
// this package only matters to cmd/cgominerd's entrypoint and to tests
// that want the same formatting the real binary uses.
package logging

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var once sync.Once

// Options configures the installed formatter.
type Options struct {
	Level  string // logrus level name, e.g. "info", "debug"
	Format string // "text" (default) or "json"
}

// Install sets the standard logger's formatter and level. Safe to call
// more than once; only the first call takes effect.
func Install(opts Options) {
	once.Do(func() {
		apply(logrus.StandardLogger(), opts)
	})
}

// New builds a standalone *logrus.Logger with the same formatting
// Install would apply, for callers (tests, subcommands) that want an
// isolated logger rather than the mutated global one.
func New(opts Options) *logrus.Logger {
	log := logrus.New()
	apply(log, opts)
	return log
}

func apply(log *logrus.Logger, opts Options) {
	switch opts.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
}
