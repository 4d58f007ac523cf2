// Package logging provides categorized structured logging for OntoMed.
// Each subsystem gets a named zap logger so log output can be filtered
// per category (perception, vocabulary, resolver, store, templates).
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryPerception Category = "perception" // entity tagging, dependency matching
	CategoryVocabulary Category = "vocabulary" // keyword sets, lemma cache, learning
	CategoryScoring    Category = "scoring"    // evidence aggregation and calibration
	CategoryResolver   Category = "resolver"   // end-to-end intent resolution
	CategoryOntology   Category = "ontology"   // concept snapshots and pattern refresh
	CategoryStore      Category = "store"      // SQLite persistence
	CategoryTemplates  Category = "templates"  // template registry and watcher
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	loggers = make(map[Category]*zap.SugaredLogger)
)

// Initialize configures the root logger. level is a zap level string
// ("debug", "info", "warn", "error"); development enables console encoding
// with human-readable timestamps.
func Initialize(level string, development bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	root = logger
	loggers = make(map[Category]*zap.SugaredLogger)
	return nil
}

// Get returns the sugared logger for a category, creating it on first use.
// Safe to call before Initialize; falls back to a no-op logger.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}
	base := root
	if base == nil {
		base = zap.NewNop()
	}
	l := base.Named(string(cat)).Sugar()
	loggers[cat] = l
	return l
}

// Sync flushes buffered log entries. Best effort; errors are ignored the
// way zap recommends for stderr sinks.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
