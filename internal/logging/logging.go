// Package logging provides categorized zap logging for previewkit.
// Every subsystem logs through a named child of one shared root logger,
// so a single flag flips the whole process between production and debug
// verbosity.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"
	CategoryVFS       Category = "vfs"
	CategoryResolve   Category = "resolve"
	CategoryTransform Category = "transform"
	CategoryGraph     Category = "graph"
	CategoryLink      Category = "link"
	CategoryBundle    Category = "bundle"
	CategoryPreview   Category = "preview"
	CategoryRegistry  Category = "registry"
	CategoryProject   Category = "project"
	CategoryServer    Category = "server"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init builds the process root logger. Safe to call more than once; the
// last call wins. Returns the root so main can defer Sync.
func Init(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	Replace(logger)
	return logger, nil
}

// Replace swaps the root logger. Tests use this with zaptest loggers.
func Replace(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	root = logger
}

// L returns the logger for a category.
func L(cat Category) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(string(cat))
}
