// Package bundler orchestrates a full build: entry selection, graph
// construction, linking, and artifact caching.
package bundler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"previewkit/internal/diag"
	"previewkit/internal/graph"
	"previewkit/internal/linker"
	"previewkit/internal/logging"
	"previewkit/internal/shim"
	"previewkit/internal/vfs"
)

// entryCandidates is the probe order when no entry path is given.
var entryCandidates = []string{
	"/App.tsx", "/App.ts", "/App.jsx", "/App.js", "/index.tsx", "/index.js",
}

// Artifact is the result of one build. Code is empty when the build
// failed; Diagnostics then explains why.
type Artifact struct {
	// Entry is the module the bundle executes last.
	Entry string
	// Code is the executable bundle, or empty on failure.
	Code string
	// Diagnostics lists build problems, sorted.
	Diagnostics []diag.Diagnostic
	// SnapshotHash identifies the input project state.
	SnapshotHash string
}

// OK reports whether the artifact carries runnable code.
func (a *Artifact) OK() bool { return a.Code != "" }

// Bundler builds artifacts. Safe for concurrent use; completed
// artifacts are cached by (entry, snapshot hash, shim table version).
type Bundler struct {
	builder *graph.Builder
	diagCap int

	artifacts *lru.Cache[string, *Artifact]

	builds       atomic.Int64
	artifactHits atomic.Int64
}

// New creates a Bundler on top of a graph builder. artifactCacheSize
// bounds the artifact cache; diagCap bounds diagnostics per build.
func New(builder *graph.Builder, artifactCacheSize, diagCap int) (*Bundler, error) {
	artifacts, err := lru.New[string, *Artifact](artifactCacheSize)
	if err != nil {
		return nil, fmt.Errorf("artifact cache: %w", err)
	}
	return &Bundler{
		builder:   builder,
		diagCap:   diagCap,
		artifacts: artifacts,
	}, nil
}

// Builds reports the number of non-cached builds performed.
func (b *Bundler) Builds() int64 { return b.builds.Load() }

// ArtifactHits reports artifact cache hits.
func (b *Bundler) ArtifactHits() int64 { return b.artifactHits.Load() }

// ModuleCacheHits reports module cache hits of the underlying builder.
func (b *Bundler) ModuleCacheHits() int64 { return b.builder.CacheHits() }

// artifactKey mixes everything that can change bundle bytes.
func artifactKey(entry, snapshotHash string) string {
	return entry + "\x00" + snapshotHash + "\x00" + shim.Version
}

// Build produces an artifact for the snapshot. An empty entryPath
// probes the conventional entry candidates. Build problems come back
// inside the artifact; only infrastructure failures return an error.
func (b *Bundler) Build(ctx context.Context, snapshot *vfs.Snapshot, entryPath string) (*Artifact, error) {
	entry, derr := b.pickEntry(snapshot, entryPath)
	if derr != nil {
		return &Artifact{
			Entry:        entryPath,
			Diagnostics:  []diag.Diagnostic{*derr},
			SnapshotHash: snapshot.Hash(),
		}, nil
	}

	key := artifactKey(entry, snapshot.Hash())
	if art, ok := b.artifacts.Get(key); ok {
		b.artifactHits.Add(1)
		return art, nil
	}
	b.builds.Add(1)

	start := time.Now()
	collector := diag.NewCollector(b.diagCap)

	g, err := b.builder.Build(ctx, snapshot, entry, collector)
	if err != nil {
		return nil, err
	}

	art := &Artifact{
		Entry:        entry,
		Diagnostics:  collector.Items(),
		SnapshotHash: snapshot.Hash(),
	}

	// Any error diagnostic suppresses execution; a broken bundle never
	// reaches the browser.
	if g != nil && !collector.HasErrors() {
		code, err := linker.Link(g)
		if err != nil {
			return nil, err
		}
		art.Code = code
	}

	// Cache complete artifacts only; failed builds are retried in full.
	if art.OK() {
		b.artifacts.ContainsOrAdd(key, art)
		for _, d := range art.Diagnostics {
			if d.Severity == diag.SeverityWarning {
				logging.L(logging.CategoryBundle).Warn("build warning",
					zap.String("entry", entry),
					zap.String("diagnostic", d.String()))
			}
		}
	}

	logging.L(logging.CategoryBundle).Info("build finished",
		zap.String("entry", entry),
		zap.Bool("ok", art.OK()),
		zap.Int("diagnostics", len(art.Diagnostics)),
		zap.Duration("took", time.Since(start)))
	return art, nil
}

// pickEntry validates an explicit entry or probes the defaults.
func (b *Bundler) pickEntry(snapshot *vfs.Snapshot, entryPath string) (string, *diag.Diagnostic) {
	if entryPath != "" {
		p := vfs.Normalize(entryPath)
		if snapshot.Has(p) {
			return p, nil
		}
		return "", &diag.Diagnostic{
			Severity: diag.SeverityError,
			Code:     diag.CodeVfsNotFound,
			File:     p,
			Message:  fmt.Sprintf("entry module %s does not exist in the project", p),
			Stage:    diag.StageVFS,
		}
	}
	for _, candidate := range entryCandidates {
		if snapshot.Has(candidate) {
			return candidate, nil
		}
	}
	return "", &diag.Diagnostic{
		Severity: diag.SeverityError,
		Code:     diag.CodeVfsNotFound,
		Message:  fmt.Sprintf("no entry module found; tried %v", entryCandidates),
		Stage:    diag.StageVFS,
	}
}
