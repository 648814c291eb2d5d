// Package graph builds the module dependency graph for one bundle.
// Traversal starts at the entry module and walks every reachable
// import, resolving and transforming each (path, content hash) exactly
// once: a bounded worker pool does the fan-out, single-flight collapses
// concurrent discovery of the same module, and a shared LRU carries
// immutable module records across builds.
package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	graphlib "github.com/dominikbraun/graph"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"previewkit/internal/diag"
	"previewkit/internal/logging"
	"previewkit/internal/registry"
	"previewkit/internal/resolver"
	"previewkit/internal/shim"
	"previewkit/internal/transform"
	"previewkit/internal/vfs"
)

// ModuleRecord is the immutable, cacheable result of resolving and
// transforming one module.
type ModuleRecord struct {
	// ID is the runtime module id: a VFS path, "shim:<pkg>",
	// "shim:<pkg>/<export>" or "pkg:<name>@<version>".
	ID string
	// OriginKey identifies where the module came from.
	OriginKey string
	// SourceHash is the content hash of the module source.
	SourceHash string
	// Body is the lowered executable body. Empty when the module failed
	// to transform.
	Body string
	// Imports lists import sites in source order.
	Imports []transform.ImportRef
	// ResolvedImports maps each import specifier to a module ID. An
	// unresolvable specifier is absent here and present in Diagnostics.
	ResolvedImports map[string]string
	// Exports lists exported binding names.
	Exports []string
	// Diagnostics carries this module's build problems.
	Diagnostics []diag.Diagnostic
}

// DependencyGraph is the build product handed to the linker.
type DependencyGraph struct {
	Modules map[string]*ModuleRecord
	EntryID string
	// Order lists module IDs dependencies-first; inside a cycle the
	// runtime's live exports objects carry first references instead.
	Order []string
}

// Builder walks dependency graphs. One Builder serves many concurrent
// builds; its module cache is shared across them.
type Builder struct {
	shims    *shim.Table
	registry *registry.Client
	workers  int

	cache *lru.Cache[string, *ModuleRecord]
	group singleflight.Group
	pool  sync.Pool

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

// NewBuilder creates a Builder with a module cache of cacheSize records
// and a per-build worker pool of the given size.
func NewBuilder(shims *shim.Table, reg *registry.Client, cacheSize, workers int) (*Builder, error) {
	cache, err := lru.New[string, *ModuleRecord](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("module cache: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	return &Builder{
		shims:    shims,
		registry: reg,
		workers:  workers,
		cache:    cache,
		pool: sync.Pool{New: func() any {
			return transform.New()
		}},
	}, nil
}

// CacheHits returns the number of module-cache hits since creation.
func (b *Builder) CacheHits() int64 { return b.cacheHits.Load() }

// CacheMisses returns the number of module-cache misses since creation.
func (b *Builder) CacheMisses() int64 { return b.cacheMisses.Load() }

// task identifies one module to process plus the import site that
// discovered it, for diagnostics.
type task struct {
	res      resolver.Resolution
	importer string
	line     int
	col      int
}

// Build walks the graph from entryPath. Resolution and transform
// problems land in the collector; only infrastructure failures return
// an error.
func (b *Builder) Build(ctx context.Context, snapshot *vfs.Snapshot, entryPath string, collector *diag.Collector) (*DependencyGraph, error) {
	entry, err := snapshot.Get(entryPath)
	if err != nil {
		collector.Add(diag.Diagnostic{
			Severity: diag.SeverityError,
			Code:     diag.CodeVfsNotFound,
			File:     entryPath,
			Message:  fmt.Sprintf("entry module %s does not exist in the project", entryPath),
			Stage:    diag.StageVFS,
		})
		return nil, nil
	}

	w := &walk{
		builder:   b,
		snapshot:  snapshot,
		resolver:  resolver.New(snapshot, b.shims),
		collector: collector,
		records:   make(map[string]*ModuleRecord),
		visited:   make(map[string]bool),
	}
	w.eg, w.ctx = errgroup.WithContext(ctx)
	w.eg.SetLimit(b.workers)

	if err := w.enqueue(task{res: resolver.Resolution{
		Kind:     resolver.KindVFS,
		ModuleID: entry.Path,
		Path:     entry.Path,
	}}); err != nil {
		return nil, err
	}
	if err := w.eg.Wait(); err != nil {
		return nil, err
	}

	g := &DependencyGraph{
		Modules: w.records,
		EntryID: entry.Path,
	}
	g.Order = executionOrder(w.records, entry.Path)
	b.logCycles(w.records)

	logging.L(logging.CategoryGraph).Debug("graph built",
		zap.String("entry", entry.Path),
		zap.Int("modules", len(g.Order)),
		zap.Int64("cache_hits", b.CacheHits()))
	return g, nil
}

// walk is the per-build traversal state.
type walk struct {
	builder   *Builder
	snapshot  *vfs.Snapshot
	resolver  *resolver.Resolver
	collector *diag.Collector

	eg  *errgroup.Group
	ctx context.Context

	mu      sync.Mutex
	records map[string]*ModuleRecord
	visited map[string]bool
}

// enqueue schedules a module unless it was already discovered. When
// the pool is saturated the caller processes the module inline; a
// worker must never block on pool admission while holding a slot.
func (w *walk) enqueue(t task) error {
	w.mu.Lock()
	if w.visited[t.res.ModuleID] {
		w.mu.Unlock()
		return nil
	}
	w.visited[t.res.ModuleID] = true
	w.mu.Unlock()

	if w.eg.TryGo(func() error { return w.process(t) }) {
		return nil
	}
	return w.process(t)
}

func (w *walk) process(t task) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	rec, err := w.loadRecord(t)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	w.mu.Lock()
	w.records[rec.ID] = rec
	w.mu.Unlock()

	w.collector.AddAll(rec.Diagnostics)

	// Resolve this record's imports against the current snapshot and
	// fan out into newly discovered modules.
	for _, imp := range rec.Imports {
		if _, done := rec.ResolvedImports[imp.Specifier]; done {
			continue
		}
		res, rerr := w.resolver.Resolve(rec.ID, imp.Specifier)
		if rerr != nil {
			w.collector.Add(resolutionDiagnostic(rerr, rec.ID, imp))
			continue
		}
		rec.ResolvedImports[imp.Specifier] = res.ModuleID
		if err := w.enqueue(task{res: res, importer: rec.ID, line: imp.Line, col: imp.Col}); err != nil {
			return err
		}
	}

	// Shim-declared dependencies fan out too.
	if t.res.Kind == resolver.KindShim || t.res.Kind == resolver.KindShimSubpath {
		for _, dep := range sortedSpecifiers(rec.ResolvedImports) {
			id := rec.ResolvedImports[dep]
			m, ok := w.builder.shims.Lookup(dep)
			if !ok || m.ID != id {
				continue
			}
			if err := w.enqueue(task{res: resolver.Resolution{Kind: resolver.KindShim, ModuleID: m.ID, Shim: m}, importer: rec.ID}); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadRecord produces the ModuleRecord for a task, consulting the
// shared cache for VFS modules. Returns nil when the module could not
// be loaded; the failure is already in the collector.
func (w *walk) loadRecord(t task) (*ModuleRecord, error) {
	switch t.res.Kind {
	case resolver.KindVFS:
		return w.loadVFSModule(t)
	case resolver.KindShim:
		return shimRecord(t.res.Shim), nil
	case resolver.KindShimSubpath:
		return shimSubpathRecord(t.res), nil
	case resolver.KindPackage:
		return w.loadPackageModule(t)
	}
	return nil, fmt.Errorf("unknown resolution kind %d", t.res.Kind)
}

// loadVFSModule transforms a project file, deduplicating concurrent
// work via single-flight and reusing cached records by (path, content
// hash). Records enter the shared cache only when complete, so an
// abandoned build can never publish partial state.
func (w *walk) loadVFSModule(t task) (*ModuleRecord, error) {
	entry, err := w.snapshot.Get(t.res.Path)
	if err != nil {
		w.collector.Add(diag.Diagnostic{
			Severity: diag.SeverityError,
			Code:     diag.CodeVfsNotFound,
			File:     t.res.Path,
			Message:  fmt.Sprintf("%s vanished from the snapshot", t.res.Path),
			Stage:    diag.StageVFS,
		})
		return nil, nil
	}

	key := transform.ModuleID(entry.Path, entry.ContentHash)
	if rec, ok := w.builder.cache.Get(key); ok {
		w.builder.cacheHits.Add(1)
		return cloneRecord(rec), nil
	}
	w.builder.cacheMisses.Add(1)

	// The flight serves every build waiting on this key, so it must not
	// die with the caller that happened to start it: a disconnecting
	// request would fail healthy peers mid-transform. The cancelled
	// build still aborts in process() via its own context.
	flightCtx := context.WithoutCancel(w.ctx)
	v, err, _ := w.builder.group.Do(key, func() (any, error) {
		rec, err := w.builder.transformEntry(flightCtx, entry)
		if err != nil {
			return nil, err
		}
		if len(rec.Diagnostics) == 0 {
			w.builder.cache.ContainsOrAdd(key, rec)
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneRecord(v.(*ModuleRecord)), nil
}

// transformEntry lowers one VFS entry into a fresh record.
func (b *Builder) transformEntry(ctx context.Context, entry vfs.Entry) (*ModuleRecord, error) {
	rec := &ModuleRecord{
		ID:              entry.Path,
		OriginKey:       "vfs:" + entry.Path,
		SourceHash:      entry.ContentHash,
		ResolvedImports: make(map[string]string),
	}

	if isJSONPath(entry.Path) {
		rec.Body = transform.JSONModule(entry.Content)
		rec.Exports = []string{"default"}
		return rec, nil
	}

	tr := b.pool.Get().(*transform.Transformer)
	defer b.pool.Put(tr)

	res, err := tr.File(ctx, entry.Path, entry.Content)
	if err != nil {
		return nil, err
	}
	rec.Body = res.Body
	rec.Imports = res.Imports
	rec.Exports = res.Exports
	rec.Diagnostics = res.Diagnostics
	return rec, nil
}

// loadPackageModule fetches and lowers an external package. Fetch
// failures become diagnostics at the importing site.
func (w *walk) loadPackageModule(t task) (*ModuleRecord, error) {
	if w.builder.registry == nil {
		w.collector.Add(diag.Diagnostic{
			Severity: diag.SeverityError,
			Code:     diag.CodeUnresolvedImport,
			File:     t.importer,
			Line:     t.line,
			Col:      t.col,
			Message:  fmt.Sprintf("external package %s@%s cannot be fetched: registry disabled", t.res.Package, t.res.Version),
			Stage:    diag.StageResolve,
		})
		return nil, nil
	}

	src, err := w.builder.registry.Fetch(w.ctx, t.res.Package, t.res.Version)
	if err != nil {
		w.collector.Add(packageDiagnostic(err, t))
		return nil, nil
	}

	tr := w.builder.pool.Get().(*transform.Transformer)
	defer w.builder.pool.Put(tr)

	res, terr := tr.File(w.ctx, "/"+t.res.Package+".js", src)
	if terr != nil {
		return nil, terr
	}
	rec := &ModuleRecord{
		ID:              t.res.ModuleID,
		OriginKey:       t.res.ModuleID,
		SourceHash:      vfs.HashContent(src),
		Body:            res.Body,
		Imports:         res.Imports,
		Exports:         res.Exports,
		ResolvedImports: make(map[string]string),
	}
	for i := range res.Diagnostics {
		d := res.Diagnostics[i]
		d.File = t.res.ModuleID
		rec.Diagnostics = append(rec.Diagnostics, d)
	}
	return rec, nil
}

func shimRecord(m *shim.Module) *ModuleRecord {
	resolved := make(map[string]string, len(m.Deps))
	for spec, id := range m.Deps {
		resolved[spec] = id
	}
	return &ModuleRecord{
		ID:              m.ID,
		OriginKey:       m.ID + "#" + shim.Version,
		SourceHash:      vfs.HashContent(m.Source),
		Body:            m.Source,
		Exports:         m.Exports,
		ResolvedImports: resolved,
	}
}

// shimSubpathRecord synthesizes a re-export of one shim export.
func shimSubpathRecord(res resolver.Resolution) *ModuleRecord {
	body := fmt.Sprintf("const _s = __req(%q);\n__exp.default = _s.%s;\n__exp.%s = _s.%s;",
		res.Shim.Name, res.ShimExport, res.ShimExport, res.ShimExport)
	return &ModuleRecord{
		ID:              res.ModuleID,
		OriginKey:       res.ModuleID + "#" + shim.Version,
		SourceHash:      vfs.HashContent(body),
		Body:            body,
		Exports:         []string{"default", res.ShimExport},
		ResolvedImports: map[string]string{res.Shim.Name: res.Shim.ID},
	}
}

func resolutionDiagnostic(err error, importer string, imp transform.ImportRef) diag.Diagnostic {
	code := diag.CodeUnresolvedImport
	switch {
	case errors.Is(err, resolver.ErrModuleNotFound):
		code = diag.CodeModuleNotFound
	case errors.Is(err, resolver.ErrUnsupportedAPI):
		code = diag.CodeUnsupportedAPI
	}
	return diag.Diagnostic{
		Severity: diag.SeverityError,
		Code:     code,
		File:     importer,
		Line:     imp.Line,
		Col:      imp.Col,
		Message:  err.Error(),
		Stage:    diag.StageResolve,
	}
}

func packageDiagnostic(err error, t task) diag.Diagnostic {
	code := diag.CodeModuleNotFound
	if errors.Is(err, registry.ErrTimeout) {
		code = diag.CodeResolutionTimeout
	}
	return diag.Diagnostic{
		Severity: diag.SeverityError,
		Code:     code,
		File:     t.importer,
		Line:     t.line,
		Col:      t.col,
		Message:  err.Error(),
		Stage:    diag.StageResolve,
	}
}

// cloneRecord copies a record so per-build resolution never mutates a
// cached one.
func cloneRecord(rec *ModuleRecord) *ModuleRecord {
	cp := *rec
	cp.ResolvedImports = make(map[string]string, len(rec.ResolvedImports))
	for k, v := range rec.ResolvedImports {
		cp.ResolvedImports[k] = v
	}
	return &cp
}

func isJSONPath(p string) bool {
	return len(p) > 5 && p[len(p)-5:] == ".json"
}

func sortedSpecifiers(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// executionOrder is a deterministic iterative DFS post-order from the
// entry, following each module's imports in source order.
func executionOrder(records map[string]*ModuleRecord, entryID string) []string {
	var order []string
	seen := make(map[string]bool)

	type frame struct {
		id   string
		next int
	}
	stack := []frame{{id: entryID}}
	seen[entryID] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		rec := records[top.id]
		if rec == nil {
			order = append(order, top.id)
			stack = stack[:len(stack)-1]
			continue
		}

		deps := dependencyIDs(rec)
		if top.next < len(deps) {
			dep := deps[top.next]
			top.next++
			if !seen[dep] && records[dep] != nil {
				seen[dep] = true
				stack = append(stack, frame{id: dep})
			}
			continue
		}
		order = append(order, top.id)
		stack = stack[:len(stack)-1]
	}
	return order
}

// dependencyIDs lists a record's resolved dependencies in source order,
// with any non-import deps (shim-declared) appended sorted.
func dependencyIDs(rec *ModuleRecord) []string {
	var out []string
	seenSpec := make(map[string]bool)
	for _, imp := range rec.Imports {
		if seenSpec[imp.Specifier] {
			continue
		}
		seenSpec[imp.Specifier] = true
		if id, ok := rec.ResolvedImports[imp.Specifier]; ok {
			out = append(out, id)
		}
	}
	for _, spec := range sortedSpecifiers(rec.ResolvedImports) {
		if !seenSpec[spec] {
			out = append(out, rec.ResolvedImports[spec])
		}
	}
	return out
}

// logCycles reports strongly connected components of size > 1. Cycles
// are legal; the runtime's live export objects make them safe.
func (b *Builder) logCycles(records map[string]*ModuleRecord) {
	g := graphlib.New(graphlib.StringHash, graphlib.Directed())
	for id := range records {
		_ = g.AddVertex(id)
	}
	for id, rec := range records {
		for _, dep := range rec.ResolvedImports {
			if _, ok := records[dep]; ok {
				_ = g.AddEdge(id, dep)
			}
		}
	}
	sccs, err := graphlib.StronglyConnectedComponents(g)
	if err != nil {
		return
	}
	for _, scc := range sccs {
		if len(scc) > 1 {
			sort.Strings(scc)
			logging.L(logging.CategoryGraph).Debug("import cycle",
				zap.Strings("modules", scc))
		}
	}
}
