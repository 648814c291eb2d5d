// Package resolver binds import specifiers to concrete modules: VFS
// entries, platform shims, or external packages. Resolution order and
// results are deterministic for a given snapshot and memoized per
// (importer, specifier).
package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"previewkit/internal/logging"
	"previewkit/internal/shim"
	"previewkit/internal/vfs"
)

// Sentinel resolution failures. The graph builder turns these into
// positioned diagnostics.
var (
	ErrModuleNotFound = errors.New("module not found")
	ErrUnsupportedAPI = errors.New("unsupported native API")
	ErrUnresolved     = errors.New("unresolved import")
)

// probeExtensions is the extension probing order for VFS resolution.
var probeExtensions = []string{".tsx", ".ts", ".jsx", ".js", ".json"}

var barePattern = regexp.MustCompile(`^(@[a-zA-Z0-9-~][a-zA-Z0-9-._~]*/)?[a-zA-Z0-9-~][a-zA-Z0-9-._~]*(/[a-zA-Z0-9-._~/]+)?$`)

// Kind classifies what a specifier resolved to.
type Kind int

const (
	// KindVFS is a project source file.
	KindVFS Kind = iota
	// KindShim is an exact platform-shim package.
	KindShim
	// KindShimSubpath is a sub-path into a shim's exports.
	KindShimSubpath
	// KindPackage is an external registry package.
	KindPackage
)

// Resolution is the binding for one (importer, specifier) pair.
type Resolution struct {
	Kind     Kind
	ModuleID string

	// Path is set for KindVFS.
	Path string

	// Shim and ShimExport are set for shim kinds.
	Shim       *shim.Module
	ShimExport string

	// Package and Version are set for KindPackage.
	Package string
	Version string
}

// Resolver resolves specifiers against one snapshot. Safe for
// concurrent use.
type Resolver struct {
	snapshot *vfs.Snapshot
	shims    *shim.Table
	manifest map[string]string

	mu   sync.Mutex
	memo map[string]memoEntry
}

type memoEntry struct {
	res Resolution
	err error
}

// New builds a resolver for a snapshot, reading pinned package versions
// from /package.json when the project carries one.
func New(snapshot *vfs.Snapshot, shims *shim.Table) *Resolver {
	return &Resolver{
		snapshot: snapshot,
		shims:    shims,
		manifest: readManifest(snapshot),
		memo:     make(map[string]memoEntry),
	}
}

func readManifest(snapshot *vfs.Snapshot) map[string]string {
	entry, err := snapshot.Get("/package.json")
	if err != nil {
		return nil
	}
	var manifest struct {
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal([]byte(entry.Content), &manifest); err != nil {
		logging.L(logging.CategoryResolve).Warn("unparseable package.json ignored", zap.Error(err))
		return nil
	}
	return manifest.Dependencies
}

// Resolve binds a specifier imported by importer.
func (r *Resolver) Resolve(importer, specifier string) (Resolution, error) {
	key := importer + "\x00" + specifier
	r.mu.Lock()
	if e, ok := r.memo[key]; ok {
		r.mu.Unlock()
		return e.res, e.err
	}
	r.mu.Unlock()

	res, err := r.resolve(importer, specifier)

	r.mu.Lock()
	r.memo[key] = memoEntry{res: res, err: err}
	r.mu.Unlock()
	return res, err
}

func (r *Resolver) resolve(importer, specifier string) (Resolution, error) {
	switch {
	case isRelative(specifier):
		return r.resolveVFS(importer, specifier)

	case r.shims.Covers(specifier):
		return r.resolveShim(importer, specifier)

	case barePattern.MatchString(specifier):
		return r.resolvePackage(specifier), nil

	default:
		return Resolution{}, fmt.Errorf("%w: %q imported by %s", ErrUnresolved, specifier, importer)
	}
}

func isRelative(specifier string) bool {
	return strings.HasPrefix(specifier, "./") ||
		strings.HasPrefix(specifier, "../") ||
		strings.HasPrefix(specifier, "/")
}

// resolveVFS probes the snapshot: exact path, then each extension, then
// directory index files.
func (r *Resolver) resolveVFS(importer, specifier string) (Resolution, error) {
	base := specifier
	if !strings.HasPrefix(specifier, "/") {
		base = path.Join(path.Dir(importer), specifier)
	}
	base = vfs.Normalize(base)

	for _, candidate := range probeCandidates(base) {
		if r.snapshot.Has(candidate) {
			return Resolution{Kind: KindVFS, ModuleID: candidate, Path: candidate}, nil
		}
	}
	return Resolution{}, fmt.Errorf("%w: %q imported by %s", ErrModuleNotFound, specifier, importer)
}

func probeCandidates(base string) []string {
	out := []string{base}
	for _, ext := range probeExtensions {
		out = append(out, base+ext)
	}
	for _, ext := range probeExtensions {
		out = append(out, base+"/index"+ext)
	}
	return out
}

// resolveShim binds an exact shim name or a sub-path against its
// exports. Sub-paths without a matching export are unsupported APIs,
// failing fast rather than silently degrading.
func (r *Resolver) resolveShim(importer, specifier string) (Resolution, error) {
	pkg, rest := shim.SplitSubpath(specifier)
	if rest == "" {
		m, _ := r.shims.Lookup(pkg)
		return Resolution{Kind: KindShim, ModuleID: m.ID, Shim: m}, nil
	}
	m, export, err := r.shims.ResolveSubpath(pkg, rest)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %q imported by %s: %v", ErrUnsupportedAPI, specifier, importer, err)
	}
	return Resolution{
		Kind:       KindShimSubpath,
		ModuleID:   m.ID + "/" + export,
		Shim:       m,
		ShimExport: export,
	}, nil
}

// resolvePackage pins a bare specifier to a registry fetch, using the
// manifest version when present.
func (r *Resolver) resolvePackage(specifier string) Resolution {
	pkg, _ := shim.SplitSubpath(specifier)
	version := r.manifest[pkg]
	if version == "" {
		version = "latest"
	}
	return Resolution{
		Kind:     KindPackage,
		ModuleID: "pkg:" + specifier + "@" + version,
		Package:  specifier,
		Version:  version,
	}
}
