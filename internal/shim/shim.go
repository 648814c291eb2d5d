// Package shim maps native-mobile package names to browser-executable
// substitutes. The table is a closed allowlist built once at startup:
// lookups are exact-name, and anything outside the table fails fast
// instead of silently degrading in the preview.
package shim

import (
	"fmt"
	"sort"
	"strings"
)

// Version tags the shim table. It participates in bundle cache keys so
// a shim change invalidates previously cached artifacts.
const Version = "2026.08"

// Module is one browser substitute. Source is a pre-lowered module body
// in register form: it assigns __exp members and may call __req for
// other shims listed in Deps.
type Module struct {
	Name    string
	ID      string
	Exports []string
	Deps    map[string]string
	Source  string
}

// HasExport reports whether the shim exports name.
func (m *Module) HasExport(name string) bool {
	for _, e := range m.Exports {
		if e == name {
			return true
		}
	}
	return false
}

// Table is the closed package-name → shim mapping.
type Table struct {
	modules map[string]*Module
}

// NewTable builds the fixed allowlist.
func NewTable() *Table {
	t := &Table{modules: make(map[string]*Module)}
	for _, m := range builtins() {
		t.modules[m.Name] = m
	}
	return t
}

// Lookup returns the shim registered under the exact package name.
func (t *Table) Lookup(name string) (*Module, bool) {
	m, ok := t.modules[name]
	return m, ok
}

// Covers reports whether specifier names a shimmed package, either
// exactly or via a sub-path of one.
func (t *Table) Covers(specifier string) bool {
	pkg, _ := SplitSubpath(specifier)
	_, ok := t.modules[pkg]
	return ok
}

// ResolveSubpath resolves `pkg/rest` against the shim's exports: the
// last path segment must be an exported name of the same shim. A miss
// is an UnsupportedAPI condition surfaced by the resolver.
func (t *Table) ResolveSubpath(pkg, rest string) (*Module, string, error) {
	m, ok := t.modules[pkg]
	if !ok {
		return nil, "", fmt.Errorf("package %q is not shimmed", pkg)
	}
	segs := strings.Split(rest, "/")
	export := segs[len(segs)-1]
	if !m.HasExport(export) {
		return nil, "", fmt.Errorf("%s has no browser substitute for %q", pkg, rest)
	}
	return m, export, nil
}

// Names returns all shimmed package names, sorted.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.modules))
	for name := range t.modules {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SplitSubpath splits an import specifier into package name and
// sub-path, honoring @scope/name packages.
func SplitSubpath(specifier string) (pkg, rest string) {
	parts := strings.Split(specifier, "/")
	take := 1
	if strings.HasPrefix(specifier, "@") && len(parts) > 1 {
		take = 2
	}
	pkg = strings.Join(parts[:take], "/")
	if len(parts) > take {
		rest = strings.Join(parts[take:], "/")
	}
	return pkg, rest
}
