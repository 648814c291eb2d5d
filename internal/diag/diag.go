// Package diag defines the diagnostic model shared by every build stage
// and the collector that aggregates them. Build problems are data, not
// errors: stages keep going after the first failure so a single preview
// round-trip reports everything it can.
package diag

import (
	"fmt"
	"sort"
	"sync"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Stage names the pipeline stage a diagnostic came from.
type Stage string

const (
	StageVFS       Stage = "vfs"
	StageResolve   Stage = "resolve"
	StageTransform Stage = "transform"
	StageGraph     Stage = "graph"
	StageLink      Stage = "link"
)

// Code identifies the diagnostic kind.
type Code string

const (
	CodeVfsNotFound       Code = "VfsNotFound"
	CodeModuleNotFound    Code = "ModuleNotFound"
	CodeUnresolvedImport  Code = "UnresolvedImport"
	CodeSyntaxError       Code = "SyntaxError"
	CodeUnsupportedAPI    Code = "UnsupportedAPI"
	CodeResolutionTimeout Code = "ResolutionTimeout"
	CodeTruncated         Code = "Truncated"
)

// Diagnostic is one structured build problem.
type Diagnostic struct {
	Severity Severity
	Code     Code
	File     string
	Line     int
	Col      int
	Message  string
	Stage    Stage
}

// String renders the conventional file:line:col form.
func (d Diagnostic) String() string {
	loc := d.File
	if d.Line > 0 {
		loc = fmt.Sprintf("%s:%d:%d", d.File, d.Line, d.Col)
	}
	return fmt.Sprintf("%s %s [%s] %s: %s", d.Severity, string(d.Stage), d.Code, loc, d.Message)
}

// Collector accumulates diagnostics across stages without stopping at
// the first error. Duplicates (same file, line, col, message) are
// dropped. Beyond the cap a single truncation notice is recorded and
// further adds are discarded.
type Collector struct {
	mu        sync.Mutex
	cap       int
	items     []Diagnostic
	seen      map[string]struct{}
	truncated bool
}

// NewCollector returns a collector bounded at cap diagnostics.
func NewCollector(cap int) *Collector {
	return &Collector{cap: cap, seen: make(map[string]struct{})}
}

// Add records a diagnostic, applying dedupe and the cap.
func (c *Collector) Add(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := fmt.Sprintf("%s\x00%d\x00%d\x00%s", d.File, d.Line, d.Col, d.Message)
	if _, dup := c.seen[key]; dup {
		return
	}
	c.seen[key] = struct{}{}

	if len(c.items) >= c.cap {
		if !c.truncated {
			c.truncated = true
			c.items = append(c.items, Diagnostic{
				Severity: SeverityWarning,
				Code:     CodeTruncated,
				Message:  fmt.Sprintf("diagnostic limit of %d reached, further diagnostics omitted", c.cap),
				Stage:    d.Stage,
			})
		}
		return
	}
	c.items = append(c.items, d)
}

// AddAll records each diagnostic in order.
func (c *Collector) AddAll(ds []Diagnostic) {
	for _, d := range ds {
		c.Add(d)
	}
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.items {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Len returns the number of recorded diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Items returns diagnostics sorted by (file, line, col, message) for
// deterministic rendering. The truncation notice, if present, sorts
// like any other diagnostic with an empty file.
func (c *Collector) Items() []Diagnostic {
	c.mu.Lock()
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Col != b.Col {
			return a.Col < b.Col
		}
		return a.Message < b.Message
	})
	return out
}
