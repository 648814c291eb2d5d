// Package transform lowers TypeScript/TSX/JavaScript sources into plain
// executable module bodies. Type syntax is stripped, JSX is desugared
// into __jsx factory calls, and import/export statements are rewritten
// against the bundle runtime's __req/__exp primitives. Alongside the
// body it reports the ordered import specifiers and exported names the
// graph builder needs.
package transform

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
	"go.uber.org/zap"

	"previewkit/internal/diag"
	"previewkit/internal/logging"
)

// ImportRef is one import site in source order.
type ImportRef struct {
	Specifier string
	Line      int
	Col       int
}

// Result is the outcome of transforming one file.
type Result struct {
	// Body is the executable module body. Empty when Diagnostics
	// contains a syntax error.
	Body string
	// Imports lists import specifiers in source order.
	Imports []ImportRef
	// Exports lists exported binding names ("default" included).
	Exports []string
	// Diagnostics carries syntax errors; an erroring file produces no body.
	Diagnostics []diag.Diagnostic
}

// Transformer lowers sources using tree-sitter, one parser per grammar.
// A Transformer is not safe for concurrent use; the graph builder keeps
// one per worker.
type Transformer struct {
	tsxParser *sitter.Parser
	tsParser  *sitter.Parser
	jsParser  *sitter.Parser
}

// New creates a Transformer with tsx, typescript and javascript grammars.
func New() *Transformer {
	tsxParser := sitter.NewParser()
	tsxParser.SetLanguage(tsx.GetLanguage())
	tsParser := sitter.NewParser()
	tsParser.SetLanguage(typescript.GetLanguage())
	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())
	return &Transformer{
		tsxParser: tsxParser,
		tsParser:  tsParser,
		jsParser:  jsParser,
	}
}

// Close releases parser resources.
func (t *Transformer) Close() {
	t.tsxParser.Close()
	t.tsParser.Close()
	t.jsParser.Close()
}

// parserFor picks a grammar by extension. `.ts` uses the typescript
// grammar because `<T>expr` casts are ambiguous under tsx; everything
// JSX-capable goes through tsx or javascript.
func (t *Transformer) parserFor(p string) *sitter.Parser {
	switch strings.ToLower(path.Ext(p)) {
	case ".ts":
		return t.tsParser
	case ".js", ".mjs", ".cjs":
		return t.jsParser
	default:
		return t.tsxParser
	}
}

// File lowers one source file.
func (t *Transformer) File(ctx context.Context, filePath, content string) (*Result, error) {
	start := time.Now()
	src := []byte(content)

	tree, err := t.parserFor(filePath).ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		d := syntaxDiagnostic(root, filePath)
		logging.L(logging.CategoryTransform).Debug("syntax error",
			zap.String("path", filePath),
			zap.Int("line", d.Line))
		return &Result{Diagnostics: []diag.Diagnostic{d}}, nil
	}

	r := newRewriter(filePath, src)
	r.walk(root)
	r.catchUp(root.EndByte())

	res := &Result{
		Body:    r.buf.String(),
		Imports: r.imports,
		Exports: r.exports,
	}
	logging.L(logging.CategoryTransform).Debug("lowered",
		zap.String("path", filePath),
		zap.Int("imports", len(res.Imports)),
		zap.Int("exports", len(res.Exports)),
		zap.Duration("took", time.Since(start)))
	return res, nil
}

// JSONModule wraps raw JSON text as a module body exporting it as default.
func JSONModule(content string) string {
	return "__exp.default = " + strings.TrimSpace(content) + ";"
}

// ModuleID returns the stable cache identity for a (path, content hash)
// pair.
func ModuleID(filePath, contentHash string) string {
	return filePath + "@" + contentHash
}

// syntaxDiagnostic locates the first ERROR or MISSING node and turns it
// into a diagnostic. Falls back to the root position when the tree
// reports an error without a localizable node.
func syntaxDiagnostic(root *sitter.Node, filePath string) diag.Diagnostic {
	node := firstErrorNode(root)
	line, col := 1, 1
	msg := "invalid syntax"
	if node != nil {
		pt := node.StartPoint()
		line = int(pt.Row) + 1
		col = int(pt.Column) + 1
		if node.IsMissing() {
			msg = fmt.Sprintf("missing %s", node.Type())
		} else {
			msg = "unexpected token"
		}
	}
	return diag.Diagnostic{
		Severity: diag.SeverityError,
		Code:     diag.CodeSyntaxError,
		File:     filePath,
		Line:     line,
		Col:      col,
		Message:  msg,
		Stage:    diag.StageTransform,
	}
}

func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n.IsMissing() || n.Type() == "ERROR" {
		return n
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
