package transform

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// strippedNodes are erased wherever they appear; none of them carry
// runtime semantics.
var strippedNodes = map[string]bool{
	"type_annotation":           true,
	"type_parameters":           true,
	"type_arguments":            true,
	"type_alias_declaration":    true,
	"interface_declaration":     true,
	"ambient_declaration":       true,
	"function_signature":        true,
	"abstract_method_signature": true,
	"implements_clause":         true,
	"accessibility_modifier":    true,
	"adding_type_annotation":    true,
	"omitting_type_annotation":  true,
	"opting_type_annotation":    true,
}

// strippedTokens are keyword tokens erased wherever they appear; they
// only occur in type or class-modifier positions.
var strippedTokens = map[string]bool{
	"abstract": true,
	"readonly": true,
	"override": true,
}

// rewriter streams a source file into a transformed body. It copies
// source bytes verbatim up to each node that needs special handling,
// emits the replacement, and skips the original range.
type rewriter struct {
	path string
	src  []byte
	buf  *bytes.Buffer
	pos  uint32

	imports []ImportRef
	exports []string
	// locals maps an imported binding to its namespace-member
	// replacement (e.g. Button -> _m0.default). Member access keeps the
	// binding live across import cycles.
	locals  map[string]string
	modVars int
}

func newRewriter(path string, src []byte) *rewriter {
	return &rewriter{
		path:   path,
		src:    src,
		buf:    &bytes.Buffer{},
		locals: make(map[string]string),
	}
}

func (r *rewriter) text(n *sitter.Node) string {
	return string(r.src[n.StartByte():n.EndByte()])
}

// catchUp copies source bytes verbatim up to offset.
func (r *rewriter) catchUp(to uint32) {
	if to > r.pos {
		r.buf.Write(r.src[r.pos:to])
		r.pos = to
	}
}

func (r *rewriter) skipTo(end uint32) {
	if end > r.pos {
		r.pos = end
	}
}

func (r *rewriter) emit(s string) {
	r.buf.WriteString(s)
}

func (r *rewriter) nextModVar() string {
	v := fmt.Sprintf("_m%d", r.modVars)
	r.modVars++
	return v
}

// walk dispatches every child, anonymous tokens included, so keyword
// tokens in type positions can be erased.
func (r *rewriter) walk(n *sitter.Node) {
	for i := 0; i < int(n.ChildCount()); i++ {
		r.dispatch(n.Child(i))
	}
}

func (r *rewriter) dispatch(n *sitter.Node) {
	typ := n.Type()

	if strippedNodes[typ] || strippedTokens[typ] {
		r.catchUp(n.StartByte())
		r.skipTo(n.EndByte())
		return
	}

	switch typ {
	case "import_statement":
		r.handleImport(n)

	case "export_statement":
		r.handleExport(n)

	case "enum_declaration":
		r.catchUp(n.StartByte())
		r.emitEnum(n)
		r.skipTo(n.EndByte())

	case "as_expression", "satisfies_expression", "non_null_expression":
		// Keep the expression, drop the assertion syntax.
		inner := n.Child(0)
		r.dispatch(inner)
		r.catchUp(inner.EndByte())
		r.skipTo(n.EndByte())

	case "jsx_element", "jsx_self_closing_element", "jsx_fragment":
		r.catchUp(n.StartByte())
		r.emit(r.renderJSX(n))
		r.skipTo(n.EndByte())

	case "identifier":
		name := r.text(n)
		if repl, ok := r.locals[name]; ok && r.isReference(n) && !r.shadowed(n, name) {
			r.catchUp(n.StartByte())
			r.emit(repl)
			r.skipTo(n.EndByte())
		}

	case "shorthand_property_identifier":
		name := r.text(n)
		if repl, ok := r.locals[name]; ok && !r.shadowed(n, name) {
			r.catchUp(n.StartByte())
			r.emit(name + ": " + repl)
			r.skipTo(n.EndByte())
		}

	case "?":
		// Optional markers on parameters and class fields are type
		// syntax; `?:` in a ternary lives under ternary_expression and
		// is untouched.
		parent := n.Parent()
		if parent != nil && (parent.Type() == "optional_parameter" || parent.Type() == "public_field_definition") {
			r.catchUp(n.StartByte())
			r.skipTo(n.EndByte())
		}

	case "!":
		// Definite-assignment marker in `let x!: T`.
		parent := n.Parent()
		if parent != nil && parent.Type() == "variable_declarator" {
			r.catchUp(n.StartByte())
			r.skipTo(n.EndByte())
		}

	default:
		r.walk(n)
	}
}

// renderNode transforms a subtree in isolation and returns its text,
// leaving the main output stream untouched.
func (r *rewriter) renderNode(n *sitter.Node) string {
	oldBuf, oldPos := r.buf, r.pos
	r.buf = &bytes.Buffer{}
	r.pos = n.StartByte()
	r.dispatch(n)
	r.catchUp(n.EndByte())
	out := r.buf.String()
	r.buf, r.pos = oldBuf, oldPos
	return out
}

// isReference reports whether an identifier node is a value reference
// rather than a binding site. Parameter and pattern positions declare
// new names and must not be rewritten.
func (r *rewriter) isReference(n *sitter.Node) bool {
	parent := n.Parent()
	if parent == nil {
		return true
	}
	if name := parent.ChildByFieldName("name"); name != nil && sameNode(name, n) {
		return false
	}
	switch parent.Type() {
	case "required_parameter", "optional_parameter":
		// The pattern side binds; a default-value expression references.
		if pat := parent.ChildByFieldName("pattern"); pat != nil && sameNode(pat, n) {
			return false
		}
		return true
	case "assignment_pattern":
		if left := parent.ChildByFieldName("left"); left != nil && sameNode(left, n) {
			return false
		}
		return true
	case "formal_parameters", "array_pattern", "object_pattern",
		"pair_pattern", "rest_pattern", "catch_clause", "import_specifier",
		"namespace_import", "labeled_statement", "statement_identifier",
		"property_signature", "method_signature":
		return false
	}
	return true
}

func sameNode(a, b *sitter.Node) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

// shadowed reports whether any scope enclosing n re-declares name, in
// which case the inner binding wins over the imported one and the
// reference must stay untouched.
func (r *rewriter) shadowed(n *sitter.Node, name string) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if r.scopeDeclares(p, name) {
			return true
		}
	}
	return false
}

// scopeDeclares reports whether a single scope node introduces name:
// function parameters, the function's own name, catch bindings, and
// declarations directly inside a block or for-statement body.
func (r *rewriter) scopeDeclares(p *sitter.Node, name string) bool {
	switch p.Type() {
	case "function_declaration", "function_expression", "function",
		"generator_function", "generator_function_declaration",
		"arrow_function", "method_definition":
		if params := p.ChildByFieldName("parameters"); params != nil && r.patternDeclares(params, name) {
			return true
		}
		if param := p.ChildByFieldName("parameter"); param != nil && r.patternDeclares(param, name) {
			return true
		}
		if nm := p.ChildByFieldName("name"); nm != nil && r.text(nm) == name {
			return true
		}

	case "catch_clause":
		if param := p.ChildByFieldName("parameter"); param != nil && r.patternDeclares(param, name) {
			return true
		}

	case "statement_block", "for_statement", "for_in_statement":
		for i := 0; i < int(p.NamedChildCount()); i++ {
			c := p.NamedChild(i)
			switch c.Type() {
			case "lexical_declaration", "variable_declaration":
				for j := 0; j < int(c.NamedChildCount()); j++ {
					d := c.NamedChild(j)
					if d.Type() != "variable_declarator" {
						continue
					}
					if nm := d.ChildByFieldName("name"); nm != nil && r.patternDeclares(nm, name) {
						return true
					}
				}
			case "function_declaration", "generator_function_declaration", "class_declaration":
				if nm := c.ChildByFieldName("name"); nm != nil && r.text(nm) == name {
					return true
				}
			}
		}
	}
	return false
}

// patternDeclares reports whether a binding pattern introduces name.
// Only binding positions count: type annotations and default-value
// expressions inside the pattern are reference territory.
func (r *rewriter) patternDeclares(n *sitter.Node, name string) bool {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return r.text(n) == name
	case "type_annotation":
		return false
	case "required_parameter", "optional_parameter":
		if pat := n.ChildByFieldName("pattern"); pat != nil {
			return r.patternDeclares(pat, name)
		}
		return false
	case "assignment_pattern", "object_assignment_pattern":
		if left := n.ChildByFieldName("left"); left != nil {
			return r.patternDeclares(left, name)
		}
		return false
	case "pair_pattern":
		if v := n.ChildByFieldName("value"); v != nil {
			return r.patternDeclares(v, name)
		}
		return false
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if r.patternDeclares(n.NamedChild(i), name) {
			return true
		}
	}
	return false
}

// stringValue extracts the contents of a string literal node.
func (r *rewriter) stringValue(n *sitter.Node) string {
	raw := r.text(n)
	if len(raw) >= 2 {
		return raw[1 : len(raw)-1]
	}
	return raw
}

// hasChildToken reports whether n has a direct anonymous child token of
// the given type.
func hasChildToken(n *sitter.Node, token string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if n.Child(i).Type() == token {
			return true
		}
	}
	return false
}

func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == typ {
			return c
		}
	}
	return nil
}

// emitEnum lowers a TypeScript enum to the canonical IIFE with reverse
// mappings for numeric members.
func (r *rewriter) emitEnum(n *sitter.Node) {
	nameNode := n.ChildByFieldName("name")
	body := n.ChildByFieldName("body")
	if nameNode == nil || body == nil {
		return
	}
	name := r.text(nameNode)

	var b strings.Builder
	fmt.Fprintf(&b, "var %s; (function (%s) {", name, name)

	next := 0
	autoNumeric := true
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		var memberName, value string
		numeric := false

		switch member.Type() {
		case "enum_assignment":
			memberName = r.enumMemberName(member.ChildByFieldName("name"))
			valNode := member.ChildByFieldName("value")
			value = r.renderNode(valNode)
			if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				numeric = true
				next = v + 1
			} else {
				autoNumeric = false
			}
		case "property_identifier", "string", "computed_property_name":
			memberName = r.enumMemberName(member)
			if autoNumeric {
				value = strconv.Itoa(next)
				numeric = true
				next++
			} else {
				value = "undefined"
			}
		default:
			continue
		}

		if numeric {
			fmt.Fprintf(&b, " %s[%s[%q] = %s] = %q;", name, name, memberName, value, memberName)
		} else {
			fmt.Fprintf(&b, " %s[%q] = %s;", name, memberName, value)
		}
	}
	fmt.Fprintf(&b, " })(%s || (%s = {}));", name, name)
	r.emit(b.String())
}

func (r *rewriter) enumMemberName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if n.Type() == "string" {
		return r.stringValue(n)
	}
	return r.text(n)
}
