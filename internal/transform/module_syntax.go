package transform

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// handleImport rewrites an import statement into a __req call. Imported
// bindings become namespace-member replacements applied at every
// reference site, which keeps them live when the imported module is
// still mid-execution inside a cycle.
func (r *rewriter) handleImport(n *sitter.Node) {
	r.catchUp(n.StartByte())
	defer r.skipTo(n.EndByte())

	source := n.ChildByFieldName("source")
	if source == nil {
		source = childOfType(n, "string")
	}
	if source == nil {
		return
	}

	// `import type {...}` has no runtime effect.
	if hasChildToken(n, "type") {
		return
	}
	clause := childOfType(n, "import_clause")

	spec := r.stringValue(source)
	pt := n.StartPoint()
	r.imports = append(r.imports, ImportRef{
		Specifier: spec,
		Line:      int(pt.Row) + 1,
		Col:       int(pt.Column) + 1,
	})

	if clause == nil {
		// Side-effect import.
		r.emit(fmt.Sprintf("__req(%q);", spec))
		return
	}

	mv := r.nextModVar()
	r.emit(fmt.Sprintf("const %s = __req(%q);", mv, spec))

	for i := 0; i < int(clause.NamedChildCount()); i++ {
		c := clause.NamedChild(i)
		switch c.Type() {
		case "identifier":
			r.locals[r.text(c)] = mv + ".default"
		case "namespace_import":
			if id := childOfType(c, "identifier"); id != nil {
				r.locals[r.text(id)] = mv
			}
		case "named_imports":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				s := c.NamedChild(j)
				if s.Type() != "import_specifier" || hasChildToken(s, "type") {
					continue
				}
				nameNode := s.ChildByFieldName("name")
				if nameNode == nil {
					continue
				}
				local := r.text(nameNode)
				if alias := s.ChildByFieldName("alias"); alias != nil {
					local = r.text(alias)
				}
				r.locals[local] = mv + "." + r.text(nameNode)
			}
		}
	}
}

// handleExport rewrites export statements into __exp assignments.
func (r *rewriter) handleExport(n *sitter.Node) {
	r.catchUp(n.StartByte())

	// `export type {...}` and exported type declarations vanish.
	if hasChildToken(n, "type") {
		r.skipTo(n.EndByte())
		return
	}

	if decl := exportedDeclaration(n); decl != nil {
		r.handleExportDeclaration(n, decl)
		return
	}

	if hasChildToken(n, "default") {
		value := n.ChildByFieldName("value")
		if value == nil {
			value = defaultExportValue(n)
		}
		if value != nil {
			r.skipTo(value.StartByte())
			r.emit("__exp.default = ")
			r.dispatch(value)
			r.catchUp(value.EndByte())
			r.emit(";")
			r.skipTo(n.EndByte())
			r.exports = append(r.exports, "default")
			return
		}
	}

	source := n.ChildByFieldName("source")
	if source == nil {
		source = childOfType(n, "string")
	}

	if clause := childOfType(n, "export_clause"); clause != nil {
		r.handleExportClause(n, clause, source)
		return
	}

	if source != nil {
		spec := r.stringValue(source)
		pt := n.StartPoint()
		r.imports = append(r.imports, ImportRef{
			Specifier: spec,
			Line:      int(pt.Row) + 1,
			Col:       int(pt.Column) + 1,
		})
		if ns := childOfType(n, "namespace_export"); ns != nil {
			// export * as name from "..."
			if id := namespaceExportName(ns); id != nil {
				name := r.text(id)
				r.emit(fmt.Sprintf("__exp.%s = __req(%q);", name, spec))
				r.exports = append(r.exports, name)
			}
		} else {
			// export * from "..."
			r.emit(fmt.Sprintf("__reqStar(__exp, __req(%q));", spec))
		}
		r.skipTo(n.EndByte())
		return
	}

	r.skipTo(n.EndByte())
}

// handleExportDeclaration emits the transformed declaration followed by
// one __exp assignment per declared name. Default function/class
// declarations export under "default" while keeping their local name
// usable.
func (r *rewriter) handleExportDeclaration(n, decl *sitter.Node) {
	switch decl.Type() {
	case "type_alias_declaration", "interface_declaration", "ambient_declaration", "function_signature":
		r.skipTo(n.EndByte())
		return
	}

	isDefault := hasChildToken(n, "default")

	nameNode := decl.ChildByFieldName("name")
	if isDefault && nameNode == nil {
		// Anonymous default function/class.
		r.skipTo(decl.StartByte())
		r.emit("__exp.default = ")
		r.dispatch(decl)
		r.catchUp(decl.EndByte())
		r.emit(";")
		r.skipTo(n.EndByte())
		r.exports = append(r.exports, "default")
		return
	}

	// Drop the export (default) keywords, keep the declaration.
	r.skipTo(decl.StartByte())
	r.dispatch(decl)
	r.catchUp(decl.EndByte())

	if isDefault {
		r.emit(fmt.Sprintf("\n__exp.default = %s;", r.text(nameNode)))
		r.exports = append(r.exports, "default")
	} else {
		for _, name := range r.declaredNames(decl) {
			r.emit(fmt.Sprintf("\n__exp.%s = %s;", name, name))
			r.exports = append(r.exports, name)
		}
	}
	r.skipTo(n.EndByte())
}

// handleExportClause rewrites `export { a, b as c }` with or without a
// source module.
func (r *rewriter) handleExportClause(n, clause, source *sitter.Node) {
	from := ""
	if source != nil {
		spec := r.stringValue(source)
		pt := n.StartPoint()
		r.imports = append(r.imports, ImportRef{
			Specifier: spec,
			Line:      int(pt.Row) + 1,
			Col:       int(pt.Column) + 1,
		})
		from = r.nextModVar()
		r.emit(fmt.Sprintf("const %s = __req(%q);", from, spec))
	}

	for i := 0; i < int(clause.NamedChildCount()); i++ {
		s := clause.NamedChild(i)
		if s.Type() != "export_specifier" || hasChildToken(s, "type") {
			continue
		}
		nameNode := s.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := r.text(nameNode)
		exported := name
		if alias := s.ChildByFieldName("alias"); alias != nil {
			exported = r.text(alias)
		}

		var ref string
		switch {
		case from != "":
			ref = from + "." + name
		default:
			ref = name
			if repl, ok := r.locals[name]; ok {
				ref = repl
			}
		}
		r.emit(fmt.Sprintf("__exp.%s = %s;", exported, ref))
		r.exports = append(r.exports, exported)
	}
	r.skipTo(n.EndByte())
}

// declaredNames collects the binding names a declaration introduces,
// descending into destructuring patterns.
func (r *rewriter) declaredNames(decl *sitter.Node) []string {
	var names []string
	switch decl.Type() {
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "abstract_class_declaration", "enum_declaration":
		if nameNode := decl.ChildByFieldName("name"); nameNode != nil {
			names = append(names, r.text(nameNode))
		}
	case "lexical_declaration", "variable_declaration":
		for i := 0; i < int(decl.NamedChildCount()); i++ {
			d := decl.NamedChild(i)
			if d.Type() != "variable_declarator" {
				continue
			}
			if nameNode := d.ChildByFieldName("name"); nameNode != nil {
				names = append(names, r.patternNames(nameNode)...)
			}
		}
	}
	return names
}

func (r *rewriter) patternNames(n *sitter.Node) []string {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return []string{r.text(n)}
	case "pair_pattern":
		if v := n.ChildByFieldName("value"); v != nil {
			return r.patternNames(v)
		}
		return nil
	case "assignment_pattern":
		if l := n.ChildByFieldName("left"); l != nil {
			return r.patternNames(l)
		}
		return nil
	case "object_pattern", "array_pattern", "rest_pattern":
		var names []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			names = append(names, r.patternNames(n.NamedChild(i))...)
		}
		return names
	}
	return nil
}

// exportedDeclaration finds the declaration under an export statement,
// falling back to a type scan when the grammar exposes no field.
func exportedDeclaration(n *sitter.Node) *sitter.Node {
	if decl := n.ChildByFieldName("declaration"); decl != nil {
		return decl
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "lexical_declaration", "variable_declaration",
			"function_declaration", "generator_function_declaration",
			"class_declaration", "abstract_class_declaration",
			"enum_declaration", "type_alias_declaration",
			"interface_declaration", "ambient_declaration",
			"function_signature":
			return c
		}
	}
	return nil
}

// defaultExportValue finds the exported expression of
// `export default <expr>;` when no value field is exposed.
func defaultExportValue(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "comment", "export_clause", "namespace_export":
			continue
		}
		return c
	}
	return nil
}

func namespaceExportName(ns *sitter.Node) *sitter.Node {
	for i := 0; i < int(ns.ChildCount()); i++ {
		c := ns.Child(i)
		if c.Type() == "identifier" {
			return c
		}
	}
	return nil
}
