package transform

import (
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

var jsxWhitespace = regexp.MustCompile(`\s+`)

// renderJSX turns a JSX element, self-closing element or fragment into
// a __jsx factory call.
func (r *rewriter) renderJSX(n *sitter.Node) string {
	switch n.Type() {
	case "jsx_self_closing_element":
		return "__jsx(" + r.jsxName(n.ChildByFieldName("name")) + ", " + r.jsxProps(n) + ")"

	case "jsx_element":
		opening := childOfType(n, "jsx_opening_element")
		call := "__jsx(" + r.jsxName(opening.ChildByFieldName("name")) + ", " + r.jsxProps(opening)
		for _, child := range r.jsxChildren(n) {
			call += ", " + child
		}
		return call + ")"

	case "jsx_fragment":
		call := "__jsx(__fragment, null"
		for _, child := range r.jsxChildren(n) {
			call += ", " + child
		}
		return call + ")"
	}
	return r.text(n)
}

// jsxName resolves an element name: lowercase intrinsic elements become
// string tags, capitalized names stay component expressions (with
// imported-binding rewriting applied).
func (r *rewriter) jsxName(name *sitter.Node) string {
	if name == nil {
		return `"div"`
	}
	text := r.text(name)
	if name.Type() == "identifier" || name.Type() == "jsx_namespace_name" {
		first := text[0]
		if first >= 'a' && first <= 'z' {
			return strconv.Quote(text)
		}
		if repl, ok := r.locals[text]; ok && !r.shadowed(name, text) {
			return repl
		}
		return text
	}
	// Member expressions like <Animated.View>.
	return r.renderNode(name)
}

// jsxProps builds the props argument from the attributes of an opening
// or self-closing element. Spread attributes fold into Object.assign.
func (r *rewriter) jsxProps(n *sitter.Node) string {
	type part struct {
		spread bool
		text   string
	}
	var (
		parts   []part
		pending []string
	)
	flush := func() {
		if len(pending) > 0 {
			parts = append(parts, part{text: "{" + strings.Join(pending, ", ") + "}"})
			pending = nil
		}
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "jsx_attribute":
			nameNode := c.NamedChild(0)
			if nameNode == nil {
				continue
			}
			key := r.text(nameNode)
			if strings.ContainsAny(key, "-:") {
				key = strconv.Quote(key)
			}
			value := "true"
			if v := jsxAttributeValue(c); v != nil {
				switch v.Type() {
				case "string":
					value = r.text(v)
				case "jsx_expression":
					if inner := v.NamedChild(0); inner != nil {
						value = r.renderNode(inner)
					}
				default:
					value = r.renderNode(v)
				}
			}
			pending = append(pending, key+": "+value)

		case "jsx_expression":
			// Spread attribute: {...props}
			if inner := c.NamedChild(0); inner != nil && inner.Type() == "spread_element" {
				if arg := inner.NamedChild(0); arg != nil {
					flush()
					parts = append(parts, part{spread: true, text: r.renderNode(arg)})
				}
			}
		}
	}
	flush()

	switch len(parts) {
	case 0:
		return "null"
	case 1:
		if !parts[0].spread {
			return parts[0].text
		}
	}
	args := make([]string, 0, len(parts)+1)
	args = append(args, "{}")
	for _, p := range parts {
		args = append(args, p.text)
	}
	return "Object.assign(" + strings.Join(args, ", ") + ")"
}

func jsxAttributeValue(attr *sitter.Node) *sitter.Node {
	for i := 1; i < int(attr.NamedChildCount()); i++ {
		return attr.NamedChild(i)
	}
	return nil
}

// jsxChildren renders the child list of an element or fragment.
// Whitespace-only text vanishes; interior whitespace collapses to a
// single space, matching JSX text semantics closely enough for preview.
func (r *rewriter) jsxChildren(n *sitter.Node) []string {
	var out []string
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "jsx_opening_element", "jsx_closing_element":
			continue
		case "jsx_text":
			text := strings.TrimSpace(jsxWhitespace.ReplaceAllString(r.text(c), " "))
			if text != "" {
				out = append(out, strconv.Quote(text))
			}
		case "jsx_expression":
			inner := c.NamedChild(0)
			if inner == nil || inner.Type() == "comment" {
				continue
			}
			out = append(out, r.renderNode(inner))
		case "jsx_element", "jsx_self_closing_element", "jsx_fragment":
			out = append(out, r.renderJSX(c))
		}
	}
	return out
}
