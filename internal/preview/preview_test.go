package preview

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"previewkit/internal/bundler"
	"previewkit/internal/diag"
)

func parsePage(t *testing.T, page []byte) *html.Node {
	t.Helper()
	doc, err := html.Parse(bytes.NewReader(page))
	require.NoError(t, err)
	return doc
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

func countElements(n *html.Node, tag string) int {
	count := 0
	if n.Type == html.ElementNode && n.Data == tag {
		count++
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += countElements(c, tag)
	}
	return count
}

func TestRender_Success(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	art := &bundler.Artifact{
		Entry: "/App.tsx",
		Code:  `__d("/App.tsx", {}, function (__req, __exp, __mod) {});`,
	}
	page, err := r.Render(art)
	require.NoError(t, err)
	doc := parsePage(t, page)

	t.Run("mount point and overlay", func(t *testing.T) {
		assert.NotNil(t, findByID(doc, "root"))
		assert.NotNil(t, findByID(doc, "overlay"))
	})

	t.Run("bundle embedded verbatim", func(t *testing.T) {
		assert.Contains(t, string(page), `__d("/App.tsx", {}`)
	})

	t.Run("overlay script precedes bundle script", func(t *testing.T) {
		assert.Equal(t, 2, countElements(doc, "script"))
		s := string(page)
		assert.Less(t, strings.Index(s, "window.onerror"), strings.Index(s, `__d(`))
	})
}

func TestRender_SuccessWithWarnings(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	art := &bundler.Artifact{
		Entry: "/App.tsx",
		Code:  `__d("/App.tsx", {}, function (__req, __exp, __mod) {});`,
		Diagnostics: []diag.Diagnostic{
			{
				Severity: diag.SeverityWarning,
				Code:     diag.CodeTruncated,
				Message:  "diagnostics truncated",
				Stage:    diag.StageGraph,
			},
		},
	}
	page, err := r.Render(art)
	require.NoError(t, err)
	doc := parsePage(t, page)

	t.Run("warnings panel present", func(t *testing.T) {
		require.NotNil(t, findByID(doc, "warnings"))
		s := string(page)
		assert.Contains(t, s, "1 build warning(s)")
		assert.Contains(t, s, "diagnostics truncated")
	})

	t.Run("bundle still runs", func(t *testing.T) {
		assert.Contains(t, string(page), `__d("/App.tsx", {}`)
	})

	t.Run("clean build has no panel", func(t *testing.T) {
		clean, err := r.Render(&bundler.Artifact{Entry: "/App.tsx", Code: "var x = 1;"})
		require.NoError(t, err)
		assert.Nil(t, findByID(parsePage(t, clean), "warnings"))
	})
}

func TestRender_ScriptBreakout(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	art := &bundler.Artifact{
		Entry: "/App.tsx",
		Code:  `var s = "</script><script>alert(1)";`,
	}
	page, err := r.Render(art)
	require.NoError(t, err)

	doc := parsePage(t, page)
	assert.Equal(t, 2, countElements(doc, "script"),
		"a closing tag inside a string must not end the bundle script")
}

func TestRender_Diagnostics(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	art := &bundler.Artifact{
		Entry: "/App.tsx",
		Diagnostics: []diag.Diagnostic{
			{
				Severity: diag.SeverityError,
				Code:     diag.CodeModuleNotFound,
				File:     "/App.tsx",
				Line:     3,
				Col:      1,
				Message:  `"./missing" imported by /App.tsx`,
				Stage:    diag.StageResolve,
			},
			{
				Severity: diag.SeverityWarning,
				Code:     diag.CodeTruncated,
				Message:  "diagnostics truncated",
				Stage:    diag.StageGraph,
			},
		},
	}
	page, err := r.Render(art)
	require.NoError(t, err)
	s := string(page)

	assert.Contains(t, s, "Build failed")
	assert.Contains(t, s, "/App.tsx:3:1")
	assert.Contains(t, s, "ModuleNotFound")
	assert.Contains(t, s, "resolve")
	assert.NotContains(t, s, "__d(", "a failed build must not ship code")

	t.Run("messages are escaped", func(t *testing.T) {
		assert.Contains(t, s, "&#34;./missing&#34;")
	})
}
