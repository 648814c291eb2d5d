// Package preview renders build artifacts as standalone HTML pages: a
// runnable preview when the build succeeded, a diagnostics report when
// it did not. Build problems are page content, never transport errors.
package preview

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"previewkit/internal/bundler"
	"previewkit/internal/diag"
)

// Renderer renders artifacts to HTML. Safe for concurrent use.
type Renderer struct {
	app  *template.Template
	diag *template.Template
}

// NewRenderer parses the page templates.
func NewRenderer() (*Renderer, error) {
	app, err := template.New("app").Parse(appPage)
	if err != nil {
		return nil, fmt.Errorf("preview app template: %w", err)
	}
	diagT, err := template.New("diag").Parse(diagPage)
	if err != nil {
		return nil, fmt.Errorf("preview diagnostics template: %w", err)
	}
	return &Renderer{app: app, diag: diagT}, nil
}

// Render produces the HTML page for an artifact.
func (r *Renderer) Render(art *bundler.Artifact) ([]byte, error) {
	var buf bytes.Buffer
	if art.OK() {
		data := struct {
			Entry    string
			Bundle   template.JS
			Warnings []diagRow
		}{
			Entry: art.Entry,
			// A "</script" inside a code string would end the script
			// element early; split the tag so the parser never sees it.
			Bundle:   template.JS(strings.ReplaceAll(art.Code, "</script", "<\\/script")),
			Warnings: warningRows(art.Diagnostics),
		}
		if err := r.app.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("render preview: %w", err)
		}
		return buf.Bytes(), nil
	}

	data := struct {
		Entry       string
		Diagnostics []diagRow
	}{Entry: art.Entry}
	for _, d := range art.Diagnostics {
		data.Diagnostics = append(data.Diagnostics, diagRow{
			Severity: string(d.Severity),
			Stage:    string(d.Stage),
			Code:     string(d.Code),
			Location: location(d.File, d.Line, d.Col),
			Message:  d.Message,
		})
	}
	if err := r.diag.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render diagnostics: %w", err)
	}
	return buf.Bytes(), nil
}

type diagRow struct {
	Severity string
	Stage    string
	Code     string
	Location string
	Message  string
}

// warningRows keeps the non-fatal diagnostics a successful build still
// carries, so the preview can show them instead of dropping them.
func warningRows(ds []diag.Diagnostic) []diagRow {
	var out []diagRow
	for _, d := range ds {
		if d.Severity != diag.SeverityWarning {
			continue
		}
		out = append(out, diagRow{
			Severity: string(d.Severity),
			Stage:    string(d.Stage),
			Code:     string(d.Code),
			Location: location(d.File, d.Line, d.Col),
			Message:  d.Message,
		})
	}
	return out
}

func location(file string, line, col int) string {
	if file == "" {
		return ""
	}
	if line > 0 {
		return fmt.Sprintf("%s:%d:%d", file, line, col)
	}
	return file
}

const appPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Preview</title>
<style>
* { box-sizing: border-box; margin: 0; padding: 0; }
html, body, #root { height: 100%; }
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; }
#root { display: flex; flex-direction: column; }
#overlay {
  display: none; position: fixed; inset: 0; z-index: 9999;
  background: rgba(20, 0, 0, 0.92); color: #ff8080;
  padding: 24px; overflow: auto; white-space: pre-wrap;
  font-family: ui-monospace, monospace; font-size: 13px;
}
#warnings {
  position: fixed; bottom: 0; left: 0; right: 0; z-index: 9998;
  background: #fff8e1; color: #9a6700; border-top: 1px solid #e0c36a;
  font-size: 12px; padding: 4px 12px;
}
#warnings ul { margin: 4px 0 8px 16px; font-family: ui-monospace, monospace; }
</style>
</head>
<body>
<div id="root"></div>
<pre id="overlay"></pre>
{{if .Warnings}}<details id="warnings">
<summary>{{len .Warnings}} build warning(s)</summary>
<ul>
{{range .Warnings}}<li>{{.Stage}} [{{.Code}}] {{.Location}} {{.Message}}</li>
{{end}}</ul>
</details>
{{end}}
<script>
(function () {
  var overlay = document.getElementById("overlay");
  function show(msg) {
    overlay.style.display = "block";
    overlay.textContent += msg + "\n\n";
  }
  window.onerror = function (msg, src, line, col, err) {
    show(err && err.stack ? err.stack : msg + " (" + src + ":" + line + ":" + col + ")");
  };
  window.addEventListener("unhandledrejection", function (e) {
    var r = e.reason;
    show("Unhandled rejection: " + (r && r.stack ? r.stack : String(r)));
  });
})();
</script>
<script>{{.Bundle}}</script>
</body>
</html>
`

const diagPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Build failed</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; margin: 24px; background: #fafafa; }
h1 { font-size: 18px; color: #b00020; }
table { border-collapse: collapse; margin-top: 16px; width: 100%; }
th, td { text-align: left; padding: 6px 12px; border-bottom: 1px solid #ddd; font-size: 13px; }
td.loc { font-family: ui-monospace, monospace; white-space: nowrap; }
tr.error td:first-child { color: #b00020; }
tr.warning td:first-child { color: #9a6700; }
</style>
</head>
<body>
<h1>Build failed</h1>
<table>
<tr><th>Severity</th><th>Stage</th><th>Code</th><th>Location</th><th>Message</th></tr>
{{range .Diagnostics}}<tr class="{{.Severity}}">
<td>{{.Severity}}</td><td>{{.Stage}}</td><td>{{.Code}}</td>
<td class="loc">{{.Location}}</td><td>{{.Message}}</td>
</tr>
{{end}}</table>
</body>
</html>
`
