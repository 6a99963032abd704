// ABOUTME: Tool catalog served at /docs, generated from each mount's registry
// ABOUTME: Markdown is built per request and rendered to HTML with goldmark

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389/audit-gateway/internal/auth"
)

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>audit-gateway tools</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 52rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
pre { background: #f4f4f4; padding: 0.75rem; overflow-x: auto; }
code { font-size: 0.9em; }
</style>
</head>
<body>
{{.}}
</body>
</html>
`))

// buildCatalog writes the Markdown catalog of tools visible to caps.
func (g *Gateway) buildCatalog(caps []string) []byte {
	var md bytes.Buffer
	md.WriteString("# audit-gateway tools\n\n")
	fmt.Fprintf(&md, "API version %s.\n", APIVersion)

	for _, m := range g.mounts {
		fmt.Fprintf(&md, "\n## %s\n\nEndpoint: `%s`\n", m.title, m.server.Path())

		visible := make(map[string]bool)
		for _, def := range m.router.ListTools(caps) {
			visible[def.Name] = true
		}
		if len(visible) == 0 {
			md.WriteString("\nNo tools available with your capabilities.\n")
			continue
		}

		for _, pack := range m.registry.ListBuiltinPacks() {
			for _, tool := range pack.Tools {
				def := tool.Definition
				if !visible[def.Name] {
					continue
				}
				fmt.Fprintf(&md, "\n### `%s`\n\n%s\n", def.Name, def.Description)
				fmt.Fprintf(&md, "\n- Pack: `%s`\n", pack.ID)
				fmt.Fprintf(&md, "- Capabilities: %s\n", strings.Join(def.RequiredCapabilities, ", "))
				if def.TimeoutSeconds > 0 {
					fmt.Fprintf(&md, "- Timeout: %ds\n", def.TimeoutSeconds)
				}
				if schema := indentSchema(def.InputSchema); schema != "" {
					fmt.Fprintf(&md, "\n```json\n%s\n```\n", schema)
				}
			}
		}
	}
	return md.Bytes()
}

// indentSchema pretty-prints a JSON schema, returning "" for an empty one.
func indentSchema(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

// handleDocs serves the tool catalog as HTML, or as Markdown with ?format=md.
func (g *Gateway) handleDocs(w http.ResponseWriter, r *http.Request) {
	var caps []string
	if authCtx := auth.FromContext(r.Context()); authCtx != nil {
		caps = authCtx.Capabilities
	}
	mdContent := g.buildCatalog(caps)

	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = w.Write(mdContent)
		return
	}

	// Convert markdown to HTML
	var htmlBuf bytes.Buffer
	if err := goldmark.Convert(mdContent, &htmlBuf); err != nil {
		g.logger.Error("failed to convert markdown", "error", err)
		http.Error(w, "failed to render tool catalog", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := docsPage.Execute(w, template.HTML(htmlBuf.String())); err != nil {
		g.logger.Error("failed to render docs page", "error", err)
	}
}
