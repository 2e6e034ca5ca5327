// ABOUTME: Embedded integration guides and the OpenAPI document
// ABOUTME: Renders markdown to HTML with goldmark and serves both over HTTP

package assets

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"embed"

	"github.com/yuin/goldmark"
)

//go:embed docs
var docsFS embed.FS

//go:embed openapi.json
var openAPISpec []byte

// Topic is one integration guide
type Topic struct {
	Slug  string
	Title string
}

// Guides are listed in reading order; anything unlisted sorts last by slug.
var topicOrder = map[string]int{
	"integration": 1,
	"channels":    2,
	"webhooks":    3,
}

// OpenAPI returns the embedded OpenAPI document
func OpenAPI() []byte {
	return openAPISpec
}

// ListTopics returns the available guides in display order
func ListTopics() []Topic {
	entries, err := docsFS.ReadDir("docs")
	if err != nil {
		return nil
	}

	topics := make([]Topic, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		slug := strings.TrimSuffix(entry.Name(), ".md")
		topics = append(topics, Topic{Slug: slug, Title: formatTitle(slug)})
	}

	sort.Slice(topics, func(i, j int) bool {
		orderI, okI := topicOrder[topics[i].Slug]
		orderJ, okJ := topicOrder[topics[j].Slug]
		if !okI {
			orderI = 100
		}
		if !okJ {
			orderJ = 100
		}
		if orderI != orderJ {
			return orderI < orderJ
		}
		return topics[i].Slug < topics[j].Slug
	})

	return topics
}

// RenderDoc converts one guide to HTML. Unknown slugs return false.
func RenderDoc(slug string) (template.HTML, bool) {
	// Only slugs from the embedded directory are readable
	known := false
	for _, topic := range ListTopics() {
		if topic.Slug == slug {
			known = true
			break
		}
	}
	if !known {
		return "", false
	}

	mdContent, err := docsFS.ReadFile("docs/" + slug + ".md")
	if err != nil {
		return "", false
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert(mdContent, &htmlBuf); err != nil {
		return "<p>Failed to render guide.</p>", true
	}
	return template.HTML(htmlBuf.String()), true
}

// formatTitle converts a slug to a display title
func formatTitle(slug string) string {
	words := strings.Split(slug, "-")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

var pageTemplate = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>butt-dial · {{.Title}}</title>
<style>
body { font-family: -apple-system, sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
nav a { margin-right: 1rem; }
pre { background: #f4f4f4; padding: 0.75rem; overflow-x: auto; }
code { background: #f4f4f4; padding: 0 0.2rem; }
</style>
</head>
<body>
<nav>{{range .Topics}}<a href="/docs/{{.Slug}}">{{.Title}}</a>{{end}}<a href="/openapi.json">OpenAPI</a></nav>
{{.Content}}
</body>
</html>
`))

// Handler serves /docs, /docs/{slug}, and /openapi.json
func Handler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /openapi.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(openAPISpec)
	})

	serveTopic := func(w http.ResponseWriter, slug string) {
		content, ok := RenderDoc(slug)
		if !ok {
			http.NotFound(w, nil)
			return
		}

		data := struct {
			Title   string
			Topics  []Topic
			Content template.HTML
		}{
			Title:   formatTitle(slug),
			Topics:  ListTopics(),
			Content: content,
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTemplate.Execute(w, data); err != nil {
			logger.Error("failed to render guide", "slug", slug, "error", err)
		}
	}

	mux.HandleFunc("GET /docs", func(w http.ResponseWriter, r *http.Request) {
		serveTopic(w, "integration")
	})
	mux.HandleFunc("GET /docs/{slug}", func(w http.ResponseWriter, r *http.Request) {
		serveTopic(w, r.PathValue("slug"))
	})

	return mux
}
