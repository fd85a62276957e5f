// Package frontend renders an answer and its sources as the HTML fragments
// the search page swaps into its result regions.
package frontend

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strconv"
	"strings"

	"github.com/hyperifyio/searchgpt/internal/rank"
)

// ResultsRegion is the page region the answer fragment belongs in.
const ResultsRegion = "search-results"

// Source is one cited document as listed in the explanation.
type Source struct {
	ID        int
	Name      string
	URL       string
	// Link is URL when it is safe to link to, otherwise empty.
	Link      string
	Sentences []string
}

var (
	answerTemplate = template.Must(template.New("answer").Parse(
		`<div class="card"><div class="card-body">` +
			`<h5 class="card-title">{{.Query}}</h5>` +
			`{{range .Paragraphs}}<p class="card-text">{{.}}</p>{{end}}` +
			`</div></div>`))

	explainTemplate = template.Must(template.New("explain").Parse(
		`{{if .Sources}}<div class="card"><div class="card-body"><h6 class="card-subtitle mb-2 text-muted">Sources</h6><ol class="list-unstyled">` +
			`{{range .Sources}}<li id="source-{{.ID}}"><span class="badge bg-secondary">[{{.ID}}]</span> ` +
			`{{if .Link}}<a href="{{.Link}}" target="_blank" rel="noopener">{{if .Name}}{{.Name}}{{else}}{{.URL}}{{end}}</a>{{else}}{{if .Name}}{{.Name}}{{else}}{{.URL}}{{end}}{{end}}` +
			`<ul>{{range .Sentences}}<li><small>{{.}}</small></li>{{end}}</ul></li>{{end}}` +
			`</ol></div></div>{{else}}<div class="text-muted">No sources were used for this answer.</div>{{end}}`))
)

var citation = regexp.MustCompile(`\[([0-9]+)\]`)

// Render builds the answer fragment and the explanation fragment. Citation
// markers "[n]" in the answer that match a source become links to it.
func Render(query, answer string, sentences []rank.Sentence) (string, string, error) {
	sources := Sources(sentences)
	known := map[int]Source{}
	for _, s := range sources {
		known[s.ID] = s
	}

	var paragraphs []template.HTML
	for _, p := range strings.Split(strings.ReplaceAll(answer, "\r\n", "\n"), "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paragraphs = append(paragraphs, linkCitations(p, known))
	}

	var a bytes.Buffer
	if err := answerTemplate.Execute(&a, struct {
		Query      string
		Paragraphs []template.HTML
	}{Query: query, Paragraphs: paragraphs}); err != nil {
		return "", "", fmt.Errorf("render answer: %w", err)
	}
	var e bytes.Buffer
	if err := explainTemplate.Execute(&e, struct{ Sources []Source }{Sources: sources}); err != nil {
		return "", "", fmt.Errorf("render explanation: %w", err)
	}
	return a.String(), e.String(), nil
}

// Sources groups sentences by URLID in order of first appearance.
func Sources(sentences []rank.Sentence) []Source {
	var out []Source
	index := map[int]int{}
	for _, s := range sentences {
		i, ok := index[s.URLID]
		if !ok {
			i = len(out)
			index[s.URLID] = i
			out = append(out, Source{ID: s.URLID, Name: s.Name, URL: s.URL, Link: safeURL(s.URL)})
		}
		out[i].Sentences = append(out[i].Sentences, s.Text)
	}
	return out
}

// linkCitations escapes text, keeps single newlines as line breaks and
// turns known "[n]" markers into anchors.
func linkCitations(text string, known map[int]Source) template.HTML {
	escaped := template.HTMLEscapeString(text)
	escaped = strings.ReplaceAll(escaped, "\n", "<br>")
	linked := citation.ReplaceAllStringFunc(escaped, func(m string) string {
		n, err := strconv.Atoi(m[1 : len(m)-1])
		if err != nil {
			return m
		}
		src, ok := known[n]
		if !ok || src.Link == "" {
			return m
		}
		return fmt.Sprintf(`<a href="%s" target="_blank" rel="noopener" title="%s">[%d]</a>`,
			template.HTMLEscapeString(src.Link), template.HTMLEscapeString(src.Name), n)
	})
	return template.HTML(linked)
}

// safeURL keeps http(s) links. Local document paths and other schemes
// are not linked.
func safeURL(u string) string {
	lower := strings.ToLower(strings.TrimSpace(u))
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return strings.TrimSpace(u)
	}
	return ""
}
