// Package parser extracts front matter and a display title from note content.
package parser

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// Result holds the output of parsing a note.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
}

// Parse splits optional YAML front matter from the Markdown body and derives a title.
// It never fails on malformed front matter; the whole input is then treated as body.
func Parse(data []byte) *Result {
	fm, body := splitFrontmatter(data)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
	}
}

// Title is a shortcut for Parse(data).Title.
func Title(data []byte) string {
	return Parse(data).Title
}

// splitFrontmatter separates YAML front matter (between leading --- delimiters)
// from the Markdown body. If no front matter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, string(data)
	}
	return fm, body
}

// deriveTitle returns the front matter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
