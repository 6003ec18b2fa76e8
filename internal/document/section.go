// Package document turns the consolidated website document into ordered,
// URL-tagged sections.
//
// A line of the form
//
//	HERO PAGE ( https://example.com )
//
// opens a new section titled "HERO PAGE" sourced from the URL in brackets.
// Every following non-blank line belongs to that section until the next
// header. Lines before the first header are discarded.
package document

import (
	"regexp"
	"strings"
)

type Section struct {
	Title     string `json:"title"`
	SourceURL string `json:"source_url"`
	Body      string `json:"body"`
	Order     int    `json:"order"`
}

var headerRe = regexp.MustCompile(`(?i)^(?P<title>.+?)\s*\(\s*(?P<url>https?://[^\s)]+)\s*\)\s*$`)

// ParseHeader reports whether line is a section header and returns its parts.
func ParseHeader(line string) (title, url string, ok bool) {
	m := headerRe.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), true
}

func ParseSections(text string) []Section {
	var (
		sections []Section
		current  *Section
		lines    []string
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(lines, "\n"))
		current.Order = len(sections)
		sections = append(sections, *current)
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if title, url, ok := ParseHeader(line); ok {
			flush()
			current = &Section{Title: title, SourceURL: url}
			lines = nil
			continue
		}
		if current != nil {
			lines = append(lines, line)
		}
	}
	flush()

	return sections
}
