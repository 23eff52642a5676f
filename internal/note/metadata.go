package note

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultTitle = "Untitled Project"

type Project struct {
	Title       string   `json:"title" yaml:"title"`
	StartDate   string   `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Status      string   `json:"status,omitempty" yaml:"status,omitempty"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Aliases     []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

var headingRe = regexp.MustCompile(`(?m)^#[ \t]+(.+)$`)

// ParseProject reads the project metadata of a note. Without a header block the
// first level-one heading becomes the title.
func ParseProject(content string) Project {
	p := Project{Title: DefaultTitle}
	h, ok := splitHeader(content)
	if !ok {
		if m := headingRe.FindStringSubmatch(content); m != nil {
			if title := strings.TrimSpace(m[1]); title != "" {
				p.Title = title
			}
		}
		return p
	}
	for _, f := range h.fields() {
		switch strings.ToLower(f.key) {
		case "title":
			if v := unquote(f.value); v != "" {
				p.Title = v
			}
		case "start date", "startdate":
			p.StartDate = unquote(f.value)
		case "end date", "enddate":
			p.EndDate = unquote(f.value)
		case "status":
			p.Status = unquote(f.value)
		case "keywords":
			p.Keywords = f.list()
		case "tags":
			p.Tags = f.list()
		case "aliases":
			p.Aliases = f.list()
		}
	}
	return p
}

// parseArrayValue accepts a bracketed flow list or a plain comma separated value.
func parseArrayValue(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if strings.HasPrefix(value, "[") && strings.HasSuffix(value, "]") {
		var items []string
		if err := yaml.Unmarshal([]byte(value), &items); err == nil {
			if items == nil {
				items = []string{}
			}
			return items
		}
		value = value[1 : len(value)-1]
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, trimQuotes(strings.TrimSpace(part)))
	}
	return out
}

func trimQuotes(s string) string {
	s = strings.TrimPrefix(s, `"`)
	s = strings.TrimPrefix(s, `'`)
	s = strings.TrimSuffix(s, `"`)
	s = strings.TrimSuffix(s, `'`)
	return strings.TrimSpace(s)
}

// ExtractBody returns the free text of a note: no header block, no checkbox
// lines, no Things link, blank runs collapsed.
func ExtractBody(content string) string {
	return extractBody(content, defaultLinks)
}

func extractBody(content string, links Links) string {
	var kept []string
	blank := false
	for _, line := range strings.Split(stripHeader(content), "\n") {
		line = strings.TrimRight(line, "\r")
		if isTaskLine(line) {
			line = ""
		} else {
			line = links.strip(line)
		}
		if strings.TrimSpace(line) == "" {
			if !blank {
				kept = append(kept, "")
			}
			blank = true
			continue
		}
		blank = false
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
