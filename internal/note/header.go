package note

import "strings"

// header is the "---" delimited key/value block at the very top of a note.
type header struct {
	lines []string
	end   int // offset just past the closing delimiter line
}

type field struct {
	key   string
	value string
	items []string // block sequence items following an empty value
}

func splitHeader(content string) (header, bool) {
	line, pos := nextLine(content, 0)
	if !isDelimiter(line) {
		return header{}, false
	}
	var lines []string
	for pos < len(content) {
		line, next := nextLine(content, pos)
		if isDelimiter(line) {
			return header{lines: lines, end: next}, true
		}
		lines = append(lines, strings.TrimRight(line, "\r"))
		pos = next
	}
	return header{}, false
}

func stripHeader(content string) string {
	if h, ok := splitHeader(content); ok {
		return content[h.end:]
	}
	return content
}

func nextLine(s string, pos int) (string, int) {
	i := strings.IndexByte(s[pos:], '\n')
	if i < 0 {
		return s[pos:], len(s)
	}
	return s[pos : pos+i], pos + i + 1
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t\r") == "---"
}

func (h header) fields() []field {
	var out []field
	for _, line := range h.lines {
		if item, ok := blockItem(line); ok && len(out) > 0 && out[len(out)-1].value == "" {
			last := &out[len(out)-1]
			last.items = append(last.items, item)
			continue
		}
		i := strings.Index(line, ":")
		if i == -1 {
			continue
		}
		out = append(out, field{
			key:   strings.TrimSpace(line[:i]),
			value: strings.TrimSpace(line[i+1:]),
		})
	}
	return out
}

func blockItem(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "-" {
		return "", true
	}
	if !strings.HasPrefix(trimmed, "- ") {
		return "", false
	}
	return unquote(strings.TrimSpace(trimmed[2:])), true
}

func (f field) list() []string {
	if f.value == "" && len(f.items) > 0 {
		return f.items
	}
	return parseArrayValue(f.value)
}

func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' || first == '\'') && first == last {
			return s[1 : len(s)-1]
		}
	}
	return s
}
