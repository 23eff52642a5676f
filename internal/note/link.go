package note

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	LinkLabel         = "Things"
	DefaultLinkScheme = "things"
)

// Links finds and edits the Things link of a note. Only a link whose target
// starts with the scheme counts; any other [Things](...) link is prose and is
// left alone.
type Links struct {
	findRe *regexp.Regexp
}

var defaultLinks = NewLinks(DefaultLinkScheme)

func NewLinks(scheme string) Links {
	scheme = strings.TrimSpace(scheme)
	if scheme == "" {
		scheme = DefaultLinkScheme
	}
	return Links{
		findRe: regexp.MustCompile(`\[` + LinkLabel + `\]\((` + regexp.QuoteMeta(scheme) + `:[^)]*)\)`),
	}
}

func FormatLink(target string) string {
	return "[" + LinkLabel + "](" + target + ")"
}

// Upsert writes the link to target into content. An existing link is
// replaced in place and any further links are removed; otherwise the link goes
// right after the header block, or at the top when there is none.
func (l Links) Upsert(content string, target string) string {
	link := FormatLink(target)
	matches := l.findRe.FindAllStringIndex(content, -1)
	if len(matches) > 0 {
		first := matches[0]
		var b strings.Builder
		b.WriteString(content[:first[0]])
		b.WriteString(link)
		b.WriteString(l.Remove(content[first[1]:]))
		return b.String()
	}
	if h, ok := splitHeader(content); ok {
		head := content[:h.end]
		if !strings.HasSuffix(head, "\n") {
			head += "\n"
		}
		return head + link + "\n\n" + content[h.end:]
	}
	return link + "\n\n" + content
}

// Target returns the target of the first link in content.
func (l Links) Target(content string) (string, bool) {
	m := l.findRe.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ID returns the id query parameter of the link target.
func (l Links) ID(content string) (string, bool) {
	target, ok := l.Target(content)
	if !ok {
		return "", false
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", false
	}
	id := u.Query().Get("id")
	return id, id != ""
}

// Remove deletes every link. A link alone on its line takes the line and the
// blank lines after it along; an inline link takes the spaces next to it.
func (l Links) Remove(content string) string {
	matches := l.findRe.FindAllStringIndex(content, -1)
	if len(matches) == 0 {
		return content
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		lineStart := strings.LastIndexByte(content[:start], '\n') + 1
		lineEnd := len(content)
		if i := strings.IndexByte(content[end:], '\n'); i >= 0 {
			lineEnd = end + i
		}
		before := content[lineStart:start]
		after := strings.TrimRight(content[end:lineEnd], "\r")
		switch {
		case strings.TrimSpace(before) == "" && strings.TrimSpace(after) == "" && lineStart >= last:
			start = lineStart
			end = lineEnd
			if end < len(content) {
				end++
			}
			for end < len(content) {
				next := strings.IndexByte(content[end:], '\n')
				if next < 0 || strings.TrimSpace(content[end:end+next]) != "" {
					break
				}
				end += next + 1
			}
		case strings.TrimSpace(after) == "":
			start -= len(before) - len(strings.TrimRight(before, " \t"))
		default:
			end += len(after) - len(strings.TrimLeft(after, " \t"))
		}
		if start < last {
			start = last
		}
		b.WriteString(content[last:start])
		last = end
	}
	b.WriteString(content[last:])
	return b.String()
}

func (l Links) strip(line string) string {
	return l.findRe.ReplaceAllString(line, "")
}
