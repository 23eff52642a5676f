package note

import (
	"regexp"
	"strings"
)

const (
	TagStylePlain  = "plain"
	TagStyleThings = "things"
)

// ExtractTags returns the header tags followed by the inline #tags of the
// body. Checkbox lines never contribute tags.
func ExtractTags(content string) []string {
	var tags []string
	if h, ok := splitHeader(content); ok {
		for _, f := range h.fields() {
			if strings.EqualFold(f.key, "tags") {
				tags = append(tags, f.list()...)
			}
		}
	}
	var body []string
	for _, line := range strings.Split(stripHeader(content), "\n") {
		if isTaskLine(line) {
			continue
		}
		body = append(body, line)
	}
	tags = append(tags, extractInlineTags(strings.Join(body, "\n"))...)
	return dedupeTags(tags)
}

func extractInlineTags(text string) []string {
	var tags []string
	s := strings.ReplaceAll(text, "\r\n", "\n")
	inFence := false
	fence := ""
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			if !inFence {
				inFence = true
				fence = trimmed[:3]
			} else if strings.HasPrefix(trimmed, fence) {
				inFence = false
				fence = ""
			}
			continue
		}
		if inFence {
			continue
		}
		tags = append(tags, tagTokens(line)...)
	}
	return tags
}

func tagTokens(line string) []string {
	var tags []string
	for i := 0; i < len(line); i++ {
		if line[i] != '#' {
			continue
		}
		if i > 0 && isTagChar(line[i-1]) {
			continue
		}
		j := i + 1
		for j < len(line) && isTagChar(line[j]) {
			j++
		}
		if j > i+1 {
			tags = append(tags, line[i+1:j])
		}
		i = j - 1
	}
	return tags
}

func isTagChar(ch byte) bool {
	return ch == '-' || ch == '_' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9')
}

// dedupeTags drops empty and repeated tags, keeping first-seen order.
func dedupeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FlattenTags expands hierarchical tags: "a/b/c" becomes "a", "b", "c".
func FlattenTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		out = append(out, strings.Split(t, "/")...)
	}
	return dedupeTags(out)
}

var thingsTagDropRe = regexp.MustCompile(`[^a-zA-Z0-9\s-]`)

// ThingsTag converts a tag into the title-cased form Things displays.
func ThingsTag(tag string) string {
	tag = strings.ReplaceAll(tag, "/", "-")
	tag = thingsTagDropRe.ReplaceAllString(tag, "")
	words := strings.Fields(tag)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}

// MapTags applies the explicit mapping first. With TagStyleThings unmapped
// tags are converted by ThingsTag; any other style leaves them alone.
func MapTags(tags []string, mapping map[string]string, style string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if m, ok := mapping[t]; ok && m != "" {
			out = append(out, m)
			continue
		}
		if style == TagStyleThings {
			t = ThingsTag(t)
		}
		out = append(out, t)
	}
	return dedupeTags(out)
}

// ParseTagMapping reads "from:to" entries. Entries without a colon or with an
// empty side are skipped.
func ParseTagMapping(entries []string) map[string]string {
	mapping := make(map[string]string, len(entries))
	for _, e := range entries {
		from, to, ok := strings.Cut(e, ":")
		if !ok {
			continue
		}
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if from == "" || to == "" {
			continue
		}
		mapping[from] = to
	}
	return mapping
}
