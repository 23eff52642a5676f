package note

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	DueMarker   = "📅"
	NotesMarker = "📝"
)

type Task struct {
	Text      string   `json:"text" yaml:"text"`
	Completed bool     `json:"completed" yaml:"completed"`
	Line      int      `json:"line" yaml:"line"`
	Indent    int      `json:"indent" yaml:"indent"`
	Due       string   `json:"due,omitempty" yaml:"due,omitempty"`
	Notes     string   `json:"notes,omitempty" yaml:"notes,omitempty"`
	Tags      []string `json:"tags" yaml:"tags"`
}

var (
	taskRe  = regexp.MustCompile(`^([ \t]*)-[ \t]*\[([ x])\][ \t]*(\S.*)$`)
	dueRe   = regexp.MustCompile(DueMarker + `\s*(\d{4}-\d{2}-\d{2})`)
	notesRe = regexp.MustCompile(NotesMarker + `\s*(.*)$`)
)

func isTaskLine(line string) bool {
	return taskRe.MatchString(strings.TrimRight(line, "\r"))
}

// ParseTasks returns one Task per checkbox line, in document order. Line
// numbers are zero based and count from the top of the note.
func ParseTasks(content string) []Task {
	var tasks []Task
	for i, line := range strings.Split(content, "\n") {
		if t, ok := parseTaskLine(line, i); ok {
			tasks = append(tasks, t)
		}
	}
	return tasks
}

func parseTaskLine(line string, n int) (Task, bool) {
	m := taskRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
	if m == nil {
		return Task{}, false
	}
	text := m[3]
	t := Task{
		Completed: m[2] == "x",
		Line:      n,
		Indent:    len(m[1]),
		// Inline #tags stay in the task text; only project level tags are exported.
		Tags: []string{},
	}
	if d := dueRe.FindStringSubmatch(text); d != nil {
		t.Due = d[1]
	}
	if nm := notesRe.FindStringSubmatch(text); nm != nil {
		t.Notes = strings.TrimSpace(nm[1])
	}
	cleaned := dueRe.ReplaceAllString(text, "")
	cleaned = notesRe.ReplaceAllString(cleaned, "")
	t.Text = strings.TrimSpace(cleaned)
	return t, true
}

// OrganizeSubtasks walks tasks with an ancestor stack keyed by indentation.
// The result keeps source order; nesting stays implicit in Indent.
func OrganizeSubtasks(tasks []Task) []Task {
	organized := make([]Task, 0, len(tasks))
	var stack []Task
	for _, t := range tasks {
		for len(stack) > 0 && stack[len(stack)-1].Indent >= t.Indent {
			stack = stack[:len(stack)-1]
		}
		organized = append(organized, t)
		stack = append(stack, t)
	}
	return organized
}

// Parents reports the index of each task's parent, or -1 for top level tasks,
// using the same stack discipline as OrganizeSubtasks.
func Parents(tasks []Task) []int {
	parents := make([]int, len(tasks))
	var stack []int
	for i, t := range tasks {
		for len(stack) > 0 && tasks[stack[len(stack)-1]].Indent >= t.Indent {
			stack = stack[:len(stack)-1]
		}
		parents[i] = -1
		if len(stack) > 0 {
			parents[i] = stack[len(stack)-1]
		}
		stack = append(stack, i)
	}
	return parents
}

// Depths converts Parents into nesting levels.
func Depths(tasks []Task) []int {
	parents := Parents(tasks)
	depths := make([]int, len(tasks))
	for i, p := range parents {
		if p >= 0 {
			depths[i] = depths[p] + 1
		}
	}
	return depths
}

func TasksByStatus(tasks []Task, completed bool) []Task {
	var out []Task
	for _, t := range tasks {
		if t.Completed == completed {
			out = append(out, t)
		}
	}
	return out
}

func TasksWithDueDates(tasks []Task) []Task {
	var out []Task
	for _, t := range tasks {
		if t.Due != "" {
			out = append(out, t)
		}
	}
	return out
}

// FormatTask renders t back into a checkbox line.
func FormatTask(t Task) string {
	var b strings.Builder
	b.WriteString(strings.Repeat(" ", t.Indent))
	box := " "
	if t.Completed {
		box = "x"
	}
	fmt.Fprintf(&b, "- [%s] %s", box, t.Text)
	if t.Due != "" {
		fmt.Fprintf(&b, " %s %s", DueMarker, t.Due)
	}
	for _, tag := range t.Tags {
		b.WriteString(" #" + tag)
	}
	if t.Notes != "" {
		fmt.Fprintf(&b, " %s %s", NotesMarker, t.Notes)
	}
	return b.String()
}
