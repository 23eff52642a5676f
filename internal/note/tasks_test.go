package note

import "testing"

func TestParseTasksMarkers(t *testing.T) {
	tasks := ParseTasks("- [x] Buy milk 📅 2025-03-01 📝 remember oat milk")
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	got := tasks[0]
	if !got.Completed {
		t.Fatalf("expected completed task")
	}
	if got.Text != "Buy milk" {
		t.Fatalf("expected text %q, got %q", "Buy milk", got.Text)
	}
	if got.Due != "2025-03-01" {
		t.Fatalf("expected due 2025-03-01, got %q", got.Due)
	}
	if got.Notes != "remember oat milk" {
		t.Fatalf("expected notes %q, got %q", "remember oat milk", got.Notes)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Fatalf("expected empty non-nil tags, got %#v", got.Tags)
	}
}

func TestParseTasksLineShapes(t *testing.T) {
	input := "# Title\n" +
		"- [ ] first\n" +
		"  - [x] child #tag\n" +
		"\t-[ ]tight\n" +
		"- [X] upper\n" +
		"- [ ]   \n" +
		"* [ ] star\n" +
		"- [ ] last 📝\n"
	tasks := ParseTasks(input)
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d: %#v", len(tasks), tasks)
	}
	cases := []struct {
		text   string
		line   int
		indent int
	}{
		{"first", 1, 0},
		{"child #tag", 2, 2},
		{"tight", 3, 1},
		{"last", 7, 0},
	}
	for i, tc := range cases {
		if tasks[i].Text != tc.text || tasks[i].Line != tc.line || tasks[i].Indent != tc.indent {
			t.Fatalf("expected %+v at %d, got %+v", tc, i, tasks[i])
		}
	}
	if tasks[3].Notes != "" {
		t.Fatalf("expected empty notes, got %q", tasks[3].Notes)
	}
}

func TestOrganizeSubtasksKeepsOrder(t *testing.T) {
	tasks := ParseTasks("- [ ] a\n  - [ ] b\n    - [ ] c\n  - [ ] d\n- [ ] e\n")
	organized := OrganizeSubtasks(tasks)
	if len(organized) != len(tasks) {
		t.Fatalf("expected %d tasks, got %d", len(tasks), len(organized))
	}
	for i := range tasks {
		if organized[i].Text != tasks[i].Text {
			t.Fatalf("expected %q at %d, got %q", tasks[i].Text, i, organized[i].Text)
		}
	}
	organized[0].Text = "changed"
	if tasks[0].Text == "changed" {
		t.Fatalf("expected organized slice to be a copy")
	}
}

func TestParentsAndDepths(t *testing.T) {
	tasks := ParseTasks("- [ ] a\n  - [ ] b\n    - [ ] c\n  - [ ] d\n- [ ] e\n- [ ] f\n")
	parents := Parents(tasks)
	want := []int{-1, 0, 1, 0, -1, -1}
	for i := range want {
		if parents[i] != want[i] {
			t.Fatalf("expected parent %d at %d, got %d", want[i], i, parents[i])
		}
	}
	depths := Depths(tasks)
	wantDepths := []int{0, 1, 2, 1, 0, 0}
	for i := range wantDepths {
		if depths[i] != wantDepths[i] {
			t.Fatalf("expected depth %d at %d, got %d", wantDepths[i], i, depths[i])
		}
	}
}

func TestTaskFilters(t *testing.T) {
	tasks := ParseTasks("- [ ] a 📅 2025-01-01\n- [x] b\n- [ ] c\n")
	if got := TasksByStatus(tasks, false); len(got) != 2 || got[1].Text != "c" {
		t.Fatalf("expected two open tasks, got %#v", got)
	}
	if got := TasksByStatus(tasks, true); len(got) != 1 || got[0].Text != "b" {
		t.Fatalf("expected one done task, got %#v", got)
	}
	if got := TasksWithDueDates(tasks); len(got) != 1 || got[0].Text != "a" {
		t.Fatalf("expected one dated task, got %#v", got)
	}
}

func TestFormatTaskRoundTrip(t *testing.T) {
	line := "  - [x] Buy milk 📅 2025-03-01 📝 remember oat milk"
	tasks := ParseTasks(line)
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if got := FormatTask(tasks[0]); got != line {
		t.Fatalf("expected %q, got %q", line, got)
	}
}
