package note

import (
	"reflect"
	"strings"
	"testing"
)

const launchPlan = "---\n" +
	"title: Launch Plan\n" +
	"tags: [launch, team/eng]\n" +
	"---\n" +
	"Some **notes** with #extra\n" +
	"- [ ] Write brief 📅 2025-04-01\n" +
	"  - [x] Book room\n"

func TestParseBundle(t *testing.T) {
	n := Parse(launchPlan)
	if n.Project.Title != "Launch Plan" {
		t.Fatalf("expected title Launch Plan, got %q", n.Project.Title)
	}
	if len(n.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(n.Tasks))
	}
	assertStrings(t, n.Tags, []string{"launch", "team/eng", "extra"})
	if n.Body != "Some **notes** with #extra" {
		t.Fatalf("unexpected body %q", n.Body)
	}
}

func TestParseIsIdempotent(t *testing.T) {
	inputs := []string{launchPlan, "", "# Only heading", "---\n---\n- [ ] x\n"}
	for _, in := range inputs {
		a, b := Parse(in), Parse(in)
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("expected identical parses for %q", in)
		}
	}
}

func TestProjectRecordOptions(t *testing.T) {
	n := Parse(launchPlan)
	p := n.ProjectRecord(Options{})
	assertStrings(t, p.Tags, []string{"launch", "team", "eng", "extra"})
	if p.Description != n.Body {
		t.Fatalf("expected body as description, got %q", p.Description)
	}
	p = n.ProjectRecord(Options{StripFormatting: true, TagStyle: TagStyleThings})
	if strings.Contains(p.Description, "**") || !strings.Contains(p.Description, "Some notes with") {
		t.Fatalf("expected plain description, got %q", p.Description)
	}
	assertStrings(t, p.Tags, []string{"Launch", "Team", "Eng", "Extra"})
	if p := n.ProjectRecord(Options{OmitNotes: true}); p.Description != "" {
		t.Fatalf("expected no description, got %q", p.Description)
	}
	if len(n.Project.Tags) != 2 {
		t.Fatalf("expected parsed project to stay untouched, got %#v", n.Project.Tags)
	}
}

func TestPlainText(t *testing.T) {
	input := "# Title\n\nSome **bold** and [a link](http://example.com) text.\n\n- one\n- two\n\n```\ncode line\n```\n"
	got := PlainText(input)
	for _, want := range []string{"Title", "Some bold and a link text.", "one", "two", "code line"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
	for _, bad := range []string{"**", "](", "# ", "```"} {
		if strings.Contains(got, bad) {
			t.Fatalf("expected %q to be stripped from %q", bad, got)
		}
	}
}

func TestProjectRecordStripsConfiguredSchemeLink(t *testing.T) {
	n := Parse("[Things](things-beta:///show?id=B1)\n\nSee [Things](things:///show?id=A1)\n")
	if n.Body != "[Things](things-beta:///show?id=B1)\n\nSee" {
		t.Fatalf("unexpected default body %q", n.Body)
	}
	p := n.ProjectRecord(Options{LinkScheme: "things-beta"})
	if p.Description != "See [Things](things:///show?id=A1)" {
		t.Fatalf("expected only the things-beta link stripped, got %q", p.Description)
	}
}
