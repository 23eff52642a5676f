package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/pwflint/obsidian-things-export/internal/config"
	"github.com/pwflint/obsidian-things-export/internal/export"
	"github.com/pwflint/obsidian-things-export/internal/note"
	"github.com/pwflint/obsidian-things-export/internal/things"
)

type parseOutput struct {
	Path    string       `json:"path" yaml:"path"`
	Project note.Project `json:"project" yaml:"project"`
	Tasks   []note.Task  `json:"tasks" yaml:"tasks"`
	Tags    []string     `json:"tags" yaml:"tags"`
}

type taskRow struct {
	note.Task `yaml:",inline"`
	Depth     int `json:"depth" yaml:"depth"`
	Parent    int `json:"parent" yaml:"parent"`
}

type urlsOutput struct {
	Path       string   `json:"path"`
	TagURLs    []string `json:"tag_urls,omitempty"`
	ProjectURL string   `json:"project_url"`
	TaskURLs   []string `json:"task_urls"`
}

type linkOutput struct {
	Path   string `json:"path"`
	Target string `json:"target,omitempty"`
	ID     string `json:"id,omitempty"`
	Valid  bool   `json:"valid"`
}

// readNote loads a note from disk; relative paths resolve against the
// working directory.
func readNote(path string) (string, error) {
	return export.FileHost{}.ReadDocument(context.Background(), path)
}

func cmdParse(cs *config.Store, gf GlobalFlags, args []string) int {
	args = reorderFlags(args, map[string]bool{"--yaml": false})
	fs := newFlagSet("parse")
	asYAML := fs.Bool("yaml", false, "YAML output")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: notelink parse <note.md> [--yaml]")
		return ExitUsage
	}
	path := fs.Arg(0)
	content, err := readNote(path)
	if err != nil {
		return fail("parse", err)
	}
	n := note.Parse(content)
	out := parseOutput{
		Path:    path,
		Project: n.ProjectRecord(cs.Config().NoteOptions()),
		Tasks:   n.Tasks,
		Tags:    n.Tags,
	}

	if *asYAML {
		enc := yaml.NewEncoder(stdout)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fail("parse", err)
		}
		_ = enc.Close()
		return ExitOK
	}
	if gf.JSON {
		return emitJSON(gf, "parse", out)
	}
	if gf.Plain {
		w := tabwriter.NewWriter(stdout, 2, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FIELD\tVALUE")
		fmt.Fprintf(w, "title\t%s\n", out.Project.Title)
		fmt.Fprintf(w, "status\t%s\n", out.Project.Status)
		fmt.Fprintf(w, "start_date\t%s\n", out.Project.StartDate)
		fmt.Fprintf(w, "end_date\t%s\n", out.Project.EndDate)
		fmt.Fprintf(w, "tags\t%s\n", strings.Join(out.Project.Tags, ","))
		fmt.Fprintf(w, "tasks\t%d\n", len(out.Tasks))
		_ = w.Flush()
		return ExitOK
	}

	p := out.Project
	fmt.Fprintln(stdout, "Project:", p.Title)
	if p.Status != "" {
		fmt.Fprintln(stdout, "  Status:", p.Status)
	}
	if p.StartDate != "" || p.EndDate != "" {
		fmt.Fprintf(stdout, "  Dates: %s .. %s\n", p.StartDate, p.EndDate)
	}
	if len(p.Keywords) > 0 {
		fmt.Fprintln(stdout, "  Keywords:", strings.Join(p.Keywords, ", "))
	}
	if len(p.Aliases) > 0 {
		fmt.Fprintln(stdout, "  Aliases:", strings.Join(p.Aliases, ", "))
	}
	if len(p.Tags) > 0 {
		fmt.Fprintln(stdout, "  Tags:", strings.Join(p.Tags, ", "))
	}
	done := len(note.TasksByStatus(out.Tasks, true))
	fmt.Fprintf(stdout, "  Tasks: %d (%d done)\n", len(out.Tasks), done)
	links := things.NewBuilder(cs.Config().ThingsOptions(), nil).Links()
	if id, ok := links.ID(content); ok {
		fmt.Fprintln(stdout, "  Things ID:", id)
	}
	if p.Description != "" {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, p.Description)
	}
	return ExitOK
}

func cmdTasks(cs *config.Store, gf GlobalFlags, args []string) int {
	args = reorderFlags(args, map[string]bool{
		"--open": false,
		"--done": false,
		"--due":  false,
	})
	fs := newFlagSet("tasks")
	openOnly := fs.Bool("open", false, "Only open tasks")
	doneOnly := fs.Bool("done", false, "Only completed tasks")
	dueOnly := fs.Bool("due", false, "Only tasks with a due date")
	if err := fs.Parse(args); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: notelink tasks <note.md> [--open|--done] [--due]")
		return ExitUsage
	}
	if *openOnly && *doneOnly {
		fmt.Fprintln(stderr, "tasks: --open and --done are mutually exclusive")
		return ExitUsage
	}
	content, err := readNote(fs.Arg(0))
	if err != nil {
		return fail("tasks", err)
	}

	tasks := note.ParseTasks(content)
	parents := note.Parents(tasks)
	depths := note.Depths(tasks)
	index := make(map[int]int, len(tasks))
	for i, t := range tasks {
		index[t.Line] = i
	}
	selected := tasks
	switch {
	case *openOnly:
		selected = note.TasksByStatus(selected, false)
	case *doneOnly:
		selected = note.TasksByStatus(selected, true)
	}
	if *dueOnly {
		selected = note.TasksWithDueDates(selected)
	}
	rows := make([]taskRow, 0, len(selected))
	for _, t := range selected {
		i := index[t.Line]
		rows = append(rows, taskRow{Task: t, Depth: depths[i], Parent: parents[i]})
	}

	if gf.JSON {
		return emitJSON(gf, "tasks", rows)
	}
	if gf.Plain {
		for _, r := range rows {
			fmt.Fprintf(stdout, "%d\t%t\t%d\t%s\t%s\t%s\n", r.Line+1, r.Completed, r.Depth, r.Due, r.Text, r.Notes)
		}
		return ExitOK
	}
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No tasks.")
		return ExitOK
	}
	for _, r := range rows {
		t := r.Task
		t.Indent = r.Depth * 2
		fmt.Fprintln(stdout, note.FormatTask(t))
	}
	return ExitOK
}

// cmdURLs runs the export against a recorder instead of the opener, so the
// printed requests are exactly what serve would send.
func cmdURLs(cs *config.Store, gf GlobalFlags, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "Usage: notelink urls <note.md>")
		return ExitUsage
	}
	content, err := readNote(args[0])
	if err != nil {
		return fail("urls", err)
	}
	cfg := cs.Config()
	rec := &things.Recorder{}
	b := things.NewBuilder(cfg.ThingsOptions(), rec)
	r := export.New(exportConfig(cfg, export.FileHost{}, b, nil, slog.New(slog.DiscardHandler)))
	if _, err := r.Export(context.Background(), args[0]); err != nil {
		return fail("urls", err)
	}
	sent := rec.URLs()
	out := urlsOutput{
		Path:       args[0],
		TagURLs:    sent[:len(sent)-1],
		ProjectURL: sent[len(sent)-1],
		TaskURLs:   []string{},
	}
	// The project id is unknown until Things answers, so no list-id yet.
	taskCallback := b.CallbackAddress(things.ActionTaskCreated, "")
	for _, t := range note.Parse(content).Tasks {
		out.TaskURLs = append(out.TaskURLs, b.TaskURL(t, things.PlaceholderProjectID, taskCallback))
	}

	if gf.JSON {
		return emitJSON(gf, "urls", out)
	}
	for _, u := range out.TagURLs {
		fmt.Fprintln(stdout, u)
	}
	fmt.Fprintln(stdout, out.ProjectURL)
	for _, u := range out.TaskURLs {
		fmt.Fprintln(stdout, u)
	}
	return ExitOK
}

func cmdLink(cs *config.Store, gf GlobalFlags, args []string) int {
	usage := func() int {
		fmt.Fprintln(stderr, "Usage: notelink link <show|rm> <note.md> | notelink link set <note.md> <id>")
		return ExitUsage
	}
	if len(args) < 2 {
		return usage()
	}
	sub, path := args[0], args[1]
	host := export.FileHost{}
	ctx := context.Background()
	b := things.NewBuilder(cs.Config().ThingsOptions(), nil)
	links := b.Links()

	switch sub {
	case "show":
		if len(args) != 2 {
			return usage()
		}
		content, err := host.ReadDocument(ctx, path)
		if err != nil {
			return fail("link", err)
		}
		target, ok := links.Target(content)
		if !ok {
			fmt.Fprintln(stderr, "No Things link in", path)
			return ExitNotFound
		}
		id, _ := links.ID(content)
		valid := b.ValidLinkURL(target)
		if gf.JSON {
			return emitJSON(gf, "link", linkOutput{Path: path, Target: target, ID: id, Valid: valid})
		}
		if gf.Plain {
			fmt.Fprintf(stdout, "%s\t%s\n", id, target)
			return ExitOK
		}
		fmt.Fprintln(stdout, "Things link:", target)
		if id != "" {
			fmt.Fprintln(stdout, "  ID:", id)
		}
		if !valid {
			fmt.Fprintln(stdout, "  (not a show link written by notelink)")
		}
		return ExitOK

	case "rm", "remove":
		if len(args) != 2 {
			return usage()
		}
		content, err := host.ReadDocument(ctx, path)
		if err != nil {
			return fail("link", err)
		}
		updated := links.Remove(content)
		if updated == content {
			if !gf.Quiet {
				fmt.Fprintln(stdout, "No Things link in", path)
			}
			return ExitOK
		}
		if err := host.WriteDocument(ctx, path, updated); err != nil {
			return fail("link", err)
		}
		if !gf.Quiet {
			fmt.Fprintln(stdout, "Removed Things link from", path)
		}
		return ExitOK

	case "set":
		if len(args) != 3 || strings.TrimSpace(args[2]) == "" {
			return usage()
		}
		content, err := host.ReadDocument(ctx, path)
		if err != nil {
			return fail("link", err)
		}
		target := b.LinkURL(strings.TrimSpace(args[2]))
		if !b.ValidLinkURL(target) {
			fmt.Fprintln(stderr, "link: Things ids are letters and digits only:", args[2])
			return ExitUsage
		}
		if err := host.WriteDocument(ctx, path, links.Upsert(content, target)); err != nil {
			return fail("link", err)
		}
		if !gf.Quiet {
			fmt.Fprintln(stdout, "Linked", path, "to", target)
		}
		return ExitOK
	default:
		return usage()
	}
}

func cmdLinked(cs *config.Store, gf GlobalFlags, args []string) int {
	if len(args) > 1 {
		fmt.Fprintln(stderr, "Usage: notelink linked [dir]")
		return ExitUsage
	}
	cfg := cs.Config()
	dir := firstNonEmpty(cfg.Daemon.Vault, ".")
	if len(args) == 1 {
		dir = args[0]
	}
	links := things.NewBuilder(cfg.ThingsOptions(), nil).Links()
	found, err := export.FileHost{}.Linked(context.Background(), dir, links)
	if err != nil {
		return fail("linked", err)
	}
	if gf.JSON {
		return emitJSON(gf, "linked", found)
	}
	if gf.Plain {
		for _, n := range found {
			fmt.Fprintf(stdout, "%s\t%s\t%s\n", n.Path, n.ID, n.Target)
		}
		return ExitOK
	}
	if len(found) == 0 {
		fmt.Fprintln(stdout, "No linked notes.")
		return ExitOK
	}
	w := tabwriter.NewWriter(stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NOTE\tID")
	for _, n := range found {
		fmt.Fprintf(w, "%s\t%s\n", n.Path, firstNonEmpty(n.ID, n.Target))
	}
	_ = w.Flush()
	return ExitOK
}
