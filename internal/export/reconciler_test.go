package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pwflint/obsidian-things-export/internal/things"
)

type memHost struct {
	mu       sync.Mutex
	docs     map[string]string
	writeErr error
}

func newMemHost(docs map[string]string) *memHost {
	return &memHost{docs: docs}
}

func (h *memHost) ReadDocument(_ context.Context, path string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	doc, ok := h.docs[path]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, path)
	}
	return doc, nil
}

func (h *memHost) WriteDocument(_ context.Context, path string, content string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writeErr != nil {
		return h.writeErr
	}
	h.docs[path] = content
	return nil
}

func (h *memHost) doc(path string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.docs[path]
}

type notes struct {
	mu   sync.Mutex
	msgs []string
}

func (n *notes) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *notes) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		return ""
	}
	return n.msgs[len(n.msgs)-1]
}

const launchNote = "---\n" +
	"title: Launch Plan\n" +
	"---\n" +
	"Some notes\n" +
	"- [ ] First\n" +
	"- [x] Second\n"

func newTestReconciler(host Host, rec *things.Recorder, n Notifier) *Reconciler {
	return New(Config{
		Host:     host,
		Builder:  things.NewBuilder(things.Options{}, rec),
		Notifier: n,
	})
}

func TestExportQueuesTasksAndDispatchesProject(t *testing.T) {
	host := newMemHost(map[string]string{"launch.md": launchNote})
	rec := &things.Recorder{}
	msgs := &notes{}
	r := newTestReconciler(host, rec, msgs)

	res, err := r.Export(context.Background(), "launch.md")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if res.PendingTasks != 2 {
		t.Fatalf("expected 2 pending tasks, got %d", res.PendingTasks)
	}
	if !strings.HasPrefix(res.Token, tokenPrefix) {
		t.Fatalf("expected op token, got %q", res.Token)
	}
	urls := rec.URLs()
	if len(urls) != 1 {
		t.Fatalf("expected one project request, got %#v", urls)
	}
	if !strings.HasPrefix(urls[0], "things:///add-project?title=Launch%20Plan&notes=Some%20notes&x-success=") {
		t.Fatalf("unexpected project url %q", urls[0])
	}
	if !strings.Contains(urls[0], res.Token) {
		t.Fatalf("expected token in callback, got %q", urls[0])
	}
	if urls[0] != res.ProjectURL {
		t.Fatalf("expected result url to match dispatched url")
	}
	if msgs.last() != msgInitiated {
		t.Fatalf("expected initiated notice, got %q", msgs.last())
	}
	if pending := r.Pending(); len(pending) != 1 || pending[0].Title != "Launch Plan" {
		t.Fatalf("unexpected pending %#v", pending)
	}
}

func TestProjectCallbackWritesLinkAndDrains(t *testing.T) {
	host := newMemHost(map[string]string{"launch.md": launchNote})
	rec := &things.Recorder{}
	msgs := &notes{}
	r := newTestReconciler(host, rec, msgs)
	ctx := context.Background()

	res, err := r.Export(ctx, "launch.md")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rec.Reset()
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=P123&op="+res.Token); err != nil {
		t.Fatalf("callback: %v", err)
	}
	doc := host.doc("launch.md")
	if !strings.HasPrefix(doc, "---\ntitle: Launch Plan\n---\n[Things](things:///show?id=P123)\n\nSome notes") {
		t.Fatalf("unexpected document %q", doc)
	}
	urls := rec.URLs()
	if len(urls) != 2 {
		t.Fatalf("expected 2 task requests, got %#v", urls)
	}
	for i, title := range []string{"First", "Second"} {
		if !strings.HasPrefix(urls[i], "things:///add?title="+title+"&list-id=P123&x-success=") {
			t.Fatalf("unexpected task url %q", urls[i])
		}
	}
	if msgs.last() != "Project created successfully! ID: P123" {
		t.Fatalf("unexpected notice %q", msgs.last())
	}
	if len(r.Pending()) != 0 {
		t.Fatalf("expected operation drained")
	}
	err = r.HandleCallback(ctx, "notelink://project-id?x-things-id=P123&op="+res.Token)
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected drained token to be unknown, got %v", err)
	}
}

func TestConcurrentExportsStaySeparate(t *testing.T) {
	host := newMemHost(map[string]string{
		"a.md": "# Alpha\n- [ ] a1\n",
		"b.md": "# Beta\n- [ ] b1\n- [ ] b2\n",
	})
	rec := &things.Recorder{}
	r := newTestReconciler(host, rec, nil)
	ctx := context.Background()

	resA, err := r.Export(ctx, "a.md")
	if err != nil {
		t.Fatalf("export a: %v", err)
	}
	resB, err := r.Export(ctx, "b.md")
	if err != nil {
		t.Fatalf("export b: %v", err)
	}
	rec.Reset()
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=A1&op="+resA.Token); err != nil {
		t.Fatalf("callback a: %v", err)
	}
	urls := rec.URLs()
	if len(urls) != 1 || !strings.Contains(urls[0], "title=a1&list-id=A1") {
		t.Fatalf("expected only alpha's task, got %#v", urls)
	}
	if _, ok := extractID(host.doc("b.md")); ok {
		t.Fatalf("expected beta untouched")
	}
	pending := r.Pending()
	if len(pending) != 1 || pending[0].Token != resB.Token || pending[0].PendingTasks != 2 {
		t.Fatalf("unexpected pending %#v", pending)
	}
}

func TestCallbackWithoutTokenUsesLatest(t *testing.T) {
	host := newMemHost(map[string]string{"a.md": "# A\n", "b.md": "# B\n- [ ] b1\n"})
	rec := &things.Recorder{}
	r := newTestReconciler(host, rec, nil)
	ctx := context.Background()
	if _, err := r.Export(ctx, "a.md"); err != nil {
		t.Fatalf("export a: %v", err)
	}
	if _, err := r.Export(ctx, "b.md"); err != nil {
		t.Fatalf("export b: %v", err)
	}
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=B9"); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if id, _ := extractID(host.doc("b.md")); id != "B9" {
		t.Fatalf("expected latest export to get the link, got %q", host.doc("b.md"))
	}
	if len(r.Pending()) != 1 {
		t.Fatalf("expected first export still pending")
	}
}

func TestCallbackNoOpsAndErrors(t *testing.T) {
	host := newMemHost(map[string]string{"a.md": "# A\n"})
	rec := &things.Recorder{}
	msgs := &notes{}
	r := newTestReconciler(host, rec, msgs)
	ctx := context.Background()

	if err := r.HandleCallback(ctx, "notelink://project-id"); err != nil {
		t.Fatalf("expected silent no-op, got %v", err)
	}
	if len(msgs.msgs) != 0 {
		t.Fatalf("expected no notices, got %#v", msgs.msgs)
	}
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=X&op=op_missing"); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=X"); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation without pending exports, got %v", err)
	}
	if err := r.HandleCallback(ctx, "notelink://bogus?x-things-id=X"); !errors.Is(err, things.ErrUnknownCallback) {
		t.Fatalf("expected ErrUnknownCallback, got %v", err)
	}
	if err := r.HandleCallback(ctx, "notelink://task-id?x-things-id=T1"); err != nil {
		t.Fatalf("task callback: %v", err)
	}
	if msgs.last() != "Task created successfully! ID: T1" {
		t.Fatalf("unexpected notice %q", msgs.last())
	}
	if host.doc("a.md") != "# A\n" {
		t.Fatalf("expected task callback not to touch documents")
	}
}

func TestExportWithoutTarget(t *testing.T) {
	rec := &things.Recorder{}
	msgs := &notes{}
	r := newTestReconciler(newMemHost(map[string]string{}), rec, msgs)
	if _, err := r.Export(context.Background(), "  "); !errors.Is(err, ErrNoActiveTarget) {
		t.Fatalf("expected ErrNoActiveTarget, got %v", err)
	}
	if msgs.last() != "No active file found. Please open a note first." {
		t.Fatalf("unexpected notice %q", msgs.last())
	}
	if len(rec.URLs()) != 0 {
		t.Fatalf("expected no requests")
	}
	if _, err := r.Export(context.Background(), "missing.md"); !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestExportDispatchFailureKeepsOtherOperations(t *testing.T) {
	host := newMemHost(map[string]string{"a.md": "# A\n- [ ] t\n", "b.md": "# B\n"})
	rec := &things.Recorder{}
	msgs := &notes{}
	r := newTestReconciler(host, rec, msgs)
	ctx := context.Background()
	resA, err := r.Export(ctx, "a.md")
	if err != nil {
		t.Fatalf("export a: %v", err)
	}
	rec.Err = errors.New("opener missing")
	_, err = r.Export(ctx, "b.md")
	if !errors.Is(err, things.ErrDispatch) {
		t.Fatalf("expected ErrDispatch, got %v", err)
	}
	if !strings.HasPrefix(msgs.last(), "Export failed: ") || !strings.Contains(msgs.last(), "opener missing") {
		t.Fatalf("unexpected notice %q", msgs.last())
	}
	pending := r.Pending()
	if len(pending) != 1 || pending[0].Token != resA.Token {
		t.Fatalf("expected only the first export pending, got %#v", pending)
	}
}

func TestLinkWriteFailureKeepsOperationPending(t *testing.T) {
	host := newMemHost(map[string]string{"a.md": "# A\n- [ ] t\n"})
	rec := &things.Recorder{}
	r := newTestReconciler(host, rec, nil)
	ctx := context.Background()
	res, err := r.Export(ctx, "a.md")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rec.Reset()
	host.writeErr = errors.New("read-only")
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=P&op="+res.Token); err == nil {
		t.Fatalf("expected write failure")
	}
	if len(rec.URLs()) != 0 {
		t.Fatalf("expected no task requests before the link is written")
	}
	if len(r.Pending()) != 1 {
		t.Fatalf("expected operation to stay pending")
	}
	host.writeErr = nil
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=P&op="+res.Token); err != nil {
		t.Fatalf("retry callback: %v", err)
	}
	if len(rec.URLs()) != 1 {
		t.Fatalf("expected queued task after retry, got %#v", rec.URLs())
	}
}

func TestTaskDispatchFailureContinuesDrain(t *testing.T) {
	host := newMemHost(map[string]string{"a.md": "# A\n- [ ] one\n- [ ] bad\n- [ ] three\n"})
	rec := &things.Recorder{}
	r := newTestReconciler(host, rec, nil)
	ctx := context.Background()
	res, err := r.Export(ctx, "a.md")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	rec.Reset()
	rec.FailOn = "title=bad"
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=P&op="+res.Token); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if urls := rec.URLs(); len(urls) != 2 || !strings.Contains(urls[1], "title=three") {
		t.Fatalf("expected drain to continue past the failure, got %#v", urls)
	}
	if len(r.Pending()) != 0 {
		t.Fatalf("expected operation drained")
	}
}

func TestSecondCallbackReplacesLink(t *testing.T) {
	host := newMemHost(map[string]string{"a.md": "Body\n"})
	r := newTestReconciler(host, &things.Recorder{}, nil)
	ctx := context.Background()
	for _, id := range []string{"First1", "Second2"} {
		res, err := r.Export(ctx, "a.md")
		if err != nil {
			t.Fatalf("export: %v", err)
		}
		if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id="+id+"&op="+res.Token); err != nil {
			t.Fatalf("callback: %v", err)
		}
	}
	doc := host.doc("a.md")
	if doc != "[Things](things:///show?id=Second2)\n\nBody\n" {
		t.Fatalf("unexpected document %q", doc)
	}
}

func TestProjectCallbackKeepsForeignThingsLink(t *testing.T) {
	doc := "---\ntitle: X\n---\nSee [Things](https://culturedcode.com/things/) for docs.\n"
	host := newMemHost(map[string]string{"x.md": doc})
	rec := &things.Recorder{}
	r := newTestReconciler(host, rec, nil)
	ctx := context.Background()

	res, err := r.Export(ctx, "x.md")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(rec.URLs()[0], "notes=See%20%5BThings%5D%28https%3A%2F%2Fculturedcode.com%2Fthings%2F%29%20for%20docs.") {
		t.Fatalf("expected prose link kept in notes, got %q", rec.URLs()[0])
	}
	if err := r.HandleCallback(ctx, "notelink://project-id?x-things-id=abc&op="+res.Token); err != nil {
		t.Fatalf("callback: %v", err)
	}
	want := "---\ntitle: X\n---\n[Things](things:///show?id=abc)\n\nSee [Things](https://culturedcode.com/things/) for docs.\n"
	if got := host.doc("x.md"); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestExportBacklinkAndTags(t *testing.T) {
	host := newMemHost(map[string]string{"Projects/plan.md": "---\ntitle: Plan\ntags: [home]\n---\nBody\n"})
	rec := &things.Recorder{}
	r := New(Config{
		Host:      host,
		Builder:   things.NewBuilder(things.Options{CreateTags: true}, rec),
		Backlink:  true,
		VaultRoot: "/vaults/Notes",
	})
	if _, err := r.Export(context.Background(), "Projects/plan.md"); err != nil {
		t.Fatalf("export: %v", err)
	}
	urls := rec.URLs()
	if len(urls) != 2 || urls[0] != "things:///add?title=home&type=tag" {
		t.Fatalf("expected tag request before project, got %#v", urls)
	}
	backlink := "obsidian%3A%2F%2Fopen%3Fvault%3DNotes%26file%3DProjects%252Fplan.md"
	if !strings.Contains(urls[1], "notes=Body%0A%0A"+backlink+"&tags=home") {
		t.Fatalf("expected back-link after body, got %q", urls[1])
	}
}

func TestNoteURLOutsideVault(t *testing.T) {
	if got := noteURL("/vaults/Notes", "Vault Name", "/elsewhere/a.md"); got != "obsidian://open?path=%2Felsewhere%2Fa.md" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := noteURL("/vaults/Notes", "Vault Name", "/vaults/Notes/a.md"); got != "obsidian://open?vault=Vault%20Name&file=a.md" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestExportTagFailureDoesNotStopProject(t *testing.T) {
	host := newMemHost(map[string]string{"a.md": "---\ntitle: A\ntags: [bad]\n---\n"})
	rec := &things.Recorder{FailOn: "type=tag"}
	r := New(Config{Host: host, Builder: things.NewBuilder(things.Options{CreateTags: true}, rec)})
	if _, err := r.Export(context.Background(), "a.md"); err != nil {
		t.Fatalf("expected export to go on, got %v", err)
	}
	if urls := rec.URLs(); len(urls) != 1 || !strings.Contains(urls[0], "add-project") {
		t.Fatalf("expected project request only, got %#v", urls)
	}
}

func extractID(doc string) (string, bool) {
	const marker = "things:///show?id="
	i := strings.Index(doc, marker)
	if i < 0 {
		return "", false
	}
	rest := doc[i+len(marker):]
	if j := strings.IndexByte(rest, ')'); j >= 0 {
		rest = rest[:j]
	}
	return rest, true
}
