// Package export runs the two step export of a note: the project request goes
// out at once, the task requests wait until Things reports the project id.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pwflint/obsidian-things-export/internal/config"
	"github.com/pwflint/obsidian-things-export/internal/note"
	"github.com/pwflint/obsidian-things-export/internal/things"
)

var (
	ErrNoActiveTarget   = errors.New("no active document")
	ErrUnknownOperation = errors.New("unknown operation")
)

const (
	msgNoTarget       = "No active file found. Please open a note first."
	msgStarting       = "Starting project export..."
	msgInitiated      = "Project export initiated! Things 3 should open shortly."
	msgProjectCreated = "Project created successfully! ID: %s"
	msgTaskCreated    = "Task created successfully! ID: %s"
	msgFailed         = "Export failed: %s"
)

type Config struct {
	Host     Host
	Builder  *things.Builder
	Notifier Notifier
	Logger   *slog.Logger
	Note     note.Options
	// Backlink appends the obsidian:// address of the note to the project
	// notes. VaultRoot and VaultName make the address vault relative; without
	// them it carries the absolute path.
	Backlink  bool
	VaultRoot string
	VaultName string
}

// Reconciler holds the pending operations of one process. Each export owns
// its queue under a correlation token carried in the project callback.
type Reconciler struct {
	host     Host
	builder  *things.Builder
	notifier Notifier
	logger   *slog.Logger
	opts     note.Options
	links    note.Links
	locker   *Locker
	backlink func(path string) string

	mu  sync.Mutex
	ops map[string]*operation
	seq uint64
}

type operation struct {
	token   string
	path    string
	title   string
	tasks   []note.Task
	started time.Time
	seq     uint64
}

// Operation is a read-only view of a pending export.
type Operation struct {
	Token        string    `json:"token"`
	Path         string    `json:"path"`
	Title        string    `json:"title"`
	PendingTasks int       `json:"pending_tasks"`
	Started      time.Time `json:"started"`
}

type Result struct {
	Token        string `json:"token"`
	Path         string `json:"path"`
	ProjectURL   string `json:"project_url"`
	PendingTasks int    `json:"pending_tasks"`
	ProjectID    string `json:"project_id,omitempty"`
}

func New(cfg Config) *Reconciler {
	r := &Reconciler{
		host:     cfg.Host,
		builder:  cfg.Builder,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		opts:     cfg.Note,
		locker:   NewLocker(),
		ops:      make(map[string]*operation),
	}
	if r.notifier == nil {
		r.notifier = discardNotifier{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.builder == nil {
		r.builder = things.NewBuilder(things.Options{}, nil)
	}
	r.links = r.builder.Links()
	if cfg.Backlink {
		r.backlink = func(path string) string { return noteURL(cfg.VaultRoot, cfg.VaultName, path) }
	}
	return r
}

// Export parses the note at path, registers a pending operation for its
// tasks and dispatches the project request.
func (r *Reconciler) Export(ctx context.Context, path string) (Result, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		r.notifier.Notify(msgNoTarget)
		return Result{}, ErrNoActiveTarget
	}
	r.notifier.Notify(msgStarting)

	content, err := r.host.ReadDocument(ctx, path)
	if err != nil {
		return Result{}, r.fail(err)
	}
	n := note.Parse(content)
	project := n.ProjectRecord(r.opts)
	if r.backlink != nil {
		project.Description = appendLine(project.Description, r.backlink(path))
	}
	if err := r.builder.CreateTags(ctx, project.Tags); err != nil {
		r.logger.Warn("tag creation failed", "path", path, "err", err)
	}

	op, err := r.register(path, project.Title, n.Tasks)
	if err != nil {
		return Result{}, r.fail(err)
	}
	callback := r.builder.CallbackAddress(things.ActionProjectCreated, op.token)
	projectID, err := r.builder.CreateProject(ctx, project, callback)
	if err != nil {
		r.remove(op.token)
		return Result{}, r.fail(err)
	}

	r.logger.Info("export started", "token", op.token, "path", path, "title", project.Title, "tasks", len(op.tasks))
	r.notifier.Notify(msgInitiated)
	return Result{
		Token:        op.token,
		Path:         path,
		ProjectURL:   r.builder.ProjectURL(project, callback),
		PendingTasks: len(op.tasks),
		ProjectID:    projectID,
	}, nil
}

func (r *Reconciler) fail(err error) error {
	r.notifier.Notify(fmt.Sprintf(msgFailed, err.Error()))
	r.logger.Error("export failed", "err", err)
	return fmt.Errorf("export failed: %w", err)
}

func (r *Reconciler) register(path string, title string, tasks []note.Task) (*operation, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	op := &operation{
		token:   token,
		path:    path,
		title:   title,
		tasks:   append([]note.Task(nil), tasks...),
		started: timeNow(),
		seq:     r.seq,
	}
	r.ops[op.token] = op
	return op, nil
}

func (r *Reconciler) remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ops, token)
}

// HandleCallback applies an x-success callback. A callback without an id is
// ignored.
func (r *Reconciler) HandleCallback(ctx context.Context, raw string) error {
	cb, err := things.ParseCallback(raw)
	if err != nil {
		return err
	}
	if cb.ThingsID == "" {
		r.logger.Debug("callback without id ignored", "action", cb.Action)
		return nil
	}
	switch cb.Action {
	case things.ActionTaskCreated:
		r.logger.Info("task created", "id", cb.ThingsID)
		r.notifier.Notify(fmt.Sprintf(msgTaskCreated, cb.ThingsID))
		return nil
	default:
		return r.projectCreated(ctx, cb)
	}
}

func (r *Reconciler) projectCreated(ctx context.Context, cb things.Callback) error {
	op, err := r.lookup(cb.Token)
	if err != nil {
		return err
	}
	if err := r.writeLink(ctx, op.path, cb.ThingsID); err != nil {
		r.logger.Error("link write failed", "token", op.token, "path", op.path, "err", err)
		return err
	}

	tasks, ok := r.take(op.token)
	if !ok {
		// Another callback for the same operation drained it first.
		return nil
	}
	taskCallback := r.builder.CallbackAddress(things.ActionTaskCreated, "")
	for _, t := range tasks {
		if _, err := r.builder.CreateTask(ctx, t, cb.ThingsID, taskCallback); err != nil {
			r.logger.Warn("task dispatch failed", "token", op.token, "task", t.Text, "line", t.Line, "err", err)
		}
	}
	r.logger.Info("project created", "token", op.token, "id", cb.ThingsID, "tasks", len(tasks))
	r.notifier.Notify(fmt.Sprintf(msgProjectCreated, cb.ThingsID))
	return nil
}

// lookup resolves a token. Callbacks issued without one go to the most
// recently started operation.
func (r *Reconciler) lookup(token string) (*operation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token != "" {
		op, ok := r.ops[token]
		if !ok || !validToken(token) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, token)
		}
		return op, nil
	}
	var latest *operation
	for _, op := range r.ops {
		if latest == nil || op.seq > latest.seq {
			latest = op
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: no pending export", ErrUnknownOperation)
	}
	return latest, nil
}

// take removes the operation and hands back its queue in one step.
func (r *Reconciler) take(token string) ([]note.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	op, ok := r.ops[token]
	if !ok {
		return nil, false
	}
	delete(r.ops, token)
	return op.tasks, true
}

func (r *Reconciler) writeLink(ctx context.Context, path string, id string) error {
	unlock := r.locker.Lock(path)
	defer unlock()
	content, err := r.host.ReadDocument(ctx, path)
	if err != nil {
		return fmt.Errorf("write link: %w", err)
	}
	updated := r.links.Upsert(content, r.builder.LinkURL(id))
	if updated == content {
		return nil
	}
	if err := r.host.WriteDocument(ctx, path, updated); err != nil {
		return fmt.Errorf("write link: %w", err)
	}
	return nil
}

// noteURL addresses path inside the vault when it lies under root, else by
// absolute path.
func noteURL(root string, vault string, path string) string {
	abs := path
	if root != "" {
		root = config.ExpandHome(root)
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, abs)
		}
		if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") {
			name := vault
			if name == "" {
				name = filepath.Base(filepath.Clean(root))
			}
			return things.NoteURL(name, filepath.ToSlash(rel))
		}
	}
	if a, err := filepath.Abs(config.ExpandHome(abs)); err == nil {
		abs = a
	}
	return things.NoteURL("", abs)
}

func appendLine(text string, line string) string {
	if strings.TrimSpace(text) == "" {
		return line
	}
	return text + "\n\n" + line
}

// Pending lists the operations still waiting for their project callback,
// oldest first.
func (r *Reconciler) Pending() []Operation {
	r.mu.Lock()
	ops := make([]*operation, 0, len(r.ops))
	for _, op := range r.ops {
		ops = append(ops, op)
	}
	r.mu.Unlock()
	sort.Slice(ops, func(i, j int) bool { return ops[i].seq < ops[j].seq })
	out := make([]Operation, 0, len(ops))
	for _, op := range ops {
		out = append(out, Operation{
			Token:        op.token,
			Path:         op.path,
			Title:        op.title,
			PendingTasks: len(op.tasks),
			Started:      op.started,
		})
	}
	return out
}
