// Package things builds Things URL scheme requests and parses the callback
// addresses Things invokes when a request succeeds.
package things

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pwflint/obsidian-things-export/internal/note"
)

const (
	DefaultScheme         = "things"
	DefaultCallbackScheme = "notelink"

	PlaceholderProjectID = "placeholder-project-id"
	PlaceholderTaskID    = "placeholder-task-id"

	ActionProjectCreated = "project-id"
	ActionTaskCreated    = "task-id"

	dateLayout = "2006-01-02"
)

var ErrDispatch = errors.New("dispatch failed")

type Options struct {
	Scheme         string
	CallbackScheme string
	Area           string
	// IncludeDates adds deadlines: the end date of a project, the due date of a task.
	IncludeDates bool
	// MarkCompleted sends completed=true for checked tasks.
	MarkCompleted bool
	// DateLayout is the time layout of header dates. Empty means YYYY-MM-DD.
	DateLayout string
	// CreateTags sends one tag request per project tag ahead of the project.
	CreateTags bool
}

type Builder struct {
	opts       Options
	dispatcher Dispatcher
}

func NewBuilder(opts Options, d Dispatcher) *Builder {
	if opts.Scheme == "" {
		opts.Scheme = DefaultScheme
	}
	if opts.CallbackScheme == "" {
		opts.CallbackScheme = DefaultCallbackScheme
	}
	if opts.DateLayout == "" {
		opts.DateLayout = dateLayout
	}
	return &Builder{opts: opts, dispatcher: d}
}

func (b *Builder) CallbackScheme() string { return b.opts.CallbackScheme }

// Links matches note links built by LinkURL.
func (b *Builder) Links() note.Links { return note.NewLinks(b.opts.Scheme) }

// CallbackAddress returns the x-success address for action. The token, when
// set, lets the callback be matched to the export that issued it.
func (b *Builder) CallbackAddress(action string, token string) string {
	addr := b.opts.CallbackScheme + "://" + action
	if token != "" {
		addr += "?op=" + encodeComponent(token)
	}
	return addr
}

func (b *Builder) ProjectURL(p note.Project, callback string) string {
	var q query
	q.add("title", p.Title)
	q.add("notes", p.Description)
	q.add("tags", strings.Join(p.Tags, ","))
	q.add("area", b.opts.Area)
	if b.opts.IncludeDates {
		q.add("deadline", b.normalizeDate(p.EndDate))
	}
	q.add("x-success", callback)
	return b.opts.Scheme + ":///add-project?" + q.String()
}

// TaskURL renders an add request. projectID becomes list-id unless it is
// empty or still the placeholder.
func (b *Builder) TaskURL(t note.Task, projectID string, callback string) string {
	var q query
	// A checkbox holding only a date or notes still needs the parameter.
	q.set("title", t.Text)
	q.add("notes", t.Notes)
	q.add("tags", strings.Join(t.Tags, ","))
	if b.opts.IncludeDates {
		q.add("deadline", t.Due)
	}
	if b.opts.MarkCompleted && t.Completed {
		q.add("completed", "true")
	}
	if projectID != PlaceholderProjectID {
		q.add("list-id", projectID)
	}
	q.add("x-success", callback)
	return b.opts.Scheme + ":///add?" + q.String()
}

// CreateProject dispatches the project request without waiting for Things.
// The real id only arrives through the callback.
func (b *Builder) CreateProject(ctx context.Context, p note.Project, callback string) (string, error) {
	if err := b.dispatch(ctx, b.ProjectURL(p, callback)); err != nil {
		return "", fmt.Errorf("%w: create project: %w", ErrDispatch, err)
	}
	return PlaceholderProjectID, nil
}

func (b *Builder) CreateTask(ctx context.Context, t note.Task, projectID string, callback string) (string, error) {
	if err := b.dispatch(ctx, b.TaskURL(t, projectID, callback)); err != nil {
		return "", fmt.Errorf("%w: create task: %w", ErrDispatch, err)
	}
	return PlaceholderTaskID, nil
}

// TagURL asks Things to create tag. Things ignores tags it already has.
func (b *Builder) TagURL(tag string) string {
	var q query
	q.set("title", tag)
	q.add("type", "tag")
	return b.opts.Scheme + ":///add?" + q.String()
}

// CreateTags dispatches a tag request per tag when Options.CreateTags is set.
// Every tag is tried; the failures come back joined.
func (b *Builder) CreateTags(ctx context.Context, tags []string) error {
	if !b.opts.CreateTags {
		return nil
	}
	var errs []error
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		if err := b.dispatch(ctx, b.TagURL(tag)); err != nil {
			errs = append(errs, fmt.Errorf("%w: create tag %q: %w", ErrDispatch, tag, err))
		}
	}
	return errors.Join(errs...)
}

// ShowURL opens Things without selecting anything.
func (b *Builder) ShowURL() string {
	return b.opts.Scheme + ":///show"
}

// CheckAvailable opens Things once to prove the opener and the app respond.
func (b *Builder) CheckAvailable(ctx context.Context) error {
	if err := b.dispatch(ctx, b.ShowURL()); err != nil {
		return fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	return nil
}

// NoteURL is the obsidian:// address of a note, used as the back-link in
// project notes. With a vault name file is vault relative; without one file
// must be an absolute path.
func NoteURL(vault string, file string) string {
	var q query
	if vault == "" {
		q.set("path", file)
	} else {
		q.set("vault", vault)
		q.set("file", file)
	}
	return "obsidian://open?" + q.String()
}

func (b *Builder) dispatch(ctx context.Context, u string) error {
	if b.dispatcher == nil {
		return errors.New("no dispatcher configured")
	}
	return b.dispatcher.Dispatch(ctx, u)
}

// LinkURL is the address the note links to for an item id.
func (b *Builder) LinkURL(id string) string {
	return b.opts.Scheme + ":///show?id=" + encodeComponent(id)
}

var linkIDRe = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

func (b *Builder) ValidLinkURL(s string) bool {
	prefix := b.opts.Scheme + ":///show?id="
	return strings.HasPrefix(s, prefix) && linkIDRe.MatchString(s[len(prefix):])
}

func (b *Builder) normalizeDate(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	t, err := time.Parse(b.opts.DateLayout, value)
	if err != nil {
		return ""
	}
	return t.Format(dateLayout)
}

// query keeps parameters in insertion order and skips empty values.
type query struct {
	parts []string
}

func (q *query) add(key string, value string) {
	if value == "" {
		return
	}
	q.parts = append(q.parts, key+"="+encodeComponent(value))
}

// set adds the parameter even when value is empty.
func (q *query) set(key string, value string) {
	q.parts = append(q.parts, key+"="+encodeComponent(value))
}

func (q *query) String() string {
	return strings.Join(q.parts, "&")
}

// encodeComponent escapes s for use inside a query value. Spaces become %20,
// which Things decodes the same way browsers do.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
