package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pwflint/obsidian-things-export/internal/config"
	"github.com/pwflint/obsidian-things-export/internal/note"
	storagefs "github.com/pwflint/obsidian-things-export/internal/storage/fs"
)

var ErrDocumentNotFound = errors.New("document not found")

// Host is the document store notes are read from and written back to.
type Host interface {
	ReadDocument(ctx context.Context, path string) (string, error)
	WriteDocument(ctx context.Context, path string, content string) error
}

// Notifier shows short messages to the user.
type Notifier interface {
	Notify(msg string)
}

// WriterNotifier prints one message per line.
type WriterNotifier struct {
	mu sync.Mutex
	W  io.Writer
}

func (n *WriterNotifier) Notify(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.W, msg)
}

type discardNotifier struct{}

func (discardNotifier) Notify(string) {}

// FileHost keeps notes as files. Relative paths resolve against Root.
type FileHost struct {
	Root string
}

func (h FileHost) Resolve(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", ErrNoActiveTarget
	}
	path = config.ExpandHome(path)
	if !filepath.IsAbs(path) && h.Root != "" {
		path = filepath.Join(config.ExpandHome(h.Root), path)
	}
	return filepath.Abs(path)
}

func (h FileHost) ReadDocument(_ context.Context, path string) (string, error) {
	full, err := h.Resolve(path)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrDocumentNotFound, full)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h FileHost) WriteDocument(_ context.Context, path string, content string) error {
	full, err := h.Resolve(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(full); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, full)
	}
	return storagefs.WriteFileAtomic(full, []byte(content), 0o644)
}

// LinkedNote is a markdown file that already carries a Things link.
type LinkedNote struct {
	Path   string `json:"path"`
	Target string `json:"target"`
	ID     string `json:"id,omitempty"`
}

// Linked walks dir (relative to Root) and reports every markdown note with a
// link matched by links. Hidden directories are skipped. Paths are relative
// to dir, in walk order.
func (h FileHost) Linked(ctx context.Context, dir string, links note.Links) ([]LinkedNote, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	root, err := h.Resolve(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, root)
	}
	out := []LinkedNote{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		target, ok := links.Target(string(b))
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		id, _ := links.ID(string(b))
		out = append(out, LinkedNote{Path: filepath.ToSlash(rel), Target: target, ID: id})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
