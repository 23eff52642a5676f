package things

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Dispatcher hands a request URL to the operating system. Implementations
// return once the URL is handed off; nothing waits for Things to act on it.
type Dispatcher interface {
	Dispatch(ctx context.Context, u string) error
}

// DefaultOpener is the URL opener command of the current platform.
func DefaultOpener() string {
	switch runtime.GOOS {
	case "darwin":
		return "open"
	case "windows":
		return "rundll32 url.dll,FileProtocolHandler"
	default:
		return "xdg-open"
	}
}

// CommandDispatcher runs an opener command with the URL as last argument.
type CommandDispatcher struct {
	Name string
	Args []string
}

// NewCommandDispatcher splits opener on whitespace. Empty means DefaultOpener.
func NewCommandDispatcher(opener string) *CommandDispatcher {
	if strings.TrimSpace(opener) == "" {
		opener = DefaultOpener()
	}
	fields := strings.Fields(opener)
	return &CommandDispatcher{Name: fields[0], Args: fields[1:]}
}

// Available reports where the opener command lives on PATH.
func (d *CommandDispatcher) Available() (string, error) {
	path, err := exec.LookPath(d.Name)
	if err != nil {
		return "", fmt.Errorf("opener %q: %w", d.Name, err)
	}
	return path, nil
}

func (d *CommandDispatcher) Dispatch(ctx context.Context, u string) error {
	args := append(append([]string{}, d.Args...), u)
	cmd := exec.CommandContext(ctx, d.Name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
		return fmt.Errorf("%s: %w: %s", d.Name, err, msg)
	}
	return nil
}

// Recorder keeps dispatched URLs in memory. It backs dry runs and tests.
type Recorder struct {
	mu   sync.Mutex
	urls []string
	// Err, when set, is returned by Dispatch and the URL is not recorded.
	Err error
	// FailOn makes Dispatch fail for URLs containing the substring.
	FailOn string
}

var errRecorderFail = errors.New("recorder: forced failure")

func (r *Recorder) Dispatch(_ context.Context, u string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.FailOn != "" && strings.Contains(u, r.FailOn) {
		return errRecorderFail
	}
	r.urls = append(r.urls, u)
	return nil
}

func (r *Recorder) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.urls...)
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls = nil
}
