package things

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrUnknownCallback = errors.New("unknown callback")

// Callback is an x-success invocation coming back from Things.
type Callback struct {
	Scheme   string `json:"scheme"`
	Action   string `json:"action"`
	ThingsID string `json:"things_id,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ParseCallback accepts scheme://action?..., scheme:///action?... and
// scheme:action?... forms.
func ParseCallback(raw string) (Callback, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Callback{}, fmt.Errorf("%w: %v", ErrUnknownCallback, err)
	}
	if u.Scheme == "" {
		return Callback{}, fmt.Errorf("%w: missing scheme in %q", ErrUnknownCallback, raw)
	}
	action := u.Host
	if action == "" {
		action = strings.Trim(u.Path, "/")
	}
	if action == "" {
		action = u.Opaque
	}
	switch action {
	case ActionProjectCreated, ActionTaskCreated:
	default:
		return Callback{}, fmt.Errorf("%w: action %q", ErrUnknownCallback, action)
	}
	q := u.Query()
	return Callback{
		Scheme:   u.Scheme,
		Action:   action,
		ThingsID: strings.TrimSpace(q.Get("x-things-id")),
		Token:    strings.TrimSpace(q.Get("op")),
	}, nil
}
