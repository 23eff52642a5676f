package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pwflint/obsidian-things-export/internal/export"
	"github.com/pwflint/obsidian-things-export/internal/things"
)

var ErrUnavailable = errors.New("daemon not reachable")

// StatusError is a non-2xx daemon response. It unwraps to the sentinel error
// the daemon reported, so errors.Is works on both sides of the connection.
type StatusError struct {
	Code    int
	Kind    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.Code)
	}
	return e.Message
}

func (e *StatusError) Unwrap() error {
	switch e.Kind {
	case kindNoTarget:
		return export.ErrNoActiveTarget
	case kindNotFound:
		return export.ErrDocumentNotFound
	case kindUnknownOperation:
		return export.ErrUnknownOperation
	case kindBadCallback:
		return things.ErrUnknownCallback
	case kindDispatch:
		return things.ErrDispatch
	}
	return nil
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient talks to the daemon at addr (host:port or a full URL).
func NewClient(addr string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{BaseURL: base, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Export(ctx context.Context, path string) (export.Result, error) {
	var res export.Result
	err := c.do(ctx, http.MethodPost, "/export", ExportRequest{Path: path}, &res)
	return res, err
}

func (c *Client) Callback(ctx context.Context, rawURL string) error {
	return c.do(ctx, http.MethodPost, "/callback", CallbackRequest{URL: rawURL}, nil)
}

func (c *Client) Pending(ctx context.Context) ([]export.Operation, error) {
	var res PendingResponse
	if err := c.do(ctx, http.MethodGet, "/pending", nil, &res); err != nil {
		return nil, err
	}
	return res.Operations, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrUnavailable, c.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if json.Unmarshal(b, &er) != nil {
			er.Error = strings.TrimSpace(string(b))
		}
		return &StatusError{Code: resp.StatusCode, Kind: er.Kind, Message: er.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
