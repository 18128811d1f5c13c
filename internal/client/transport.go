package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/livedoc/internal/transform"
	"github.com/roach88/livedoc/internal/wire"
)

// DefaultTimeout bounds each request to the server.
const DefaultTimeout = 9 * time.Second

// ErrTimeout is returned when a request exceeds its deadline. Nothing is
// committed on the server before its atomic rename, so a timed-out request
// is safe to retry.
var ErrTimeout = errors.New("request timed out")

// TransportError reports that the server could not be reached or did not
// answer with a readable body.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RejectedError reports an edit the server refused. Result carries the
// diagnostics.
type RejectedError struct {
	Status int
	Result wire.TransformResult
}

func (e *RejectedError) Error() string {
	msg := e.Result.Error
	if msg == "" && len(e.Result.Diagnostics) > 0 {
		msg = e.Result.Diagnostics[0].Message
	}
	if msg == "" {
		msg = "edit rejected"
	}
	if e.Status != 0 && e.Status != http.StatusOK {
		return fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	return msg
}

// IsTransportFailure reports whether err means the request never got a
// verdict from the server.
func IsTransportFailure(err error) bool {
	var te *TransportError
	return errors.Is(err, ErrTimeout) || errors.As(err, &te)
}

// IsRejected reports whether err is a server-side rejection.
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// Transport carries requests to a livedoc server. A non-2xx response that
// still decodes as a TransformResult is returned as a *RejectedError.
type Transport interface {
	Transform(ctx context.Context, req transform.Request) (wire.TransformResult, error)
	State(ctx context.Context) (wire.State, error)
	Source(ctx context.Context) (wire.Source, error)
}

var (
	_ Transport  = (*HTTPTransport)(nil)
	_ Subscriber = (*HTTPTransport)(nil)
)

// HTTPTransport talks to the server's JSON API.
//
// Thread-safety: safe for concurrent use.
type HTTPTransport struct {
	base    *url.URL
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithTimeout sets the per-request deadline.
func WithTimeout(d time.Duration) HTTPOption {
	return func(t *HTTPTransport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithTransportLogger sets the logger. Defaults to slog.Default().
func WithTransportLogger(l *slog.Logger) HTTPOption {
	return func(t *HTTPTransport) { t.logger = l }
}

// NewHTTPTransport creates a transport for the server at baseURL.
func NewHTTPTransport(baseURL string, opts ...HTTPOption) (*HTTPTransport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	t := &HTTPTransport{
		base:    u,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Transform posts one edit.
func (t *HTTPTransport) Transform(ctx context.Context, req transform.Request) (wire.TransformResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return wire.TransformResult{}, fmt.Errorf("encode request: %w", err)
	}
	var res wire.TransformResult
	status, err := t.do(ctx, http.MethodPost, "/transform", body, &res)
	if err != nil {
		return wire.TransformResult{}, err
	}
	if status/100 != 2 {
		return res, &RejectedError{Status: status, Result: res}
	}
	return res, nil
}

// State fetches GET /state.
func (t *HTTPTransport) State(ctx context.Context) (wire.State, error) {
	var st wire.State
	status, err := t.do(ctx, http.MethodGet, "/state", nil, &st)
	if err != nil {
		return wire.State{}, err
	}
	if status/100 != 2 {
		return wire.State{}, &TransportError{Op: "GET /state", Err: fmt.Errorf("HTTP %d", status)}
	}
	return st, nil
}

// Source fetches GET /source.
func (t *HTTPTransport) Source(ctx context.Context) (wire.Source, error) {
	var src wire.Source
	status, err := t.do(ctx, http.MethodGet, "/source", nil, &src)
	if err != nil {
		return wire.Source{}, err
	}
	if status/100 != 2 {
		return wire.Source{}, &TransportError{Op: "GET /source", Err: fmt.Errorf("HTTP %d", status)}
	}
	return src, nil
}

func (t *HTTPTransport) do(ctx context.Context, method, route string, body []byte, out any) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	op := method + " " + route
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.base.String()+route, rd)
	if err != nil {
		return 0, &TransportError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%s after %s: %w", op, t.timeout, ErrTimeout)
		}
		return 0, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("%s after %s: %w", op, t.timeout, ErrTimeout)
		}
		return 0, &TransportError{Op: op, Err: err}
	}
	t.logger.Debug("server response", "op", op, "status", resp.StatusCode, "duration", time.Since(start))
	if err := json.Unmarshal(data, out); err != nil {
		return resp.StatusCode, &TransportError{Op: op, Err: fmt.Errorf("HTTP %d: decode body: %w", resp.StatusCode, err)}
	}
	return resp.StatusCode, nil
}

// Subscribe opens the /ws channel and delivers each envelope to fn until
// ctx is done or the connection drops.
func (t *HTTPTransport) Subscribe(ctx context.Context, fn func(wire.Envelope)) error {
	u := *t.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path += "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return &TransportError{Op: "GET /ws", Err: err}
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var env wire.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return &TransportError{Op: "GET /ws", Err: err}
		}
		fn(env)
	}
}
