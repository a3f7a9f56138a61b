// Package vstate is a thin Go SDK client for the versioned-state HTTP
// API. Design goals carried over from the Chartly service clients this
// was grounded on:
//   - stdlib-only HTTP
//   - consistent headers (request id, trace propagation)
//   - bounded IO for safety
//   - consistent error envelope decoding (pkg/errors)
package vstate

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

	"github.com/chartlylabs/vstate/pkg/delta"
	vstateerrors "github.com/chartlylabs/vstate/pkg/errors"
	"github.com/chartlylabs/vstate/pkg/telemetry"
)

const (
	DefaultRequestHeader = "X-Request-ID"

	DefaultMaxRequestBytes  = int64(4 * 1024 * 1024)
	DefaultMaxResponseBytes = int64(8 * 1024 * 1024)
	DefaultTimeout          = 15 * time.Second
)

// Client is a thin HTTP client wrapper with safe defaults.
type Client struct {
	BaseURL string

	RequestHeader string

	// StaticHeaders are applied to every request.
	StaticHeaders map[string]string

	// HTTP is the underlying client; if nil, a safe default is used.
	HTTP *http.Client

	MaxRequestBytes  int64
	MaxResponseBytes int64

	// Propagator injects outgoing trace context; if nil, no trace
	// header is sent even when ctx carries a SpanContext.
	Propagator telemetry.Propagator
}

// NewClient constructs a client with safe defaults.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		RequestHeader:    DefaultRequestHeader,
		HTTP:             &http.Client{Timeout: DefaultTimeout},
		MaxRequestBytes:  DefaultMaxRequestBytes,
		MaxResponseBytes: DefaultMaxResponseBytes,
		StaticHeaders:    map[string]string{},
		Propagator:       telemetry.W3CPropagator{},
	}
}

// RequestOption mutates an outgoing request configuration.
type RequestOption func(*requestCfg)

type requestCfg struct {
	requestID  string
	headers    map[string]string
	traceState telemetry.SpanContext
	haveTrace  bool
}

// WithRequestID forces a request id header for this request.
func WithRequestID(reqID string) RequestOption {
	return func(c *requestCfg) { c.requestID = strings.TrimSpace(reqID) }
}

// WithHeader sets an extra header for this request.
func WithHeader(k, v string) RequestOption {
	return func(c *requestCfg) {
		if c.headers == nil {
			c.headers = map[string]string{}
		}
		c.headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
}

// WithSpanContext forces a trace context for this request (overrides any
// SpanContext carried on ctx).
func WithSpanContext(sc telemetry.SpanContext) RequestOption {
	return func(c *requestCfg) {
		c.traceState = sc
		c.haveTrace = true
	}
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context, opts ...RequestOption) (map[string]any, error) {
	var out map[string]any
	err := c.DoJSON(ctx, http.MethodGet, "/health", nil, &out, opts...)
	return out, err
}

// StoreRequest is the body of POST /store.
type StoreRequest struct {
	CoordHint string      `json:"coord_hint,omitempty"`
	State     delta.Value `json:"state"`
	Author    string      `json:"author,omitempty"`
}

// StoreResult is the response of POST /store.
type StoreResult struct {
	CoordID         string `json:"coord_id"`
	DeltaID         string `json:"delta_id"`
	SnapshotCreated bool   `json:"snapshot_created"`
}

// Store appends req.State as a new delta, deriving a coordinate id when
// req.CoordHint is empty.
func (c *Client) Store(ctx context.Context, req StoreRequest, opts ...RequestOption) (StoreResult, error) {
	var out StoreResult
	err := c.DoJSON(ctx, http.MethodPost, "/store", req, &out, opts...)
	return out, err
}

// RecallResult is the response of GET /recall/{coord_id}.
type RecallResult struct {
	CoordID    string      `json:"coord_id"`
	State      delta.Value `json:"state"`
	DeltaCount int         `json:"delta_count"`
}

// Recall calls GET /recall/{coordID}.
func (c *Client) Recall(ctx context.Context, coordID string, opts ...RequestOption) (RecallResult, error) {
	var out RecallResult
	err := c.DoJSON(ctx, http.MethodGet, "/recall/"+strings.TrimSpace(coordID), nil, &out, opts...)
	return out, err
}

// VerifyResult is the response of GET /verify/{coord_id}.
type VerifyResult struct {
	VerifiedDeltas int  `json:"verified_deltas"`
	TotalDeltas    int  `json:"total_deltas"`
	ChainValid     bool `json:"chain_valid"`
	FirstBreak     *int `json:"first_break,omitempty"`
}

// Verify calls GET /verify/{coordID}.
func (c *Client) Verify(ctx context.Context, coordID string, opts ...RequestOption) (VerifyResult, error) {
	var out VerifyResult
	err := c.DoJSON(ctx, http.MethodGet, "/verify/"+strings.TrimSpace(coordID), nil, &out, opts...)
	return out, err
}

// SnapshotResult is the response of POST /snapshot/{coord_id}.
type SnapshotResult struct {
	SnapshotID string `json:"snapshot_id"`
	StateHash  string `json:"state_hash"`
}

// ForceSnapshot calls POST /snapshot/{coordID}.
func (c *Client) ForceSnapshot(ctx context.Context, coordID string, opts ...RequestOption) (SnapshotResult, error) {
	var out SnapshotResult
	err := c.DoJSON(ctx, http.MethodPost, "/snapshot/"+strings.TrimSpace(coordID), nil, &out, opts...)
	return out, err
}

// CoordinateSummary is one entry of GET /coords.
type CoordinateSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ListCoordinates calls GET /coords.
func (c *Client) ListCoordinates(ctx context.Context, opts ...RequestOption) ([]CoordinateSummary, error) {
	var out []CoordinateSummary
	err := c.DoJSON(ctx, http.MethodGet, "/coords", nil, &out, opts...)
	return out, err
}

// StatsResult is the response of GET /stats.
type StatsResult struct {
	Coordinates int `json:"coordinates"`
	Deltas      int `json:"deltas"`
	Snapshots   int `json:"snapshots"`
}

// Stats calls GET /stats.
func (c *Client) Stats(ctx context.Context, opts ...RequestOption) (StatsResult, error) {
	var out StatsResult
	err := c.DoJSON(ctx, http.MethodGet, "/stats", nil, &out, opts...)
	return out, err
}

// DoJSON performs an HTTP request with an optional JSON body and
// optionally decodes a JSON response into out. If the response is
// non-2xx, it attempts to parse the error envelope and returns *APIError.
func (c *Client) DoJSON(ctx context.Context, method, path string, body any, out any, opts ...RequestOption) error {
	if ctx == nil {
		ctx = context.Background()
	}
	raw, err := c.doRaw(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("vstate sdk: decode response json: %w", err)
	}
	return nil
}

// ---- errors ----

// APIError is returned for non-2xx responses.
type APIError struct {
	Status    int
	Code      vstateerrors.Code
	Message   string
	Retryable bool
	Kind      string
	RequestID string
	TraceID   string
	RawBody   []byte
}

func (e *APIError) Error() string {
	code := string(e.Code)
	if code == "" {
		code = "unknown"
	}
	msg := e.Message
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("vstate api error: status=%d code=%s retryable=%t msg=%s", e.Status, code, e.Retryable, msg)
}

// ---- internal request execution ----

func (c *Client) doRaw(ctx context.Context, method, path string, body any, opts ...RequestOption) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if c == nil {
		return nil, errors.New("vstate sdk: nil client")
	}
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: DefaultTimeout}
	}
	if c.RequestHeader == "" {
		c.RequestHeader = DefaultRequestHeader
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = DefaultMaxRequestBytes
	}
	if c.MaxResponseBytes <= 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}

	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		return nil, errors.New("vstate sdk: base url required")
	}

	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return nil, errors.New("vstate sdk: method required")
	}

	p := strings.TrimSpace(path)
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	url := base + p

	cfg := requestCfg{}
	for _, o := range opts {
		if o != nil {
			o(&cfg)
		}
	}
	var reqBody io.Reader
	if body != nil && method != http.MethodGet && method != http.MethodHead {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("vstate sdk: encode request json: %w", err)
		}
		if int64(len(b)) > c.MaxRequestBytes {
			return nil, fmt.Errorf("vstate sdk: request body too large (%d>%d)", len(b), c.MaxRequestBytes)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	for k, v := range c.StaticHeaders {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		req.Header.Set(k, strings.TrimSpace(v))
	}
	for k, v := range cfg.headers {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		req.Header.Set(k, strings.TrimSpace(v))
	}
	if cfg.requestID != "" && c.RequestHeader != "" {
		req.Header.Set(c.RequestHeader, cfg.requestID)
	}

	sc := telemetry.SpanContext{}
	if cfg.haveTrace {
		sc = cfg.traceState
	} else if got, ok := telemetry.SpanContextFromContext(ctx); ok {
		sc = got
	}
	if c.Propagator != nil && sc.TraceID != "" && sc.SpanID != "" {
		carrier := telemetry.Carrier{}
		if err := c.Propagator.Inject(carrier, sc); err == nil {
			for hk, hv := range carrier {
				if hk == "" || hv == "" {
					continue
				}
				req.Header.Set(hk, hv)
			}
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	lr := io.LimitReader(resp.Body, c.MaxResponseBytes+1)
	raw, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > c.MaxResponseBytes {
		return nil, fmt.Errorf("vstate sdk: response body too large (%d>%d)", len(raw), c.MaxResponseBytes)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return raw, nil
	}
	return nil, parseErrorEnvelope(resp.StatusCode, raw)
}

type errorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
		Kind      string `json:"kind"`
		RequestID string `json:"request_id"`
		TraceID   string `json:"trace_id"`
	} `json:"error"`
}

func parseErrorEnvelope(status int, raw []byte) *APIError {
	out := &APIError{
		Status:    status,
		Code:      vstateerrors.Internal,
		Message:   "request failed",
		Retryable: true,
		Kind:      "server",
		RawBody:   raw,
	}

	var env errorEnvelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return out
	}

	if env.Error.Code != "" {
		out.Code = vstateerrors.Code(env.Error.Code)
		if meta, ok := vstateerrors.Meta(out.Code); ok {
			out.Retryable = meta.Retryable
			out.Kind = meta.Kind
		}
	}
	if env.Error.Message != "" {
		out.Message = env.Error.Message
	}
	if env.Error.Kind != "" {
		out.Kind = env.Error.Kind
	}
	if env.Error.RequestID != "" {
		out.RequestID = env.Error.RequestID
	}
	if env.Error.TraceID != "" {
		out.TraceID = env.Error.TraceID
	}
	if !vstateerrors.Known(out.Code) {
		out.Code = vstateerrors.Internal
		out.Retryable = true
		out.Kind = "server"
	}
	return out
}
