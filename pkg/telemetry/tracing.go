package telemetry

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// SpanContext is a minimal tracing context used for log enrichment.
type SpanContext struct {
    TraceID      string
    SpanID       string
    ParentSpanID string
    Sampled      bool
}

type spanContextKey struct{}

// ContextWithSpanContext returns a context carrying the provided SpanContext.
func ContextWithSpanContext(ctx context.Context, sc SpanContext) context.Context {
    if ctx == nil {
        ctx = context.Background()
    }
    return context.WithValue(ctx, spanContextKey{}, sc)
}

// SpanContextFromContext extracts a SpanContext from ctx if present.
func SpanContextFromContext(ctx context.Context) (SpanContext, bool) {
    if ctx == nil {
        return SpanContext{}, false
    }
    v := ctx.Value(spanContextKey{})
    sc, ok := v.(SpanContext)
    if !ok {
        return SpanContext{}, false
    }
    if sc.TraceID == "" && sc.SpanID == "" && sc.ParentSpanID == "" && !sc.Sampled {
        return SpanContext{}, false
    }
    return sc, true
}

// Carrier is a set of outgoing request headers a Propagator writes trace
// context into (and a Propagator reads it back from on the receiving
// side). It is a plain single-valued map; the SDK client copies its
// entries onto the outgoing http.Header one by one.
type Carrier map[string]string

// Propagator injects a SpanContext into an outgoing Carrier, and extracts
// one back out of an incoming Carrier. The zero value of any
// implementation should be safe to use.
type Propagator interface {
	Inject(carrier Carrier, sc SpanContext) error
	Extract(carrier Carrier) (SpanContext, bool)
}

// W3CPropagator implements the W3C traceparent header
// (https://www.w3.org/TR/trace-context/): version-traceid-spanid-flags.
type W3CPropagator struct{}

const traceparentHeader = "traceparent"

// Inject writes sc as a "traceparent" entry on carrier. A SpanContext
// with an empty TraceID or SpanID is not injected.
func (W3CPropagator) Inject(carrier Carrier, sc SpanContext) error {
	if carrier == nil {
		return fmt.Errorf("telemetry: nil carrier")
	}
	if sc.TraceID == "" || sc.SpanID == "" {
		return nil
	}
	flags := "00"
	if sc.Sampled {
		flags = "01"
	}
	carrier[traceparentHeader] = fmt.Sprintf("00-%s-%s-%s", sc.TraceID, sc.SpanID, flags)
	return nil
}

// Extract parses a "traceparent" entry out of carrier.
func (W3CPropagator) Extract(carrier Carrier) (SpanContext, bool) {
	raw, ok := carrier[traceparentHeader]
	if !ok {
		return SpanContext{}, false
	}
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 4 || parts[0] != "00" || len(parts[1]) != 32 || len(parts[2]) != 16 {
		return SpanContext{}, false
	}
	return SpanContext{
		TraceID: parts[1],
		SpanID:  parts[2],
		Sampled: parts[3] == "01",
	}, true
}

// NewTraceID returns a random 32-character lowercase hex trace id,
// matching the W3C traceparent format's trace-id field.
func NewTraceID() (string, error) {
	return randomHex(16)
}

// NewSpanID returns a random 16-character lowercase hex span id,
// matching the W3C traceparent format's parent-id field.
func NewSpanID() (string, error) {
	return randomHex(8)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := cryptorand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// WithSpanContext is a package-level convenience alias for
// ContextWithSpanContext, matching the SDK's call style.
func WithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	return ContextWithSpanContext(ctx, sc)
}
