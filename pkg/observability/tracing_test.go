package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func newTestProvider(t *testing.T) *TracerProvider {
	t.Helper()
	cfg := DefaultTracerConfig()
	cfg.OTLPEndpoint = "" // no export in tests
	tp, err := InitTracer(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp
}

func TestStartSpanProducesValidContext(t *testing.T) {
	tp := newTestProvider(t)

	ctx, span := tp.StartSpan(context.Background(), "test_operation")
	defer span.End()

	assert.True(t, span.SpanContext().IsValid())
	assert.Equal(t, span.SpanContext(), trace.SpanContextFromContext(ctx))
}

func TestHTTPMiddlewarePropagatesSpanContext(t *testing.T) {
	tp := newTestProvider(t)

	var inner trace.SpanContext
	handler := tp.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/contexts/c1", nil))
	assert.True(t, inner.IsValid())
}

func TestHTTPMiddlewareContinuesInboundTrace(t *testing.T) {
	tp := newTestProvider(t)

	var inner trace.SpanContext
	handler := tp.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", inner.TraceID().String())
}
