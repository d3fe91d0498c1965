package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestWriteErrorShape(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, 404, "Not Found", "no such context")

	assert.Equal(t, 404, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	p := decodeProblem(t, rec)
	assert.Equal(t, "https://covenant.dev/errors/404", p.Type)
	assert.Equal(t, "Not Found", p.Title)
	assert.Equal(t, 404, p.Status)
	assert.Equal(t, "no such context", p.Detail)
}

func TestWriteErrorRIncludesInstanceAndTrace(t *testing.T) {
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-1")
	req := httptest.NewRequest("GET", "/v1/contexts/c1", nil)

	WriteErrorR(rec, req, 403, "Forbidden", "nope")

	p := decodeProblem(t, rec)
	assert.Equal(t, "/v1/contexts/c1", p.Instance)
	assert.Equal(t, "req-1", p.TraceID)
}

func TestWriteTooManyRequestsSetsRetryAfter(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteTooManyRequests(rec, 30)

	assert.Equal(t, 429, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestUnauthorizedDefaultDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteUnauthorized(rec, "")

	p := decodeProblem(t, rec)
	assert.Equal(t, "Authentication required", p.Detail)
}
