package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	t.Parallel()

	s := New(nil)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	got := w.Header().Get(CorrelationIDHeader)
	require.NotEmpty(t, got)
	_, err := uuid.Parse(got)
	assert.NoError(t, err)
}

func TestCorrelationIDMiddleware_ReusesIncoming(t *testing.T) {
	t.Parallel()

	s := New(nil)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	req.Header.Set(CorrelationIDHeader, "req-12345")
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)

	assert.Equal(t, "req-12345", w.Header().Get(CorrelationIDHeader))
}
