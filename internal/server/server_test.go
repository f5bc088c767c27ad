package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"micrscan/internal/config"
)

func TestScanRejectsNonPostMethod(t *testing.T) {
	s := New(nil, config.Default().Server, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/v1/scan", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPreprocessRejectsNonPostMethod(t *testing.T) {
	s := New(nil, config.Default().Server, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/v1/preprocess", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestScanRejectsInvalidJSON(t *testing.T) {
	s := New(nil, config.Default().Server, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/v1/scan", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	s := New(nil, config.Default().Server, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
