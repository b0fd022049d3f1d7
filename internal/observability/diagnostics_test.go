package observability_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/crashdice/internal/observability"
)

type probe struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func get(t *testing.T, handler http.Handler) (int, probe) {
	t.Helper()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body probe

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return rec.Code, body
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	code, body := get(t, observability.Liveness())

	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	pass := observability.ReadyCheck{Name: "ledger", Check: func(context.Context) error { return nil }}
	fail := observability.ReadyCheck{Name: "workspace", Check: func(context.Context) error {
		return errors.New("status file missing")
	}}

	code, body := get(t, observability.Readiness(pass))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"ledger": "ok"}, body.Checks)

	code, body = get(t, observability.Readiness(pass, fail))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, "ok", body.Checks["ledger"])
	assert.Equal(t, "status file missing", body.Checks["workspace"])
}

func TestDiagnosticsServer_Endpoints(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(rw, "crashdice_up 1\n")
	})

	srv, err := observability.NewDiagnosticsServer("127.0.0.1:0", metrics, nil)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, srv.Close(context.Background())) })

	for path, want := range map[string]string{
		"/healthz": `"status":"ok"`,
		"/readyz":  `"status":"ok"`,
		"/metrics": "crashdice_up 1",
	} {
		req, reqErr := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+srv.Addr()+path, http.NoBody)
		require.NoError(t, reqErr)

		resp, doErr := http.DefaultClient.Do(req)
		require.NoError(t, doErr)

		body, readErr := io.ReadAll(resp.Body)
		require.NoError(t, resp.Body.Close())
		require.NoError(t, readErr)

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Contains(t, string(body), want, path)
	}
}

func TestDiagnosticsServer_NoMetricsHandler(t *testing.T) {
	t.Parallel()

	srv, err := observability.NewDiagnosticsServer("127.0.0.1:0", nil, nil)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, srv.Close(context.Background())) })

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://"+srv.Addr()+"/metrics", http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDiagnosticsServer_ListenError(t *testing.T) {
	t.Parallel()

	_, err := observability.NewDiagnosticsServer("256.0.0.1:bad", nil, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen on")
}
