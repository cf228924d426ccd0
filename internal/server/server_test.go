package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/schema"
	"github.com/Aman-CERP/rowsearch/internal/search"
	"github.com/Aman-CERP/rowsearch/internal/worker"
)

func newTestServer(t *testing.T, publicDir string) http.Handler {
	t.Helper()
	return newTestServerWithSync(t, publicDir, nil)
}

func newTestServerWithSync(t *testing.T, publicDir string, sync SyncStatus) http.Handler {
	t.Helper()
	s, err := schema.New([]schema.FieldDefinition{
		{Name: "id", Column: "id", Display: "ID", DataType: schema.Int(true)},
		{Name: "title", Column: "title", Display: "Title", DataType: schema.Text()},
	})
	require.NoError(t, err)

	e, err := index.Open(s, "", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	_, err = index.Write(e, func(w *index.Writer) (int, error) {
		for i, title := range []string{"Steel Hammer", "Claw Hammer", "Saw"} {
			d := index.NewDocument(int64(i + 1))
			d.SetInt("id", int64(i+1))
			d.SetText("title", title)
			if err := w.Add(d); err != nil {
				return 0, err
			}
		}
		return w.Len(), nil
	})
	require.NoError(t, err)

	svc, err := search.NewService(e, s)
	require.NoError(t, err)
	srv, err := New(svc, config.ServerConfig{Address: "127.0.0.1", Port: 8080, PublicDir: publicDir}, sync)
	require.NoError(t, err)
	return srv.Handler()
}

func doRequest(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return serve(h, req)
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearch_ReturnsRows(t *testing.T) {
	h := newTestServer(t, "")

	rec := doRequest(h, http.MethodPost, "/api/v1/search", `{"query": "+hammer -claw"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Steel Hammer", rows[0]["title"])
	assert.Equal(t, "1", rows[0]["id"])
}

func TestSearch_EmptyQueryReturnsEmptyArray(t *testing.T) {
	h := newTestServer(t, "")

	rec := doRequest(h, http.MethodPost, "/api/v1/search", `{"query": ""}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSearch_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		code string
	}{
		{"malformed range", `{"query": "id:a..2"}`, errors.ErrCodeInvalidQuery},
		{"unknown field", `{"query": "color:red"}`, errors.ErrCodeQueryCompile},
		{"range on text", `{"query": "title:1..2"}`, errors.ErrCodeQueryCompile},
		{"not json", `query=hammer`, errors.ErrCodeInvalidInput},
	}

	h := newTestServer(t, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(h, http.MethodPost, "/api/v1/search", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var payload errors.Payload
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.Equal(t, tt.code, payload.Code)
			assert.NotEmpty(t, payload.Message)
		})
	}
}

func TestFields(t *testing.T) {
	h := newTestServer(t, "")

	rec := doRequest(h, http.MethodGet, "/api/v1/fields", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"name": "id", "display": "ID", "description": "", "data_type": "number"},
		{"name": "title", "display": "Title", "description": "", "data_type": "string"}
	]`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, "")

	rec := doRequest(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	doRequest(h, http.MethodPost, "/api/v1/search", `{"query": "saw"}`)
	rec = doRequest(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rowsearch_search_requests_total")
}

type fakeSync struct {
	healthy bool
	snap    worker.StatusSnapshot
}

func (f fakeSync) Healthy() bool                   { return f.healthy }
func (f fakeSync) Snapshot() worker.StatusSnapshot { return f.snap }

func TestHealth_ReportsSync(t *testing.T) {
	tests := []struct {
		name   string
		sync   fakeSync
		status string
	}{
		{"healthy", fakeSync{healthy: true, snap: worker.StatusSnapshot{State: "idle", Cycles: 2}}, "ok"},
		{"failing", fakeSync{snap: worker.StatusSnapshot{State: "error", LastErrorCode: errors.ErrCodeSourceConnect}}, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServerWithSync(t, "", tt.sync)

			rec := doRequest(h, http.MethodGet, "/health", "")

			require.Equal(t, http.StatusOK, rec.Code)
			var body struct {
				Status string                `json:"status"`
				Sync   worker.StatusSnapshot `json:"sync"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
			assert.Equal(t, tt.sync.snap.State, body.Sync.State)
			assert.Equal(t, tt.sync.snap.LastErrorCode, body.Sync.LastErrorCode)
		})
	}
}

func TestStaticFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>rowsearch</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))
	h := newTestServer(t, dir)

	rec := doRequest(h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rowsearch")

	rec = doRequest(h, http.MethodGet, "/static/app.js", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "console.log")
}
