package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/rowsearch/internal/config"
	"github.com/Aman-CERP/rowsearch/internal/errors"
	"github.com/Aman-CERP/rowsearch/internal/index"
	"github.com/Aman-CERP/rowsearch/internal/schema"
	"github.com/Aman-CERP/rowsearch/internal/search"
)

func newLimitedServer(t *testing.T, perMinute, burst int) http.Handler {
	t.Helper()
	s := schema.MustNew(schema.FieldDefinition{Name: "title", Column: "title", DataType: schema.Text()})
	e, err := index.Open(s, "", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	cfg := config.ServerConfig{Address: "127.0.0.1", Port: 8080, RateLimit: perMinute, RateBurst: burst}
	svc, err := search.NewService(e, s)
	require.NoError(t, err)
	srv, err := New(svc, cfg, nil)
	require.NoError(t, err)
	return srv.Handler()
}

func TestRateLimit_RejectsBurstOverflow(t *testing.T) {
	// Given: one request per minute with a burst of two
	h := newLimitedServer(t, 1, 2)

	// When: three requests arrive at once
	codes := make([]int, 3)
	var last []byte
	for i := range codes {
		rec := doRequest(h, http.MethodGet, "/api/v1/fields", "")
		codes[i] = rec.Code
		last = rec.Body.Bytes()
	}

	// Then: the third is rejected with a coded payload
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	var payload errors.Payload
	require.NoError(t, json.Unmarshal(last, &payload))
	assert.Equal(t, errors.ErrCodeRateLimited, payload.Code)
}

func TestRateLimit_SkipsHealth(t *testing.T) {
	h := newLimitedServer(t, 1, 1)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, http.MethodGet, "/health", "").Code)
	}
}

func TestRateLimiter_OneBucketPerClient(t *testing.T) {
	rl, err := newRateLimiter(60, 1, maxTrackedClients)
	require.NoError(t, err)

	a := rl.get("10.0.0.1")

	assert.Same(t, a, rl.get("10.0.0.1"))
	assert.NotSame(t, a, rl.get("10.0.0.2"))
}

func TestRateLimiter_InvalidTableSize(t *testing.T) {
	rl, err := newRateLimiter(60, 1, 0)

	require.Error(t, err)
	assert.Nil(t, rl)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInternal))
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, "")

	t.Run("generated", func(t *testing.T) {
		rec := doRequest(h, http.MethodGet, "/health", "")
		_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
		assert.NoError(t, err)
	})

	t.Run("propagated", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, "/health", nil)
		require.NoError(t, err)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := serve(h, req)
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	})
}
