package responseformat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	IntervalSeconds uint32 `json:"interval_seconds"`
}

func TestWriteResponseJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)

	require.NoError(t, NewFormatter().WriteResponse(rec, req, payload{IntervalSeconds: 900}))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(900), got["interval_seconds"])
}

func TestWriteResponseMsgPack(t *testing.T) {
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/snapshot?format=msgpack", nil),
		func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
			r.Header.Set("Accept", "application/x-msgpack")
			return r
		}(),
	} {
		rec := httptest.NewRecorder()
		require.NoError(t, NewFormatter().WriteResponse(rec, req, payload{IntervalSeconds: 225}))
		assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))

		var got map[string]any
		require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &got))
		assert.EqualValues(t, 225, got["interval_seconds"])
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)

	require.NoError(t, NewFormatter().WriteError(rec, req, http.StatusServiceUnavailable, "no snapshot yet"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"no snapshot yet"}`, rec.Body.String())
}
