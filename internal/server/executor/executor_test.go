package executor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, timeout time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL+"/api", "key-1", timeout)
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient("not a url", "", time.Second)
	assert.ErrorIs(t, err, common.ErrConfiguration)
}

func TestStart_Success(t *testing.T) {
	port := 53
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/jobs", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))

		var got map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "example.com", got["target"])
		assert.Equal(t, "dns", got["type"])
		assert.EqualValues(t, 30, got["duration"])
		assert.EqualValues(t, 53, got["port"])
		assert.Equal(t, map[string]any{"rate": float64(100)}, got["params"])

		_, _ = io.WriteString(w, `{"id":"run-7","state":"accepted"}`)
	}, time.Second)

	res, err := c.Start(context.Background(), StartRequest{
		Target: "example.com", Port: &port, Duration: 30, JobType: "dns",
		Params: json.RawMessage(`{"rate":100}`),
	})
	require.NoError(t, err)
	require.NotNil(t, res.ExternalID)
	assert.Equal(t, "run-7", *res.ExternalID)
	assert.Contains(t, res.Body, "accepted")
}

func TestStart_NoIDInBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "queued")
	}, time.Second)

	res, err := c.Start(context.Background(), StartRequest{Target: "t", Duration: 1, JobType: "http"})
	require.NoError(t, err)
	assert.Nil(t, res.ExternalID)
	assert.Equal(t, "queued", res.Body)
}

func TestStart_Non2xx(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "busy")
	}, time.Second)

	_, err := c.Start(context.Background(), StartRequest{Target: "t", Duration: 1, JobType: "http"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDelegatedFailure)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.Status)
	assert.Equal(t, "busy", httpErr.Body)
}

func TestStart_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, 20*time.Millisecond)

	_, err := c.Start(context.Background(), StartRequest{Target: "t", Duration: 1, JobType: "http"})
	assert.ErrorIs(t, err, common.ErrDelegatedFailure)

	var httpErr *HTTPError
	assert.False(t, errors.As(err, &httpErr))
}

func TestStop(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/jobs/run-7", r.URL.Path)
		_, _ = io.WriteString(w, "stopped")
	}, time.Second)

	body, err := c.Stop(context.Background(), "run-7")
	require.NoError(t, err)
	assert.Equal(t, "stopped", body)

	_, err = c.Stop(context.Background(), "")
	assert.Error(t, err)
}

func TestParseExternalID(t *testing.T) {
	assert.Nil(t, parseExternalID("plain text"))
	assert.Nil(t, parseExternalID(`{"id":""}`))
	assert.Nil(t, parseExternalID(`{"state":"ok"}`))
	require.NotNil(t, parseExternalID(`{"id":42}`))
	assert.Equal(t, "42", *parseExternalID(`{"id":42}`))
}
