package httpprobe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveInMeeting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"in_meeting":true,"meeting_title":"weekly sync"}`))
	}))
	defer server.Close()

	presence, err := Probe{URL: server.URL}.Observe(context.Background())
	require.NoError(t, err)
	assert.True(t, presence.Present)
	assert.Equal(t, "weekly sync", presence.Title)
}

func TestObserveNotInMeeting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"in_meeting":false}`))
	}))
	defer server.Close()

	presence, err := Probe{URL: server.URL}.Observe(context.Background())
	require.NoError(t, err)
	assert.False(t, presence.Present)
	assert.Empty(t, presence.Title)
}

func TestObserveNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := Probe{URL: server.URL}.Observe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestObserveMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json at all`))
	}))
	defer server.Close()

	_, err := Probe{URL: server.URL}.Observe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode page state")
}

func TestObserveUnreachableEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	_, err := Probe{URL: server.URL}.Observe(context.Background())
	require.Error(t, err)
}
