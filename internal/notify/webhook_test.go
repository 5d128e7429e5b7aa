package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:9997")
	require.NotNil(t, client)
	require.Equal(t, "http://localhost:9997", client.url)
}

func TestNewClientWithOptions(t *testing.T) {
	client := NewClient("http://localhost:9997", WithTimeout(10*time.Second))
	require.NotNil(t, client)
	require.Equal(t, 10*time.Second, client.httpClient.Timeout)
}

func TestClientPost(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Post(context.Background(), Event{
		Type:    EventStallDetected,
		Service: "recorder",
		Message: "heartbeat stale",
	})
	require.NoError(t, err)
	require.Equal(t, EventStallDetected, received.Type)
	require.Equal(t, "recorder", received.Service)
}

func TestClientPostErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.Post(context.Background(), Event{Type: EventRestartComplete})
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestClientPostDisabled(t *testing.T) {
	client := NewClient("")
	err := client.Post(context.Background(), Event{Type: EventReplaySaved})
	require.NoError(t, err)
}

func TestClientPostUnreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", WithTimeout(100*time.Millisecond))
	err := client.Post(context.Background(), Event{Type: EventStallDetected})
	require.Error(t, err)
}

func TestStallDetected(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.StallDetected(context.Background(), "replaybuf", "no frames in 5s"))
	require.Equal(t, EventStallDetected, received.Type)
	require.Equal(t, "no frames in 5s", received.Message)
}

func TestRestartComplete(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.RestartComplete(context.Background(), "recorder", 3))
	require.Equal(t, EventRestartComplete, received.Type)
	require.Equal(t, "3", received.Fields["attempt"])
}

func TestReplaySaved(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer server.Close()

	client := NewClient(server.URL)
	require.NoError(t, client.ReplaySaved(context.Background(), "replaybuf", "/clips/out.mp4"))
	require.Equal(t, EventReplaySaved, received.Type)
	require.Equal(t, "/clips/out.mp4", received.Fields["path"])
}
