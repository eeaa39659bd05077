package executors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/dispatch"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/domain"
	"github.com/yash7pute/AI-Operations-Command-Center-sub007/internal/payload"
)

func taskPayload() payload.Payload {
	return payload.Payload{
		Platform: domain.PlatformTaskTracker,
		Action:   domain.ActionCreateTask,
		Fields:   map[string]string{"title": "Fix login bug"},
	}
}

func TestWebhook_PostsPayloadAndReturnsRef(t *testing.T) {
	var got webhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"ref": "TASK-99"})
	}))
	defer srv.Close()

	wh := NewWebhook(domain.PlatformTaskTracker, srv.URL)
	data, err := wh.Execute(context.Background(), taskPayload())
	require.NoError(t, err)

	assert.Equal(t, "TASK-99", data["ref"])
	assert.Equal(t, "task-tracker", got.Platform)
	assert.Equal(t, "Fix login bug", got.Fields["title"])
}

func TestWebhook_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wh := NewWebhook(domain.PlatformChat, srv.URL)
	_, err := wh.Execute(context.Background(), taskPayload())
	require.Error(t, err)
	assert.True(t, dispatch.IsTransient(err))
}

func TestWebhook_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad field", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	wh := NewWebhook(domain.PlatformChat, srv.URL)
	_, err := wh.Execute(context.Background(), taskPayload())
	require.Error(t, err)
	assert.False(t, dispatch.IsTransient(err))
}

func TestWebhook_ConnectionRefusedIsTransient(t *testing.T) {
	wh := NewWebhook(domain.PlatformChat, "http://127.0.0.1:1/hook")
	_, err := wh.Execute(context.Background(), taskPayload())
	require.Error(t, err)
	assert.True(t, dispatch.IsTransient(err))
}

func TestWebhook_EmptySuccessBodyTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(domain.PlatformFilesystem, srv.URL)
	data, err := wh.Execute(context.Background(), taskPayload())
	require.NoError(t, err)
	assert.Empty(t, data["ref"])
}

func TestConsole_FabricatesReference(t *testing.T) {
	c := NewConsole(domain.PlatformCalendar)
	data, err := c.Execute(context.Background(), taskPayload())
	require.NoError(t, err)
	assert.Contains(t, data["ref"], "dry-")
	assert.Equal(t, "console-calendar", c.Name())
}

func TestEndpointFor_UsesEnvOverride(t *testing.T) {
	t.Setenv("OPS_EXECUTOR_TASK_TRACKER_URL", "http://bridge.local/tasks")
	assert.Equal(t, "http://bridge.local/tasks", endpointFor(domain.PlatformTaskTracker))
	assert.Empty(t, endpointFor(domain.PlatformChat))
}
