package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minerva/internal/config"
	"minerva/pkg/minervatypes"
)

func TestNewBackend_SelectsRemoteWhenConfigured(t *testing.T) {
	env := newTestEnv(t)

	cfg := &config.Config{
		Backend: config.BackendConfig{Enabled: true, BaseURL: "http://localhost:9999"},
	}
	backend := NewBackend(cfg, env.conversations, env.projects)
	assert.Equal(t, "remote", backend.Name())
}

func TestNewBackend_SelectsLocalByDefault(t *testing.T) {
	env := newTestEnv(t)

	backend := NewBackend(&config.Config{}, env.conversations, env.projects)
	assert.Equal(t, "local", backend.Name())

	// Enabled without a base URL still means local.
	backend = NewBackend(&config.Config{
		Backend: config.BackendConfig{Enabled: true},
	}, env.conversations, env.projects)
	assert.Equal(t, "local", backend.Name())
}

func TestRemoteBackend_ListConversations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/conversations", r.URL.Path)

		records := []minervatypes.RemoteRecord{
			{ID: "r1", Title: "First", Messages: []minervatypes.RemoteMessage{{Sender: "user", Text: "hi"}}},
			{ID: "", Title: "No ID, skipped"},
			{ID: "r2", Title: "Second"},
		}
		require.NoError(t, json.NewEncoder(w).Encode(records))
	}))
	defer server.Close()

	backend := NewRemoteBackend(server.URL, time.Second)
	records, err := backend.ListConversations(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "First", records["r1"].Title)
	assert.Equal(t, "Second", records["r2"].Title)
}

func TestRemoteBackend_CreateProject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/projects", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Research", body["name"])

		require.NoError(t, json.NewEncoder(w).Encode(minervatypes.Project{
			ID:   "proj-remote-1",
			Name: body["name"],
		}))
	}))
	defer server.Close()

	backend := NewRemoteBackend(server.URL, time.Second)
	project, err := backend.CreateProject(context.Background(), "Research", "notes")
	require.NoError(t, err)
	assert.Equal(t, "proj-remote-1", project.ID)
	assert.Equal(t, "Research", project.Name)
}

func TestRemoteBackend_ConvertToProject(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/conversations/c1/to-project", r.URL.Path)
		_, _ = w.Write([]byte(`{"projectId":"proj-9"}`))
	}))
	defer server.Close()

	backend := NewRemoteBackend(server.URL, time.Second)
	projectID, err := backend.ConvertToProject(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "proj-9", projectID)
}

func TestRemoteBackend_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer server.Close()

	backend := NewRemoteBackend(server.URL, time.Second)
	err := backend.DeleteConversation(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestRemoteBackend_Ping(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer healthy.Close()

	backend := NewRemoteBackend(healthy.URL, time.Second)
	assert.NoError(t, backend.Ping(context.Background()))

	// Client errors still prove the server is reachable.
	notFound := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer notFound.Close()

	backend = NewRemoteBackend(notFound.URL, time.Second)
	assert.NoError(t, backend.Ping(context.Background()))

	// Server errors do not.
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	backend = NewRemoteBackend(broken.URL, time.Second)
	assert.Error(t, backend.Ping(context.Background()))
}

func TestRemoteBackend_ContextCancellation(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	backend := NewRemoteBackend(server.URL, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := backend.ListConversations(ctx)
	assert.Error(t, err)
}

func TestLocalBackend_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	backend := NewLocalBackend(env.conversations, env.projects)

	id, err := env.conversations.Create("Local Chat", []minervatypes.Message{
		{Role: "assistant", Content: "served locally"},
	}, minervatypes.CreateOptions{})
	require.NoError(t, err)

	records, err := backend.ListConversations(context.Background())
	require.NoError(t, err)
	record, exists := records[id]
	require.True(t, exists)
	assert.Equal(t, "Local Chat", record.Title)
	require.Len(t, record.Messages, 1)
	assert.Equal(t, "assistant", record.Messages[0].Sender)
	assert.Equal(t, "served locally", record.Messages[0].Text)

	require.NoError(t, backend.Ping(context.Background()))

	require.NoError(t, backend.DeleteConversation(context.Background(), id))
	assert.Error(t, backend.DeleteConversation(context.Background(), id))
}

func TestLocalBackend_ProjectOperations(t *testing.T) {
	env := newTestEnv(t)
	backend := NewLocalBackend(env.conversations, env.projects)

	project, err := backend.CreateProject(context.Background(), "Via Backend", "")
	require.NoError(t, err)

	require.NoError(t, backend.UpdateProject(context.Background(), project.ID, "Renamed"))
	projects, err := backend.ListProjects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Renamed", projects[0].Name)

	require.NoError(t, backend.DeleteProject(context.Background(), project.ID))
	assert.Error(t, backend.DeleteProject(context.Background(), project.ID))
}
