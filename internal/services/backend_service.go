package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"minerva/internal/config"
	"minerva/internal/logger"
	"minerva/pkg/minervatypes"
)

// NewBackend selects the backend implementation once at startup: the remote
// HTTP backend when configured and enabled, otherwise the local store-only
// backend. Call sites never probe for API availability themselves.
func NewBackend(cfg *config.Config, conversations *ConversationService, projects *ProjectService) minervatypes.ConversationBackend {
	if cfg.Backend.Enabled && cfg.Backend.BaseURL != "" {
		logger.Info("Using remote conversation backend", "baseURL", cfg.Backend.BaseURL)
		return NewRemoteBackend(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	}
	logger.Info("Using local conversation backend")
	return NewLocalBackend(conversations, projects)
}

// RemoteBackend talks to the conversation API over REST with JSON bodies.
// Every call takes a context so a superseded request can be aborted.
type RemoteBackend struct {
	baseURL string
	client  *http.Client
}

// NewRemoteBackend creates a RemoteBackend for the given base URL.
func NewRemoteBackend(baseURL string, timeout time.Duration) *RemoteBackend {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns "remote".
func (r *RemoteBackend) Name() string {
	return "remote"
}

// ListConversations fetches all remote conversation records keyed by id.
func (r *RemoteBackend) ListConversations(ctx context.Context) (map[string]minervatypes.RemoteRecord, error) {
	var records []minervatypes.RemoteRecord
	if err := r.doJSON(ctx, http.MethodGet, "/api/conversations", nil, &records); err != nil {
		return nil, err
	}

	out := make(map[string]minervatypes.RemoteRecord, len(records))
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		out[rec.ID] = rec
	}
	return out, nil
}

// DeleteConversation removes a conversation on the backend.
func (r *RemoteBackend) DeleteConversation(ctx context.Context, id string) error {
	return r.doJSON(ctx, http.MethodDelete, "/api/conversations/"+id, nil, nil)
}

// ListProjects fetches all remote projects.
func (r *RemoteBackend) ListProjects(ctx context.Context) ([]*minervatypes.Project, error) {
	var projects []*minervatypes.Project
	if err := r.doJSON(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateProject creates a project on the backend.
func (r *RemoteBackend) CreateProject(ctx context.Context, name, description string) (*minervatypes.Project, error) {
	body := map[string]string{"name": name, "description": description}
	var project minervatypes.Project
	if err := r.doJSON(ctx, http.MethodPost, "/api/projects", body, &project); err != nil {
		return nil, err
	}
	return &project, nil
}

// UpdateProject renames a project on the backend.
func (r *RemoteBackend) UpdateProject(ctx context.Context, id, name string) error {
	body := map[string]string{"name": name}
	return r.doJSON(ctx, http.MethodPatch, "/api/projects/"+id, body, nil)
}

// DeleteProject removes a project on the backend.
func (r *RemoteBackend) DeleteProject(ctx context.Context, id string) error {
	return r.doJSON(ctx, http.MethodDelete, "/api/projects/"+id, nil, nil)
}

// ConvertToProject asks the backend to convert a conversation into a project
// and returns the new project id.
func (r *RemoteBackend) ConvertToProject(ctx context.Context, conversationID string) (string, error) {
	var resp struct {
		ProjectID string `json:"projectId"`
	}
	if err := r.doJSON(ctx, http.MethodPost, "/api/conversations/"+conversationID+"/to-project", nil, &resp); err != nil {
		return "", err
	}
	return resp.ProjectID, nil
}

// Ping reports backend reachability. Any HTTP response below 500 counts as
// reachable; transport errors and server errors do not.
func (r *RemoteBackend) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, r.baseURL+"/api/conversations", nil)
	if err != nil {
		return err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("backend unhealthy: %s", resp.Status)
	}
	return nil
}

// doJSON performs a JSON request/response round trip against the API.
func (r *RemoteBackend) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	url := r.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	logger.BackendCall(method, url, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("backend returned %s for %s %s", resp.Status, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return nil
}

// LocalBackend satisfies the backend interface entirely from the local
// store, used when no remote API is configured or reachable at startup.
type LocalBackend struct {
	conversations *ConversationService
	projects      *ProjectService
}

// NewLocalBackend creates a LocalBackend over the local repositories.
func NewLocalBackend(conversations *ConversationService, projects *ProjectService) *LocalBackend {
	return &LocalBackend{conversations: conversations, projects: projects}
}

// Name returns "local".
func (l *LocalBackend) Name() string {
	return "local"
}

// ListConversations exposes local conversations in the remote record shape.
func (l *LocalBackend) ListConversations(_ context.Context) (map[string]minervatypes.RemoteRecord, error) {
	convs := l.conversations.List(minervatypes.SearchScope{Tab: minervatypes.TabAll})
	out := make(map[string]minervatypes.RemoteRecord, len(convs))
	for _, conv := range convs {
		messages := make([]minervatypes.RemoteMessage, 0, len(conv.Messages))
		for _, msg := range conv.Messages {
			messages = append(messages, minervatypes.RemoteMessage{
				Sender:    msg.Role,
				Text:      msg.Content,
				Timestamp: msg.Timestamp,
				Model:     msg.Model,
			})
		}
		out[conv.ID] = minervatypes.RemoteRecord{
			ID:        conv.ID,
			Title:     conv.Title,
			Messages:  messages,
			CreatedAt: conv.Created,
			UpdatedAt: conv.LastUpdated,
		}
	}
	return out, nil
}

// DeleteConversation deletes locally.
func (l *LocalBackend) DeleteConversation(_ context.Context, id string) error {
	if !l.conversations.Delete(id) {
		return fmt.Errorf("conversation '%s' not found", id)
	}
	return nil
}

// ListProjects lists local projects.
func (l *LocalBackend) ListProjects(_ context.Context) ([]*minervatypes.Project, error) {
	return l.projects.ListAll(), nil
}

// CreateProject creates a local project.
func (l *LocalBackend) CreateProject(_ context.Context, name, description string) (*minervatypes.Project, error) {
	return l.projects.Create(name, description)
}

// UpdateProject renames a local project.
func (l *LocalBackend) UpdateProject(_ context.Context, id, name string) error {
	if !l.projects.Rename(id, name) {
		return fmt.Errorf("project '%s' not found", id)
	}
	return nil
}

// DeleteProject deletes a local project with the usual cascade.
func (l *LocalBackend) DeleteProject(_ context.Context, id string) error {
	if !l.projects.Delete(id) {
		return fmt.Errorf("project '%s' not found", id)
	}
	return nil
}

// ConvertToProject converts locally.
func (l *LocalBackend) ConvertToProject(_ context.Context, conversationID string) (string, error) {
	return l.conversations.ConvertToProject(conversationID)
}

// Ping always succeeds for the local backend.
func (l *LocalBackend) Ping(_ context.Context) error {
	return nil
}
