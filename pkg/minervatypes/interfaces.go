// Package minervatypes defines core architectural interfaces for Minerva.
// This file contains the interfaces that enable the modular service
// architecture: runtime context, service registration, and the backend
// boundary.
package minervatypes

import "context"

// Context provides runtime mode information shared by all services.
// Test mode switches id and timestamp generation to deterministic sequences.
type Context interface {
	SetTestMode(testMode bool)
	IsTestMode() bool
}

// Service defines the interface for Minerva services. Services are
// constructed with their dependencies, registered, and initialized at
// startup.
type Service interface {
	Name() string
	Initialize() error
}

// ServiceRegistry manages the registration and retrieval of services.
type ServiceRegistry interface {
	GetService(name string) (Service, error)
	RegisterService(service Service) error
}

// ConversationBackend is the single boundary to the remote conversation API.
// Two implementations exist: a remote HTTP-backed one and a local
// store-only one, selected once at startup by a factory. Callers never probe
// for API availability at individual call sites.
type ConversationBackend interface {
	Name() string

	ListConversations(ctx context.Context) (map[string]RemoteRecord, error)
	DeleteConversation(ctx context.Context, id string) error

	ListProjects(ctx context.Context) ([]*Project, error)
	CreateProject(ctx context.Context, name, description string) (*Project, error)
	UpdateProject(ctx context.Context, id, name string) error
	DeleteProject(ctx context.Context, id string) error

	ConvertToProject(ctx context.Context, conversationID string) (string, error)

	// Ping reports whether the backend is reachable. The status poller uses
	// this with exponential backoff to drive api-status events.
	Ping(ctx context.Context) error
}
