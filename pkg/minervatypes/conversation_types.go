// Package minervatypes defines conversation and project management types for Minerva.
// This file contains the core types for managing conversation history, collection
// placement, and query scoping across the local store.
package minervatypes

import "time"

// Message represents a single message in a conversation.
// Messages track the role (user/assistant/system), content, and timestamp for each turn.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"`
}

// Conversation represents a stored conversation with its full message history
// and lifecycle metadata. A conversation lives in exactly one collection at a
// time: general, one project's list, or one agent's list.
type Conversation struct {
	ID          string     `json:"id"`                 // Unique identifier, immutable after creation
	Title       string     `json:"title"`              // Human-readable title, auto-derived from early messages
	Messages    []Message  `json:"messages"`           // Ordered conversation history, append-only
	Created     time.Time  `json:"created"`            // Creation timestamp
	LastUpdated time.Time  `json:"lastUpdated"`        // Refreshed on every append or field edit
	Pinned      bool       `json:"pinned"`             // Pinned conversations are exempt from expiry and bulk-clear
	Tags        []string   `json:"tags,omitempty"`     // User tags, rendering preserves insertion order
	Project     string     `json:"project,omitempty"`  // Owning project id, empty means general or agent-scoped
	ExpireAt    *time.Time `json:"expireAt,omitempty"` // nil means never expires
	Summary     string     `json:"summary,omitempty"`  // Derived preview string, recomputed on append
}

// LocationType identifies which collection currently holds a conversation.
type LocationType string

// Collection locations for a conversation within the store document.
const (
	LocationGeneral LocationType = "general"
	LocationProject LocationType = "project"
	LocationAgent   LocationType = "agent"
)

// FindResult is the result of a conversation lookup: the conversation plus the
// collection that holds it. Mutating operations need the location to know
// which list to splice.
type FindResult struct {
	Conversation *Conversation
	Location     LocationType
	ProjectID    string // Set when Location is LocationProject
	AgentID      string // Set when Location is LocationAgent
}

// SearchTab selects the candidate set for search and listing operations.
type SearchTab string

// Search tabs selecting which collections feed a query.
const (
	TabAll     SearchTab = "all"
	TabPinned  SearchTab = "pinned"
	TabProject SearchTab = "project"
	TabAgent   SearchTab = "agent"
)

// SearchScope narrows search and listing to a tab and, for project/agent tabs,
// a specific collection. The pinned tab flattens across all collections.
type SearchScope struct {
	Tab       SearchTab
	ProjectID string
	AgentID   string
}

// CreateOptions carries the optional parameters for conversation creation.
// ProjectID takes precedence over AgentID for collection routing.
type CreateOptions struct {
	ProjectID   string
	AgentID     string
	Pinned      bool
	Tags        []string
	ExpiryDays  int  // Days until expiry; 0 means use the configured default
	NeverExpire bool // Overrides ExpiryDays, conversation never expires
}

// ConversationUpdates carries the partial-update fields for a conversation.
// Nil fields are left untouched.
type ConversationUpdates struct {
	Title    *string
	Messages *[]Message
	Pinned   *bool
	Tags     *[]string
}
