package minervatypes

import "time"

// RemoteMessage is a message as the backend API serializes it. The remote
// schema predates the local one and uses sender/text field names.
type RemoteMessage struct {
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"`
}

// RemoteRecord is a conversation as returned by the backend API.
type RemoteRecord struct {
	ID        string          `json:"id"`
	Title     string          `json:"title,omitempty"`
	Messages  []RemoteMessage `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LegacyConversation is the shape stored under the legacy flat-array key.
// It shares the sender/text naming with the remote schema and carries no
// collection placement; legacy conversations reconcile into general.
type LegacyConversation struct {
	ID          string          `json:"id"`
	Title       string          `json:"title,omitempty"`
	Messages    []RemoteMessage `json:"messages"`
	Created     time.Time       `json:"created"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Pinned      bool            `json:"pinned,omitempty"`
	Tags        []string        `json:"tags,omitempty"`
}
