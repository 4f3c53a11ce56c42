package minervatypes

import "time"

// Project groups conversations under a user-visible name. The Conversations
// slice is a denormalized convenience index; the canonical association is the
// conversation's placement in the store document plus its Project field, so
// the index is best-effort and rebuilt rather than trusted.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`        // Display name, user-editable, not required unique
	Description   string    `json:"description"` // Optional, may be derived from a source conversation's summary
	Conversations []string  `json:"conversations,omitempty"`
	Created       time.Time `json:"created"`
	LastModified  time.Time `json:"lastModified"`
	Tags          []string  `json:"tags,omitempty"`
}

// AutoConvertedTag marks projects created by converting a conversation.
const AutoConvertedTag = "auto-converted"
