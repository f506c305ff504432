package store

import "time"

// Message roles. Order of appended messages is the sole source of truth for
// recency; messages are never mutated after insert.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type User struct {
	ID             int64     `json:"id"`
	ExternalUserID string    `json:"external_user_id"`
	PasswordHash   string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt      time.Time `json:"created_at"`
}

type Conversation struct {
	ID               string    `json:"id"` // UUID
	UserID           int64     `json:"user_id"`
	Title            *string   `json:"title"` // Nullable
	TotalTokensUsed  int       `json:"total_tokens_used"`
	LastSummarizedAt int       `json:"last_summarized_at"` // message index boundary already folded into a summary
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Messages         []Message `json:"messages,omitempty"`
}

type Message struct {
	ID               string    `json:"id"` // UUID
	ConversationID   string    `json:"conversation_id"`
	Role             string    `json:"role"`
	Content          string    `json:"content"`
	ImageURL         *string   `json:"image_url,omitempty"`
	TokenCount       *int      `json:"token_count,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	NegativeFeedback bool      `json:"negative_feedback"`
}
