package core

import (
	"context"

	"github.com/parley-chat/parley/internal/store"
)

// StreamHandler receives one incremental chunk of a live completion. Returning
// an error aborts the stream.
type StreamHandler func(chunk string) error

// CompletionClient is the minimal upstream surface the core needs; it is easy
// to mock in tests. CompleteStream relays a finite, non-restartable chunk
// sequence and returns nil only on natural completion; Complete is the
// non-streaming variant used for summarization and title generation.
type CompletionClient interface {
	Complete(ctx context.Context, instruction, prompt string) (string, error)
	CompleteStream(ctx context.Context, messages []store.Message, handler StreamHandler) error
}

// ConversationStore is the persistence surface the streaming pipeline needs.
// *store.SQLiteStore satisfies it.
type ConversationStore interface {
	GetConversation(conversationID string, userID int64) (*store.Conversation, error)
	AppendMessage(msg *store.Message) error
	UpdateConversationStats(conversationID string, totalTokensUsed, lastSummarizedAt int) error
}

// EventSink is the outbound client channel. Open commits the channel to
// event-stream framing (irreversible); Send emits one data frame.
type EventSink interface {
	Open()
	Send(data string) error
}
