package core

import (
	"context"

	"github.com/parley-chat/parley/internal/logger"
	"github.com/parley-chat/parley/internal/store"
)

const defaultSystemPrompt = "You are a helpful assistant. Answer the user's questions accurately and concisely."

// PreparedContext is the bounded message list to send upstream. Reduction only
// affects what goes upstream; persisted history keeps the full log.
type PreparedContext struct {
	Messages    []store.Message
	TotalTokens int
	// SummarizedThrough is the index boundary of the original history folded
	// into the summary message; 0 when no reduction happened.
	SummarizedThrough int
}

// WindowManager assembles the exact message list to send upstream under the
// token budget. Older context is lossy-compressed through the summarizer;
// the most recent tail is always preserved verbatim.
type WindowManager struct {
	summarizer *Summarizer
	budget     int
	tailSize   int
}

func NewWindowManager(summarizer *Summarizer, budget, tailSize int) *WindowManager {
	return &WindowManager{summarizer: summarizer, budget: budget, tailSize: tailSize}
}

func (w *WindowManager) Prepare(ctx context.Context, conv *store.Conversation) PreparedContext {
	messages := make([]store.Message, len(conv.Messages))
	copy(messages, conv.Messages)

	hasSystem := false
	for _, msg := range messages {
		if msg.Role == store.RoleSystem {
			hasSystem = true
			break
		}
	}
	if !hasSystem {
		system := store.Message{ConversationID: conv.ID, Role: store.RoleSystem, Content: defaultSystemPrompt}
		messages = append([]store.Message{system}, messages...)
	}

	total := EstimateMessageTokens(messages)
	if total <= w.budget || len(messages) <= w.tailSize {
		return PreparedContext{Messages: messages, TotalTokens: total}
	}

	tail := messages[len(messages)-w.tailSize:]
	overflow := messages[:len(messages)-w.tailSize]
	summary := w.summarizer.Summarize(ctx, overflow)

	reduced := make([]store.Message, 0, w.tailSize+2)
	reduced = append(reduced, messages[0], summary)
	reduced = append(reduced, tail...)

	reducedTotal := EstimateMessageTokens(reduced)
	logger.L.Info("context window reduced",
		"conversation", conv.ID,
		"messages", len(messages),
		"kept", len(reduced),
		"tokens_before", total,
		"tokens_after", reducedTotal)

	return PreparedContext{
		Messages:          reduced,
		TotalTokens:       reducedTotal,
		SummarizedThrough: len(messages) - w.tailSize,
	}
}
