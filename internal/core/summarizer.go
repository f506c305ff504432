package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-chat/parley/internal/logger"
	"github.com/parley-chat/parley/internal/store"
)

const summaryInstruction = "You condense conversation history. Summarize the following messages, " +
	"preserving every fact, decision and open thread needed as context for future turns. " +
	"Be concise. Return only the summary."

// Summarizer compresses a run of older messages into one condensed system
// message. From the caller's point of view it never fails: any upstream error
// degrades to a deterministic fallback so the context-window pipeline can
// always proceed.
type Summarizer struct {
	llm    CompletionClient
	window int // at most this many trailing messages are sent upstream
}

func NewSummarizer(llm CompletionClient, window int) *Summarizer {
	return &Summarizer{llm: llm, window: window}
}

func (s *Summarizer) Summarize(ctx context.Context, messages []store.Message) store.Message {
	count := len(messages)

	// Guard against giant summarization requests.
	truncated := messages
	if len(truncated) > s.window {
		truncated = truncated[len(truncated)-s.window:]
	}

	var transcript strings.Builder
	for _, msg := range truncated {
		transcript.WriteString(msg.Role)
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n")
	}

	summary, err := s.llm.Complete(ctx, summaryInstruction, transcript.String())
	if err != nil || strings.TrimSpace(summary) == "" {
		logger.L.Warn("summarization degraded to fallback", "messages", count, "error", err)
		return store.Message{
			Role:    store.RoleSystem,
			Content: fmt.Sprintf("Previous conversation had %d messages.", count),
		}
	}

	return store.Message{
		Role:    store.RoleSystem,
		Content: "Summary of the earlier conversation: " + strings.TrimSpace(summary),
	}
}
