package core

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/parley-chat/parley/internal/store"
	"github.com/stretchr/testify/require"
)

func conversationWith(messageSize, turns int) *store.Conversation {
	conv := &store.Conversation{ID: "conv-1", UserID: 1}
	conv.Messages = append(conv.Messages, store.Message{Role: store.RoleSystem, Content: "be helpful"})
	for i := 0; i < turns; i++ {
		role := store.RoleUser
		if i%2 == 1 {
			role = store.RoleAssistant
		}
		conv.Messages = append(conv.Messages, store.Message{
			Role:    role,
			Content: fmt.Sprintf("%d:", i) + strings.Repeat("x", messageSize),
		})
	}
	return conv
}

// A conversation under budget is forwarded untouched: no summarizer call,
// full history.
func TestWindowManager_UnderBudgetPassesThrough(t *testing.T) {
	llm := &mockLLM{completeResponse: "should not be called"}
	w := NewWindowManager(NewSummarizer(llm, 20), 900000, 20)

	conv := conversationWith(4000, 25) // ~1000 tokens per message, ~25k total
	prepared := w.Prepare(context.Background(), conv)

	require.Equal(t, 0, llm.completeCalls)
	require.Equal(t, len(conv.Messages), len(prepared.Messages))
	require.Equal(t, conv.Messages, prepared.Messages)
	require.Equal(t, EstimateMessageTokens(conv.Messages), prepared.TotalTokens)
	require.Equal(t, 0, prepared.SummarizedThrough)
}

// Over budget with more than tail-size messages: exactly one summarizer call
// over the overflow, rebuilt as [system, summary, tail...].
func TestWindowManager_OverBudgetSummarizes(t *testing.T) {
	llm := &mockLLM{completeResponse: "earlier turns condensed"}
	w := NewWindowManager(NewSummarizer(llm, 20), 900000, 20)

	conv := conversationWith(400000, 25) // ~100k tokens per message, well over budget
	prepared := w.Prepare(context.Background(), conv)

	require.Equal(t, 1, llm.completeCalls)
	require.Equal(t, 22, len(prepared.Messages)) // system + summary + 20 tail

	require.Equal(t, store.RoleSystem, prepared.Messages[0].Role)
	require.Equal(t, "be helpful", prepared.Messages[0].Content)
	require.Equal(t, store.RoleSystem, prepared.Messages[1].Role)
	require.Contains(t, prepared.Messages[1].Content, "earlier turns condensed")

	// The last 20 messages survive verbatim.
	tail := conv.Messages[len(conv.Messages)-20:]
	for i, msg := range tail {
		require.Equal(t, msg.Role, prepared.Messages[2+i].Role)
		require.Equal(t, msg.Content, prepared.Messages[2+i].Content)
	}

	require.Equal(t, EstimateMessageTokens(prepared.Messages), prepared.TotalTokens)
	require.Equal(t, len(conv.Messages)-20, prepared.SummarizedThrough)
}

// Reduction brings the prepared list back under budget when the tail itself
// fits.
func TestWindowManager_BudgetInvariant(t *testing.T) {
	llm := &mockLLM{completeResponse: "condensed"}
	budget := 2000
	w := NewWindowManager(NewSummarizer(llm, 20), budget, 5)

	conv := conversationWith(400, 30) // 100 tokens per message, 3000 total
	prepared := w.Prepare(context.Background(), conv)

	require.LessOrEqual(t, prepared.TotalTokens, budget)
	require.Equal(t, 7, len(prepared.Messages)) // system + summary + 5 tail
}

func TestWindowManager_PrependsDefaultSystemMessage(t *testing.T) {
	llm := &mockLLM{}
	w := NewWindowManager(NewSummarizer(llm, 20), 900000, 20)

	conv := &store.Conversation{ID: "conv-2", UserID: 1, Messages: []store.Message{
		{Role: store.RoleUser, Content: "hello"},
	}}
	prepared := w.Prepare(context.Background(), conv)

	require.Equal(t, 2, len(prepared.Messages))
	require.Equal(t, store.RoleSystem, prepared.Messages[0].Role)
	require.Equal(t, EstimateTokens(prepared.Messages[0].Content)+EstimateTokens("hello"), prepared.TotalTokens)

	// The stored conversation itself is never mutated by preparation.
	require.Len(t, conv.Messages, 1)
}
