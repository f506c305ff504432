package core

import (
	"strings"
	"testing"

	"github.com/parley-chat/parley/internal/store"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, EstimateTokens(""))
	require.Equal(t, 1, EstimateTokens("a"))
	require.Equal(t, 1, EstimateTokens("abcd"))
	require.Equal(t, 2, EstimateTokens("abcde"))
	require.Equal(t, 1000, EstimateTokens(strings.Repeat("x", 4000)))
}

// Longer text never estimates fewer tokens, and the same input always
// estimates the same count.
func TestEstimateTokens_MonotonicAndStable(t *testing.T) {
	prev := 0
	text := ""
	for i := 0; i < 100; i++ {
		text += "word "
		got := EstimateTokens(text)
		require.GreaterOrEqual(t, got, prev)
		require.Equal(t, got, EstimateTokens(text))
		prev = got
	}
}

func TestEstimateMessageTokens(t *testing.T) {
	messages := []store.Message{
		{Role: store.RoleSystem, Content: strings.Repeat("a", 40)},
		{Role: store.RoleUser, Content: strings.Repeat("b", 60)},
	}
	require.Equal(t, 25, EstimateMessageTokens(messages))
}
