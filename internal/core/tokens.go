package core

import "github.com/parley-chat/parley/internal/store"

// EstimateTokens approximates the token count of text as ceil(len/4). It is a
// cheap length-based estimate, not a real tokenizer; it only needs to be
// stable and monotonic so budget and cache decisions are reproducible.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// EstimateMessageTokens sums the estimate over a message list.
func EstimateMessageTokens(messages []store.Message) int {
	total := 0
	for _, msg := range messages {
		total += EstimateTokens(msg.Content)
	}
	return total
}
