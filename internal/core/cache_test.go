package core

import (
	"testing"
	"time"

	"github.com/parley-chat/parley/internal/store"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_OnlyTrailingWindowMatters(t *testing.T) {
	tail := []store.Message{
		{Role: store.RoleUser, Content: "how tall is the eiffel tower"},
		{Role: store.RoleAssistant, Content: "330 meters"},
		{Role: store.RoleUser, Content: "and the burj khalifa?"},
	}

	a := append([]store.Message{{Role: store.RoleSystem, Content: "be helpful"}}, tail...)
	b := append([]store.Message{
		{Role: store.RoleSystem, Content: "completely different system prompt"},
		{Role: store.RoleUser, Content: "unrelated earlier question"},
		{Role: store.RoleAssistant, Content: "unrelated earlier answer"},
	}, tail...)

	require.Equal(t, Fingerprint(a), Fingerprint(b))
}

func TestFingerprint_ChangesWithContentAndRole(t *testing.T) {
	msgs := []store.Message{
		{Role: store.RoleUser, Content: "hello"},
	}
	changedContent := []store.Message{
		{Role: store.RoleUser, Content: "hello!"},
	}
	changedRole := []store.Message{
		{Role: store.RoleAssistant, Content: "hello"},
	}

	require.NotEqual(t, Fingerprint(msgs), Fingerprint(changedContent))
	require.NotEqual(t, Fingerprint(msgs), Fingerprint(changedRole))
}

func TestResponseCache_HitReturnsCachedContent(t *testing.T) {
	cache := NewResponseCache(time.Hour)
	cache.Put("fp", "cached reply")

	got, ok := cache.Get("fp")
	require.True(t, ok)
	require.Equal(t, "cached reply", got)

	_, ok = cache.Get("other")
	require.False(t, ok)

	stats := cache.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}

func TestResponseCache_TTLExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewResponseCache(time.Hour)
	cache.now = func() time.Time { return now }

	cache.Put("fp", "reply")

	now = now.Add(time.Hour - time.Second)
	_, ok := cache.Get("fp")
	require.True(t, ok, "entry should still be live just before TTL")

	now = now.Add(time.Second)
	_, ok = cache.Get("fp")
	require.False(t, ok, "entry must never be returned at or after TTL")

	// Expired entry was dropped on read.
	require.Equal(t, 0, cache.Stats().Entries)
}

func TestResponseCache_Sweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewResponseCache(time.Minute)
	cache.now = func() time.Time { return now }

	cache.Put("a", "1")
	cache.Put("b", "2")
	now = now.Add(2 * time.Minute)
	cache.Put("c", "3")

	require.Equal(t, 2, cache.Sweep())
	require.Equal(t, 1, cache.Stats().Entries)

	_, ok := cache.Get("c")
	require.True(t, ok)
}
