package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateConversation_SeedsSystemMessage(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)

	conv, err := s.CreateConversation(user.ID, nil)
	require.NoError(t, err)

	loaded, err := s.GetConversation(conv.ID, user.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.Messages, 1, "conversations are never empty after creation")
	require.Equal(t, RoleSystem, loaded.Messages[0].Role)
}

func TestGetConversation_OwnershipEnforced(t *testing.T) {
	s := newTestStore(t)
	alice, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "hash")
	require.NoError(t, err)

	conv, err := s.CreateConversation(alice.ID, nil)
	require.NoError(t, err)

	loaded, err := s.GetConversation(conv.ID, bob.ID)
	require.NoError(t, err)
	require.Nil(t, loaded, "another user's conversation must read as not found")
}

func TestAppendMessage_PreservesOrder(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	conv, err := s.CreateConversation(user.ID, nil)
	require.NoError(t, err)

	for _, content := range []string{"first", "second", "third"} {
		msg := Message{ConversationID: conv.ID, Role: RoleUser, Content: content}
		require.NoError(t, s.AppendMessage(&msg))
	}

	loaded, err := s.GetConversation(conv.ID, user.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Messages, 4)
	require.Equal(t, "first", loaded.Messages[1].Content)
	require.Equal(t, "second", loaded.Messages[2].Content)
	require.Equal(t, "third", loaded.Messages[3].Content)
}

func TestUpdateConversationStats(t *testing.T) {
	s := newTestStore(t)
	user, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	conv, err := s.CreateConversation(user.ID, nil)
	require.NoError(t, err)

	require.NoError(t, s.UpdateConversationStats(conv.ID, 12345, 6))

	loaded, err := s.GetConversation(conv.ID, user.ID)
	require.NoError(t, err)
	require.Equal(t, 12345, loaded.TotalTokensUsed)
	require.Equal(t, 6, loaded.LastSummarizedAt)
}

func TestUpdateMessageFeedback_RequiresOwnership(t *testing.T) {
	s := newTestStore(t)
	alice, err := s.CreateUser("alice", "hash")
	require.NoError(t, err)
	bob, err := s.CreateUser("bob", "hash")
	require.NoError(t, err)

	conv, err := s.CreateConversation(alice.ID, nil)
	require.NoError(t, err)
	msg := Message{ConversationID: conv.ID, Role: RoleAssistant, Content: "reply"}
	require.NoError(t, s.AppendMessage(&msg))

	require.Error(t, s.UpdateMessageFeedback(msg.ID, bob.ID, true))
	require.NoError(t, s.UpdateMessageFeedback(msg.ID, alice.ID, true))

	loaded, err := s.GetConversation(conv.ID, alice.ID)
	require.NoError(t, err)
	require.True(t, loaded.Messages[1].NegativeFeedback)
}
