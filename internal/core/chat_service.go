package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/parley-chat/parley/internal/logger"
	"github.com/parley-chat/parley/internal/store"
)

const titleInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
	"The title should be 3-5 words maximum. Just return the title itself, nothing else."

// ChatService handles conversation CRUD around the streaming pipeline.
type ChatService struct {
	dbStore *store.SQLiteStore
	llm     CompletionClient
}

func NewChatService(db *store.SQLiteStore, llm CompletionClient) *ChatService {
	return &ChatService{dbStore: db, llm: llm}
}

func (s *ChatService) GetUserByExternalID(externalUserID string) (*store.User, error) {
	return s.dbStore.GetUserByExternalID(externalUserID)
}

func (s *ChatService) CreateUser(externalUserID, passwordHash string) (*store.User, error) {
	return s.dbStore.CreateUser(externalUserID, passwordHash)
}

// CreateConversation creates a conversation seeded with a system message. When
// a first message is supplied the assistant reply is generated synchronously
// (non-streaming) so the client gets a complete first exchange back.
func (s *ChatService) CreateConversation(ctx context.Context, userID int64, firstMessage *string) (*store.Conversation, error) {
	conv, err := s.dbStore.CreateConversation(userID, nil) // Title is generated later
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation in DB: %w", err)
	}

	if firstMessage != nil && *firstMessage != "" {
		tokens := EstimateTokens(*firstMessage)
		userMsg := store.Message{
			ConversationID: conv.ID,
			Role:           store.RoleUser,
			Content:        *firstMessage,
			TokenCount:     &tokens,
		}
		if err := s.dbStore.AppendMessage(&userMsg); err != nil {
			logger.L.Warn("failed to store first user message", "conversation", conv.ID, "error", err)
			return conv, nil
		}
		conv.Messages = append(conv.Messages, userMsg)

		replyContent, err := s.llm.Complete(ctx, defaultSystemPrompt, *firstMessage)
		if err != nil {
			logger.L.Warn("failed to generate initial reply", "conversation", conv.ID, "error", err)
			replyContent = "I encountered an issue trying to respond. Please try again."
		}

		replyTokens := EstimateTokens(replyContent)
		reply := store.Message{
			ConversationID: conv.ID,
			Role:           store.RoleAssistant,
			Content:        replyContent,
			TokenCount:     &replyTokens,
		}
		if err := s.dbStore.AppendMessage(&reply); err != nil {
			logger.L.Warn("failed to store initial assistant message", "conversation", conv.ID, "error", err)
		} else {
			conv.Messages = append(conv.Messages, reply)
		}

		go s.generateAndSaveTitle(conv.ID, userID, *firstMessage)
	}

	return conv, nil
}

func (s *ChatService) GetConversations(userID int64) ([]store.Conversation, error) {
	return s.dbStore.GetConversationsByUserID(userID)
}

// GetConversation returns the conversation with full history, or nil when it
// does not exist or is not owned by the caller.
func (s *ChatService) GetConversation(conversationID string, userID int64) (*store.Conversation, error) {
	return s.dbStore.GetConversation(conversationID, userID)
}

// EnsureTitle generates a title from the first user message when the
// conversation does not have one yet. Intended to run in a goroutine after a
// completed turn; failures are logged only.
func (s *ChatService) EnsureTitle(conversationID string, userID int64) {
	conv, err := s.dbStore.GetConversation(conversationID, userID)
	if err != nil || conv == nil {
		return
	}
	if conv.Title != nil && *conv.Title != "" {
		return
	}

	basis := ""
	for _, msg := range conv.Messages {
		if msg.Role == store.RoleUser {
			basis = msg.Content
			break
		}
	}
	if basis == "" {
		return
	}
	s.generateAndSaveTitle(conversationID, userID, basis)
}

func (s *ChatService) generateAndSaveTitle(conversationID string, userID int64, basisContent string) {
	prompt := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: %q.", basisContent)
	title, err := s.llm.Complete(context.Background(), titleInstruction, prompt)
	if err != nil {
		logger.L.Warn("failed to generate title", "conversation", conversationID, "error", err)
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")

	if err := s.dbStore.UpdateConversationTitle(conversationID, userID, title); err != nil {
		logger.L.Warn("failed to save generated title", "conversation", conversationID, "title", title, "error", err)
	} else {
		logger.L.Info("generated conversation title", "conversation", conversationID, "title", title)
	}
}

func (s *ChatService) SetMessageFeedback(messageID string, userID int64, negative bool) error {
	return s.dbStore.UpdateMessageFeedback(messageID, userID, negative)
}
