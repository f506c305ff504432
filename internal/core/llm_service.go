package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/logger"
	"github.com/parley-chat/parley/internal/store"
)

const defaultChatModelName = "gemini-1.5-flash-latest"

// LLMService implements CompletionClient on top of the Gemini API.
type LLMService struct {
	client *genai.Client
	model  string
}

func NewLLMService() (*LLMService, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &LLMService{
		client: client,
		model:  defaultChatModelName,
	}, nil
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			logger.L.Warn("error closing GenAI client", "error", err)
		}
	}
}

// Complete issues one non-streaming completion with a system instruction.
func (s *LLMService) Complete(ctx context.Context, instruction, prompt string) (string, error) {
	model := s.client.GenerativeModel(s.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(instruction)},
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini completion request failed: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty or non-text response")
	}
	return text, nil
}

// CompleteStream opens a live streaming completion over the given message
// list and relays each chunk to handler as it arrives. It returns nil only on
// natural completion of the upstream stream.
func (s *LLMService) CompleteStream(ctx context.Context, messages []store.Message, handler StreamHandler) error {
	var systemParts []string
	var turns []store.Message
	for _, msg := range messages {
		if msg.Role == store.RoleSystem {
			systemParts = append(systemParts, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != store.RoleUser {
		return fmt.Errorf("last message in history is not from 'user', cannot stream completion")
	}

	model := s.client.GenerativeModel(s.model)
	if len(systemParts) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(systemParts, "\n\n"))},
		}
	}

	var history []*genai.Content
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == store.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}

	chatSession := model.StartChat()
	chatSession.History = history

	iter := chatSession.SendMessageStream(ctx, genai.Text(turns[len(turns)-1].Content))
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			return nil
		}
		if err != nil {
			return fmt.Errorf("gemini stream failed: %w", err)
		}
		chunk := responseText(resp)
		if chunk == "" {
			continue
		}
		if err := handler(chunk); err != nil {
			return err
		}
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			text.WriteString(string(txt))
		}
	}
	return text.String()
}
