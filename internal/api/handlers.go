package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/core"
	"github.com/parley-chat/parley/internal/logger"
)

type APIHandler struct {
	chatService *core.ChatService
	pipeline    *core.StreamingPipeline
}

func NewAPIHandler(cs *core.ChatService, pipeline *core.StreamingPipeline) *APIHandler {
	return &APIHandler{chatService: cs, pipeline: pipeline}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.chatService.GetUserByExternalID(externalUserID)
		if err != nil {
			logger.L.Error("failed to resolve user identity", "user", externalUserID, "error", err)
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}

		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		ctx = context.WithValue(ctx, "externalUserID", user.ExternalUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		logger.L.Error("failed to hash password", "user", req.UserID, "error", err)
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.chatService.CreateUser(req.UserID, hashedPassword)
	if err != nil {
		logger.L.Error("failed to create user", "user", req.UserID, "error", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.UserID == "" || req.Password == "" {
		http.Error(w, "User ID and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.chatService.GetUserByExternalID(req.UserID)
	if err != nil {
		logger.L.Error("failed to get user", "user", req.UserID, "error", err)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		logger.L.Error("failed to generate JWT", "user", req.UserID, "error", err)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

type CreateConversationRequest struct {
	FirstMessage *string `json:"first_message,omitempty"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req CreateConversationRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	conv, err := h.chatService.CreateConversation(r.Context(), userID, req.FirstMessage)
	if err != nil {
		logger.L.Error("failed to create conversation", "user", userID, "error", err)
		http.Error(w, "Failed to create conversation", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(conv)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	conversations, err := h.chatService.GetConversations(userID)
	if err != nil {
		logger.L.Error("failed to list conversations", "user", userID, "error", err)
		http.Error(w, "Failed to list conversations", http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(conversations)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID := chi.URLParam(r, "conversationID")

	conv, err := h.chatService.GetConversation(conversationID, userID)
	if err != nil {
		logger.L.Error("failed to get conversation", "user", userID, "conversation", conversationID, "error", err)
		http.Error(w, "Failed to get conversation", http.StatusInternalServerError)
		return
	}
	if conv == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(conv)
}

type StreamMessageRequest struct {
	Content  string  `json:"content"`
	ImageURL *string `json:"image_url,omitempty"`
}

// StreamMessageHandler runs one chat turn and streams the assistant reply as
// server-sent events. Errors raised before the stream opens map to HTTP
// statuses; after that the pipeline signals in-band.
func (h *APIHandler) StreamMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	conversationID := chi.URLParam(r, "conversationID")

	var req StreamMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sink := newSSEWriter(w)
	err := h.pipeline.Run(r.Context(), conversationID, userID, req.Content, req.ImageURL, sink)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrNotFound):
			http.Error(w, "Conversation not found", http.StatusNotFound)
		case errors.Is(err, core.ErrValidation):
			http.Error(w, "Message content and conversation ID are required", http.StatusBadRequest)
		default:
			logger.L.Error("stream turn failed before start", "user", userID, "conversation", conversationID, "error", err)
			http.Error(w, "Failed to process message", http.StatusInternalServerError)
		}
		return
	}

	go h.chatService.EnsureTitle(conversationID, userID)
}

type FeedbackRequest struct {
	Negative bool `json:"negative"`
}

func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	messageID := chi.URLParam(r, "messageID")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	err := h.chatService.SetMessageFeedback(messageID, userID, req.Negative)
	if err != nil {
		logger.L.Error("failed to set feedback", "message", messageID, "user", userID, "error", err)
		http.Error(w, "Failed to set feedback", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
