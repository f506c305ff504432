package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const defaultSystemMessage = "You are a helpful assistant. Answer the user's questions accurately and concisely."

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        external_user_id TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        title TEXT,
        total_tokens_used INTEGER NOT NULL DEFAULT 0,
        last_summarized_at INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        conversation_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
        content TEXT NOT NULL,
        image_url TEXT,
        token_count INTEGER,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        negative_feedback BOOLEAN DEFAULT FALSE,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages (conversation_id, created_at);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetUserByExternalID(externalUserID string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, external_user_id, password_hash, created_at FROM users WHERE external_user_id = ?", externalUserID).Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(externalUserID, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (external_user_id, password_hash) VALUES (?, ?)", externalUserID, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getUserByID(id)
}

func (s *SQLiteStore) getUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, external_user_id, password_hash, created_at FROM users WHERE id = ?", id).Scan(&user.ID, &user.ExternalUserID, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Conversation methods

// CreateConversation inserts a conversation seeded with one system message, so
// the message list is never empty.
func (s *SQLiteStore) CreateConversation(userID int64, title *string) (*Conversation, error) {
	conversationID := uuid.NewString()
	now := time.Now()

	stmt, err := s.db.Prepare("INSERT INTO conversations (id, user_id, title, total_tokens_used, last_summarized_at, created_at, updated_at) VALUES (?, ?, ?, 0, 0, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare conversation insert: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(conversationID, userID, title, now, now); err != nil {
		return nil, fmt.Errorf("failed to execute conversation insert: %w", err)
	}

	seed := Message{
		ConversationID: conversationID,
		Role:           RoleSystem,
		Content:        defaultSystemMessage,
	}
	if err := s.AppendMessage(&seed); err != nil {
		return nil, fmt.Errorf("failed to seed system message: %w", err)
	}

	return &Conversation{
		ID:        conversationID,
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{seed},
	}, nil
}

// GetConversation returns the conversation with its full message history, or
// (nil, nil) when it does not exist or is not owned by userID.
func (s *SQLiteStore) GetConversation(conversationID string, userID int64) (*Conversation, error) {
	var conv Conversation
	var title sql.NullString
	err := s.db.QueryRow("SELECT id, user_id, title, total_tokens_used, last_summarized_at, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?", conversationID, userID).
		Scan(&conv.ID, &conv.UserID, &title, &conv.TotalTokensUsed, &conv.LastSummarizedAt, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if title.Valid {
		conv.Title = &title.String
	}

	messages, err := s.getMessages(conversationID)
	if err != nil {
		return nil, err
	}
	conv.Messages = messages
	return &conv, nil
}

func (s *SQLiteStore) GetConversationsByUserID(userID int64) ([]Conversation, error) {
	rows, err := s.db.Query("SELECT id, user_id, title, total_tokens_used, last_summarized_at, created_at, updated_at FROM conversations WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		var conv Conversation
		var title sql.NullString
		if err := rows.Scan(&conv.ID, &conv.UserID, &title, &conv.TotalTokensUsed, &conv.LastSummarizedAt, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if title.Valid {
			conv.Title = &title.String
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

func (s *SQLiteStore) UpdateConversationTitle(conversationID string, userID int64, title string) error {
	stmt, err := s.db.Prepare("UPDATE conversations SET title = ?, updated_at = ? WHERE id = ? AND user_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare title update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(title, time.Now(), conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to execute title update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("conversation not found or not owned by user, title not updated")
	}
	return nil
}

// UpdateConversationStats records the token accounting and summarization
// boundary after a completed turn.
func (s *SQLiteStore) UpdateConversationStats(conversationID string, totalTokensUsed, lastSummarizedAt int) error {
	stmt, err := s.db.Prepare("UPDATE conversations SET total_tokens_used = ?, last_summarized_at = ?, updated_at = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare stats update: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(totalTokensUsed, lastSummarizedAt, time.Now(), conversationID); err != nil {
		return fmt.Errorf("failed to execute stats update: %w", err)
	}
	return nil
}

// Message methods

func (s *SQLiteStore) AppendMessage(msg *Message) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now()

	stmt, err := s.db.Prepare("INSERT INTO messages (id, conversation_id, role, content, image_url, token_count, created_at, negative_feedback) VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.ImageURL, msg.TokenCount, msg.CreatedAt, msg.NegativeFeedback); err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getMessages(conversationID string) ([]Message, error) {
	rows, err := s.db.Query("SELECT id, conversation_id, role, content, image_url, token_count, created_at, negative_feedback FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, rowid ASC", conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var imageURL sql.NullString
		var tokenCount sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &imageURL, &tokenCount, &msg.CreatedAt, &msg.NegativeFeedback); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if imageURL.Valid {
			msg.ImageURL = &imageURL.String
		}
		if tokenCount.Valid {
			tc := int(tokenCount.Int64)
			msg.TokenCount = &tc
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (s *SQLiteStore) UpdateMessageFeedback(messageID string, userID int64, negativeFeedback bool) error {
	stmt, err := s.db.Prepare(`
        UPDATE messages SET negative_feedback = ?
        WHERE id = ? AND conversation_id IN (SELECT id FROM conversations WHERE user_id = ?)
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare feedback update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(negativeFeedback, messageID, userID)
	if err != nil {
		return fmt.Errorf("failed to execute feedback update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("message not found, feedback not updated")
	}
	return nil
}
