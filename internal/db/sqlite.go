package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RichardoC/orion/internal/models"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS conversations_user_idx ON conversations(user_id, created_at);

CREATE TABLE IF NOT EXISTS messages (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    conversation_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages(conversation_id, created_at);`

// Database is the SQL-backed Store shared by the sqlite and postgres drivers.
// Queries are written with ? placeholders and rewritten by rebind.
type Database struct {
	db       *sql.DB
	rebind   func(string) string
	isUnique func(error) bool
}

// New opens (creating if needed) the SQLite database at dbPath.
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	// one writer at a time keeps sqlite from reporting "database is locked"
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Database{
		db:       db,
		rebind:   func(q string) string { return q },
		isUnique: isSQLiteUnique,
	}, nil
}

func isSQLiteUnique(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (db *Database) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = Now()

	query := `
        INSERT INTO users (id, email, password_hash, created_at)
        VALUES (?, ?, ?, ?)`

	_, err := db.db.ExecContext(ctx, db.rebind(query), user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if db.isUnique(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (db *Database) GetUser(ctx context.Context, id string) (*models.User, error) {
	return db.scanUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (db *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.scanUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (db *Database) scanUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var user models.User
	err := db.db.QueryRowContext(ctx, db.rebind(query), arg).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (db *Database) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.CreatedAt = Now()

	query := `
        INSERT INTO conversations (id, user_id, title, created_at)
        VALUES (?, ?, ?, ?)`

	if _, err := db.db.ExecContext(ctx, db.rebind(query), conv.ID, conv.OwnerID, conv.Title, conv.CreatedAt); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (db *Database) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	query := `SELECT id, user_id, title, created_at FROM conversations WHERE id = ?`

	var conv models.Conversation
	err := db.db.QueryRowContext(ctx, db.rebind(query), id).
		Scan(&conv.ID, &conv.OwnerID, &conv.Title, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (db *Database) ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	query := `
        SELECT c.id, c.title, c.created_at, COUNT(m.id)
        FROM conversations c
        LEFT JOIN messages m ON m.conversation_id = c.id
        WHERE c.user_id = ?
        GROUP BY c.id, c.title, c.created_at
        ORDER BY c.created_at DESC`

	rows, err := db.db.QueryContext(ctx, db.rebind(query), ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var conv models.ConversationSummary
		if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (db *Database) DeleteConversation(ctx context.Context, id string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, db.rebind("DELETE FROM messages WHERE conversation_id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	result, err := tx.ExecContext(ctx, db.rebind("DELETE FROM conversations WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (db *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = Now()

	query := `
        INSERT INTO messages (id, conversation_id, role, content, created_at)
        VALUES (?, ?, ?, ?, ?)`

	if _, err := db.db.ExecContext(ctx, db.rebind(query), msg.ID, msg.ConvID, string(msg.Role), msg.Content, msg.CreatedAt); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (db *Database) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	query := `
        SELECT id, conversation_id, role, content, created_at
        FROM messages
        WHERE conversation_id = ?
        ORDER BY created_at ASC, seq ASC`

	rows, err := db.db.QueryContext(ctx, db.rebind(query), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		var role string
		if err := rows.Scan(&msg.ID, &msg.ConvID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = models.Role(role)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (db *Database) Close() error {
	return db.db.Close()
}
