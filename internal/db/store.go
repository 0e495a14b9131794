package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/RichardoC/orion/internal/models"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("access denied")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Store persists users, conversations and their messages.
// Every backend returns ErrNotFound for missing records and
// ErrDuplicateEmail when CreateUser hits an existing address.
type Store interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error)
	DeleteConversation(ctx context.Context, id string) error

	SaveMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)

	Close() error
}

// OwnedConversation loads a conversation and checks it belongs to userID.
func OwnedConversation(ctx context.Context, store Store, id, userID string) (*models.Conversation, error) {
	conv, err := store.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != userID {
		return nil, ErrForbidden
	}
	return conv, nil
}

// Now returns a strictly increasing UTC timestamp at millisecond precision,
// the finest resolution every backend round-trips.
func Now() time.Time {
	return clock.now()
}

var clock = &monotonicClock{}

type monotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

func (c *monotonicClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := time.Now().UTC().Truncate(time.Millisecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Millisecond)
	}
	c.last = t
	return t
}
