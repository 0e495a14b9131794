package db

import (
	"context"
	"sort"
	"sync"

	"github.com/RichardoC/orion/internal/models"
	"github.com/google/uuid"
)

// MemoryStorage keeps everything in process memory. Records are copied on
// the way in and out so callers never share state with the store.
type MemoryStorage struct {
	mu            sync.RWMutex
	users         map[string]models.User
	emails        map[string]string
	conversations map[string]models.Conversation
	messages      map[string][]models.Message
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:         make(map[string]models.User),
		emails:        make(map[string]string),
		conversations: make(map[string]models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.emails[user.Email]; exists {
		return ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = Now()

	s.users[user.ID] = *user
	s.emails[user.Email] = user.ID
	return nil
}

func (s *MemoryStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (s *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.emails[email]
	if !exists {
		return nil, ErrNotFound
	}
	user := s.users[id]
	return &user, nil
}

func (s *MemoryStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.CreatedAt = Now()
	s.conversations[conv.ID] = *conv
	return nil
}

func (s *MemoryStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[id]
	if !exists {
		return nil, ErrNotFound
	}
	return &conv, nil
}

func (s *MemoryStorage) ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.ConversationSummary, 0)
	for _, conv := range s.conversations {
		if conv.OwnerID != ownerID {
			continue
		}
		list = append(list, models.ConversationSummary{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			MessageCount: len(s.messages[conv.ID]),
		})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list, nil
}

func (s *MemoryStorage) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[id]; !exists {
		return ErrNotFound
	}
	delete(s.messages, id)
	delete(s.conversations, id)
	return nil
}

func (s *MemoryStorage) SaveMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[msg.ConvID]; !exists {
		return ErrNotFound
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = Now()
	s.messages[msg.ConvID] = append(s.messages[msg.ConvID], *msg)
	return nil
}

func (s *MemoryStorage) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[conversationID]
	messages := make([]models.Message, len(stored))
	copy(messages, stored)
	return messages, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
