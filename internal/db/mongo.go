package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/RichardoC/orion/internal/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStorage keeps users, conversations and messages in three collections.
type MongoStorage struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
}

func NewMongoStorage(ctx context.Context, uri, database string) (*MongoStorage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error pinging mongo: %w", err)
	}

	mdb := client.Database(database)
	s := &MongoStorage{
		client:        client,
		users:         mdb.Collection("users"),
		conversations: mdb.Collection("conversations"),
		messages:      mdb.Collection("messages"),
	}

	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStorage) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("error creating users index: %w", err)
	}
	if _, err := s.conversations.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("error creating conversations index: %w", err)
	}
	if _, err := s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("error creating messages index: %w", err)
	}
	return nil
}

func (s *MongoStorage) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = Now()

	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *MongoStorage) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoStorage) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (s *MongoStorage) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	conv.CreatedAt = Now()

	if _, err := s.conversations.InsertOne(ctx, conv); err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *MongoStorage) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

func (s *MongoStorage) ListConversations(ctx context.Context, ownerID string) ([]models.ConversationSummary, error) {
	cur, err := s.conversations.Find(ctx,
		bson.M{"user_id": ownerID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	var convs []models.Conversation
	if err := cur.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}

	list := make([]models.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		count, err := s.messages.CountDocuments(ctx, bson.M{"conversation_id": conv.ID})
		if err != nil {
			return nil, fmt.Errorf("failed to count messages: %w", err)
		}
		list = append(list, models.ConversationSummary{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			MessageCount: int(count),
		})
	}
	return list, nil
}

// DeleteConversation removes messages first so a failure part way through
// never leaves messages without their conversation.
func (s *MongoStorage) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.messages.DeleteMany(ctx, bson.M{"conversation_id": id}); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	res, err := s.conversations.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStorage) SaveMessage(ctx context.Context, msg *models.Message) error {
	n, err := s.conversations.CountDocuments(ctx, bson.M{"_id": msg.ConvID}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("failed to check conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = Now()

	if _, err := s.messages.InsertOne(ctx, msg); err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

func (s *MongoStorage) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	cur, err := s.messages.Find(ctx,
		bson.M{"conversation_id": conversationID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	messages := make([]models.Message, 0)
	if err := cur.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return messages, nil
}

func (s *MongoStorage) Close() error {
	return s.client.Disconnect(context.Background())
}
