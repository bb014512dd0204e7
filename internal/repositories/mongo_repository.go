package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"family-chat/internal/models"
)

const (
	chatsCollection       = "chats"
	membershipsCollection = "chat_members"
	messagesCollection    = "messages"
	usersCollection       = "users"
)

// EnsureMongoIndexes creates the unique indexes the mongo repositories rely on.
func EnsureMongoIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "clientId", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{"clientId": bson.M{"$type": "string"}}),
	})
	if err != nil {
		return fmt.Errorf("messages index: %w", err)
	}
	_, err = db.Collection(membershipsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chatId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("memberships index: %w", err)
	}
	return nil
}

// MongoMembershipRepo implements MembershipRepository on MongoDB.
type MongoMembershipRepo struct {
	members  *mongo.Collection
	messages *mongo.Collection
}

// NewMongoMembershipRepo constructs a MongoMembershipRepo.
func NewMongoMembershipRepo(db *mongo.Database) *MongoMembershipRepo {
	return &MongoMembershipRepo{
		members:  db.Collection(membershipsCollection),
		messages: db.Collection(messagesCollection),
	}
}

func (r *MongoMembershipRepo) IsMember(ctx context.Context, chatID, userID string) (bool, error) {
	n, err := r.members.CountDocuments(ctx, bson.M{"chatId": chatID, "userId": userID}, options.Count().SetLimit(1))
	return n > 0, err
}

func (r *MongoMembershipRepo) GetRole(ctx context.Context, chatID, userID string) (models.Role, error) {
	var m models.Membership
	err := r.members.FindOne(ctx, bson.M{"chatId": chatID, "userId": userID}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotMember
	}
	return m.Role, err
}

// AdvanceReadCursor only moves the cursor forward in message creation order.
func (r *MongoMembershipRepo) AdvanceReadCursor(ctx context.Context, chatID, userID, messageID string, readAt time.Time) error {
	var msg models.Message
	if err := r.messages.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrMessageNotFound
		}
		return err
	}
	filter := bson.M{
		"chatId": chatID,
		"userId": userID,
		"$or": bson.A{
			bson.M{"lastReadMessageCreatedAt": bson.M{"$exists": false}},
			bson.M{"lastReadMessageCreatedAt": bson.M{"$lte": msg.CreatedAt}},
		},
	}
	update := bson.M{"$set": bson.M{
		"lastReadMessageId":        messageID,
		"lastReadAt":               readAt,
		"lastReadMessageCreatedAt": msg.CreatedAt,
	}}
	_, err := r.members.UpdateOne(ctx, filter, update)
	return err
}

func (r *MongoMembershipRepo) ListContacts(ctx context.Context, userID string) ([]string, error) {
	chatIDs, err := r.members.Distinct(ctx, "chatId", bson.M{"userId": userID})
	if err != nil {
		return nil, err
	}
	if len(chatIDs) == 0 {
		return nil, nil
	}
	raw, err := r.members.Distinct(ctx, "userId", bson.M{
		"chatId": bson.M{"$in": chatIDs},
		"userId": bson.M{"$ne": userID},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// MongoMessageRepo implements MessageRepository on MongoDB.
type MongoMessageRepo struct {
	messages *mongo.Collection
	chats    *mongo.Collection
}

// NewMongoMessageRepo constructs a MongoMessageRepo.
func NewMongoMessageRepo(db *mongo.Database) *MongoMessageRepo {
	return &MongoMessageRepo{
		messages: db.Collection(messagesCollection),
		chats:    db.Collection(chatsCollection),
	}
}

func (r *MongoMessageRepo) CreateMessage(ctx context.Context, chatID, senderID, body, clientID string) (models.Message, error) {
	msg := models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  senderID,
		Body:      body,
		ClientID:  nullable(clientID),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Message{}, ErrDuplicateClientID
		}
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	if _, err := r.chats.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{"$set": bson.M{"updatedAt": msg.CreatedAt}}); err != nil {
		return models.Message{}, fmt.Errorf("touch chat: %w", err)
	}
	return msg, nil
}

func (r *MongoMessageRepo) FindByChatAndClientID(ctx context.Context, chatID, clientID string) (models.Message, error) {
	return r.findOne(ctx, bson.M{"chatId": chatID, "clientId": clientID})
}

func (r *MongoMessageRepo) GetMessage(ctx context.Context, messageID string) (models.Message, error) {
	return r.findOne(ctx, bson.M{"_id": messageID})
}

func (r *MongoMessageRepo) findOne(ctx context.Context, filter bson.M) (models.Message, error) {
	var msg models.Message
	err := r.messages.FindOne(ctx, filter).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// MongoUserRepo implements UserRepository on MongoDB.
type MongoUserRepo struct {
	users *mongo.Collection
}

// NewMongoUserRepo constructs a MongoUserRepo.
func NewMongoUserRepo(db *mongo.Database) *MongoUserRepo {
	return &MongoUserRepo{users: db.Collection(usersCollection)}
}

func (r *MongoUserRepo) DisplayName(ctx context.Context, userID string) (string, error) {
	var u models.User
	err := r.users.FindOne(ctx, bson.M{"_id": userID}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrUserNotFound
	}
	return u.DisplayName, err
}

var (
	_ MembershipRepository = (*MongoMembershipRepo)(nil)
	_ MessageRepository    = (*MongoMessageRepo)(nil)
	_ UserRepository       = (*MongoUserRepo)(nil)
	_ MembershipRepository = (*MembershipRepo)(nil)
	_ MessageRepository    = (*MessageRepo)(nil)
	_ UserRepository       = (*UserRepo)(nil)
)
