package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore persists all collections in a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) Kind() string { return "mongo" }

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) UpsertConversation(ctx context.Context, callSID string, update ConversationUpdate) error {
	now := time.Now().UTC()
	set := bson.M{
		"status":       update.Status,
		"last_message": update.LastMessage,
		"updated_at":   now,
	}
	if update.LastIntent != "" {
		set["last_intent"] = update.LastIntent
	}
	if update.Caller != "" {
		set["caller"] = update.Caller
	}
	if update.RecordingURL != "" {
		set["last_recording_url"] = update.RecordingURL
	}

	_, err := s.db.Collection("conversations").UpdateOne(ctx,
		bson.M{"call_sid": callSID},
		bson.M{
			"$set":         set,
			"$setOnInsert": bson.M{"call_sid": callSID, "created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) AppendTurn(ctx context.Context, callSID, role, text string) error {
	_, err := s.db.Collection("conversations").UpdateOne(ctx,
		bson.M{"call_sid": callSID},
		bson.M{
			"$push":        bson.M{"turns": Turn{Role: role, Text: text, Timestamp: time.Now().UTC()}},
			"$setOnInsert": bson.M{"call_sid": callSID, "created_at": time.Now().UTC()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

func (s *MongoStore) GetConversation(ctx context.Context, callSID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.Collection("conversations").FindOne(ctx, bson.M{"call_sid": callSID}).Decode(&conv)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return &conv, nil
}

func (s *MongoStore) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	err := s.findAll(ctx, "conversations", "created_at", &out)
	return out, err
}

func (s *MongoStore) InsertCallLog(ctx context.Context, log CallLog) error {
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	if _, err := s.db.Collection("call_logs").InsertOne(ctx, log); err != nil {
		return fmt.Errorf("insert call log: %w", err)
	}
	return nil
}

func (s *MongoStore) MarkCallInteracted(ctx context.Context, callSID, userInput string) error {
	_, err := s.db.Collection("call_logs").UpdateOne(ctx,
		bson.M{"call_sid": callSID},
		bson.M{"$set": bson.M{
			"status":     "user_interacted",
			"user_input": userInput,
			"timestamp":  time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("mark call interacted: %w", err)
	}
	return nil
}

func (s *MongoStore) ListCallLogs(ctx context.Context) ([]CallLog, error) {
	var out []CallLog
	err := s.findAll(ctx, "call_logs", "timestamp", &out)
	return out, err
}

func (s *MongoStore) InsertCallError(ctx context.Context, callError CallError) error {
	if callError.Timestamp.IsZero() {
		callError.Timestamp = time.Now().UTC()
	}
	if _, err := s.db.Collection("call_errors").InsertOne(ctx, callError); err != nil {
		return fmt.Errorf("insert call error: %w", err)
	}
	return nil
}

func (s *MongoStore) InsertVoiceInteraction(ctx context.Context, interaction VoiceInteraction) error {
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = time.Now().UTC()
	}
	if _, err := s.db.Collection("voice_interactions").InsertOne(ctx, interaction); err != nil {
		return fmt.Errorf("insert voice interaction: %w", err)
	}
	return nil
}

func (s *MongoStore) ListVoiceInteractions(ctx context.Context) ([]VoiceInteraction, error) {
	var out []VoiceInteraction
	err := s.findAll(ctx, "voice_interactions", "timestamp", &out)
	return out, err
}

func (s *MongoStore) ListPatients(ctx context.Context) ([]Patient, error) {
	cursor, err := s.db.Collection("patients").Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	var out []Patient
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	return out, nil
}

func (s *MongoStore) PatientsByPincode(ctx context.Context, pincode string) ([]Patient, error) {
	cursor, err := s.db.Collection("patients").Find(ctx, bson.M{"pincode": pincode})
	if err != nil {
		return nil, fmt.Errorf("patients by pincode: %w", err)
	}
	var out []Patient
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode patients: %w", err)
	}
	return out, nil
}

// findAll lists a collection sorted newest first by the given field.
func (s *MongoStore) findAll(ctx context.Context, collection, sortField string, out any) error {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{},
		options.Find().SetSort(bson.D{{Key: sortField, Value: -1}}))
	if err != nil {
		return fmt.Errorf("list %s: %w", collection, err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", collection, err)
	}
	return nil
}
