// Package store holds the document-store contract for the voice agent.
// All cross-invocation state lives here; webhook deliveries for one call
// cannot be assumed to hit the same process.
package store

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("not found")

// Store persists conversations, call logs and patient data. Individual
// operations are atomic; concurrent turns racing for one call SID resolve
// as last write wins.
type Store interface {
	UpsertConversation(ctx context.Context, callSID string, update ConversationUpdate) error
	AppendTurn(ctx context.Context, callSID, role, text string) error
	GetConversation(ctx context.Context, callSID string) (*Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)

	InsertCallLog(ctx context.Context, log CallLog) error
	MarkCallInteracted(ctx context.Context, callSID, userInput string) error
	ListCallLogs(ctx context.Context) ([]CallLog, error)
	InsertCallError(ctx context.Context, callError CallError) error

	InsertVoiceInteraction(ctx context.Context, interaction VoiceInteraction) error
	ListVoiceInteractions(ctx context.Context) ([]VoiceInteraction, error)

	ListPatients(ctx context.Context) ([]Patient, error)
	PatientsByPincode(ctx context.Context, pincode string) ([]Patient, error)

	Kind() string
	Close(ctx context.Context) error
}

// New creates a mongo-backed store when configured, otherwise in-memory.
func New(ctx context.Context, mongoURI, database string) (Store, error) {
	if strings.TrimSpace(mongoURI) == "" {
		return NewInMemoryStore(), nil
	}
	return NewMongoStore(ctx, mongoURI, database)
}
