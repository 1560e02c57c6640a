package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu                sync.RWMutex
	conversations     map[string]*Conversation
	callLogs          []CallLog
	callErrors        []CallError
	voiceInteractions []VoiceInteraction
	patients          []Patient
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*Conversation)}
}

func (s *InMemoryStore) Kind() string { return "memory" }

func (s *InMemoryStore) Close(_ context.Context) error { return nil }

// SeedPatients loads patient documents; the patient collection is read-only
// from the agent's perspective.
func (s *InMemoryStore) SeedPatients(patients []Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patients = append(s.patients, patients...)
}

func (s *InMemoryStore) UpsertConversation(_ context.Context, callSID string, update ConversationUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	conv := s.conversations[callSID]
	if conv == nil {
		conv = &Conversation{ID: primitive.NewObjectID(), CallSID: callSID, CreatedAt: now}
		s.conversations[callSID] = conv
	}
	conv.Status = update.Status
	conv.LastMessage = update.LastMessage
	conv.UpdatedAt = now
	if update.LastIntent != "" {
		conv.LastIntent = update.LastIntent
	}
	if update.Caller != "" {
		conv.Caller = update.Caller
	}
	if update.RecordingURL != "" {
		conv.LastRecordingURL = update.RecordingURL
	}
	return nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, callSID, role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	conv := s.conversations[callSID]
	if conv == nil {
		conv = &Conversation{ID: primitive.NewObjectID(), CallSID: callSID, CreatedAt: now}
		s.conversations[callSID] = conv
	}
	conv.Turns = append(conv.Turns, Turn{Role: role, Text: text, Timestamp: now})
	return nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, callSID string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[callSID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conv
	c.Turns = append([]Turn(nil), conv.Turns...)
	return &c, nil
}

func (s *InMemoryStore) ListConversations(_ context.Context) ([]Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		c := *conv
		c.Turns = append([]Turn(nil), conv.Turns...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) InsertCallLog(_ context.Context, log CallLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log.ID.IsZero() {
		log.ID = primitive.NewObjectID()
	}
	if log.Timestamp.IsZero() {
		log.Timestamp = time.Now().UTC()
	}
	s.callLogs = append(s.callLogs, log)
	return nil
}

func (s *InMemoryStore) MarkCallInteracted(_ context.Context, callSID, userInput string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.callLogs {
		if s.callLogs[i].CallSID == callSID {
			s.callLogs[i].Status = "user_interacted"
			s.callLogs[i].UserInput = userInput
			s.callLogs[i].Timestamp = time.Now().UTC()
		}
	}
	return nil
}

func (s *InMemoryStore) ListCallLogs(_ context.Context) ([]CallLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]CallLog(nil), s.callLogs...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *InMemoryStore) InsertCallError(_ context.Context, callError CallError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if callError.ID.IsZero() {
		callError.ID = primitive.NewObjectID()
	}
	if callError.Timestamp.IsZero() {
		callError.Timestamp = time.Now().UTC()
	}
	s.callErrors = append(s.callErrors, callError)
	return nil
}

// ListCallErrors is used by tests and local inspection; the HTTP surface
// only exposes logs and conversations.
func (s *InMemoryStore) ListCallErrors() []CallError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]CallError(nil), s.callErrors...)
}

func (s *InMemoryStore) InsertVoiceInteraction(_ context.Context, interaction VoiceInteraction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if interaction.ID.IsZero() {
		interaction.ID = primitive.NewObjectID()
	}
	if interaction.Timestamp.IsZero() {
		interaction.Timestamp = time.Now().UTC()
	}
	s.voiceInteractions = append(s.voiceInteractions, interaction)
	return nil
}

func (s *InMemoryStore) ListVoiceInteractions(_ context.Context) ([]VoiceInteraction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]VoiceInteraction(nil), s.voiceInteractions...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *InMemoryStore) ListPatients(_ context.Context) ([]Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Patient(nil), s.patients...), nil
}

func (s *InMemoryStore) PatientsByPincode(_ context.Context, pincode string) ([]Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Patient
	for _, p := range s.patients {
		if p.Pincode == pincode {
			out = append(out, p)
		}
	}
	return out, nil
}
