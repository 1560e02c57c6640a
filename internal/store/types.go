package store

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/apolloni/dentcall/internal/intent"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
)

// Turn roles within a conversation transcript.
const (
	RoleAgent   = "agent"
	RolePatient = "patient"
)

// Turn is one utterance in a conversation, in transcript order.
type Turn struct {
	Role      string    `bson:"role" json:"role"`
	Text      string    `bson:"text" json:"text"`
	Timestamp time.Time `bson:"ts" json:"ts"`
}

// Conversation is the per-call document keyed by the telephony call SID.
// Turns are embedded and append-only; insertion order is transcript order.
type Conversation struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CallSID          string             `bson:"call_sid" json:"call_sid"`
	Status           Status             `bson:"status" json:"status"`
	LastIntent       intent.Intent      `bson:"last_intent,omitempty" json:"last_intent,omitempty"`
	LastMessage      string             `bson:"last_message" json:"last_message"`
	Caller           string             `bson:"caller,omitempty" json:"caller,omitempty"`
	LastRecordingURL string             `bson:"last_recording_url,omitempty" json:"last_recording_url,omitempty"`
	Turns            []Turn             `bson:"turns" json:"turns"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

// ConversationUpdate carries the fields written on a turn. Empty string
// fields are left untouched so the greeting and responding paths can share
// one upsert.
type ConversationUpdate struct {
	Status       Status
	LastIntent   intent.Intent
	LastMessage  string
	Caller       string
	RecordingURL string
}

// CallLog records one outbound call attempt.
type CallLog struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CallSID     string             `bson:"call_sid" json:"call_sid"`
	PhoneNumber string             `bson:"phone_number" json:"phone_number"`
	Status      string             `bson:"status" json:"status"`
	Message     string             `bson:"message" json:"message"`
	UserInput   string             `bson:"user_input,omitempty" json:"user_input,omitempty"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}

// CallError records one failed outbound call attempt for later inspection.
type CallError struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	PhoneNumber string             `bson:"phone_number" json:"phone_number"`
	Error       string             `bson:"error" json:"error"`
	Timestamp   time.Time          `bson:"timestamp" json:"timestamp"`
}

// Patient is read-only reminder-target data sourced from the clinic system.
type Patient struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name            string             `bson:"name" json:"name"`
	PhoneNumber     string             `bson:"phone_number" json:"phone_number"`
	Pincode         string             `bson:"pincode" json:"pincode"`
	Email           string             `bson:"email,omitempty" json:"email,omitempty"`
	LastVisit       string             `bson:"last_visit,omitempty" json:"last_visit,omitempty"`
	NextAppointment string             `bson:"next_appointment,omitempty" json:"next_appointment,omitempty"`
}

// VoiceInteraction is the per-turn record of one processed recording.
type VoiceInteraction struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	CallSID    string             `bson:"call_sid" json:"call_sid"`
	Transcript string             `bson:"transcript" json:"transcript"`
	AIResponse string             `bson:"ai_response" json:"ai_response"`
	TTSPath    string             `bson:"tts_path,omitempty" json:"tts_path,omitempty"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
}
