// Package callflow drives the conversational loop of an outbound reminder
// call: greeting, recording, transcription, intent handling and persistence.
package callflow

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/apolloni/dentcall/internal/events"
	"github.com/apolloni/dentcall/internal/intent"
	"github.com/apolloni/dentcall/internal/llm"
	"github.com/apolloni/dentcall/internal/observability"
	"github.com/apolloni/dentcall/internal/speech"
	"github.com/apolloni/dentcall/internal/store"
)

const (
	greetingText   = "Hello! This is your dental clinic. Are you available to schedule an appointment?"
	negativeText   = "No problem. Thank you for your time. Goodbye."
	positiveText   = "Great! What date and time works best for you?"
	fallbackText   = "Sorry, I didn't catch that. Could you please say the preferred date and time?"
	completedText  = "This call is already completed. Thank you. Goodbye."
	errorText      = "Sorry, there was an error with this call. Goodbye."
	missingSIDText = "Sorry, missing call information."
)

func schedulingText(transcript string) string {
	return fmt.Sprintf("Great, I heard: %s. I will note that and send a confirmation shortly. Goodbye.", transcript)
}

// TurnRequest carries the webhook parameters for one turn of a call.
type TurnRequest struct {
	CallSID      string
	RecordingURL string
	Caller       string
}

// TurnResult tells the HTTP layer what to render back to the carrier.
type TurnResult struct {
	Say      string
	AudioURL string
	EndCall  bool
	Record   bool
}

// Controller orchestrates a single call turn end to end.
type Controller struct {
	store         store.Store
	fetcher       speech.Fetcher
	transcriber   speech.Transcriber
	synthesizer   speech.Synthesizer
	responder     llm.Responder
	hub           *events.Hub
	metrics       *observability.Metrics
	publicBaseURL string
}

type ControllerConfig struct {
	Store         store.Store
	Fetcher       speech.Fetcher
	Transcriber   speech.Transcriber
	Synthesizer   speech.Synthesizer
	Responder     llm.Responder // optional
	Hub           *events.Hub   // optional
	Metrics       *observability.Metrics
	PublicBaseURL string
}

func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Fetcher == nil || cfg.Transcriber == nil || cfg.Synthesizer == nil {
		return nil, fmt.Errorf("fetcher, transcriber and synthesizer are required")
	}
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("metrics is required")
	}
	return &Controller{
		store:         cfg.Store,
		fetcher:       cfg.Fetcher,
		transcriber:   cfg.Transcriber,
		synthesizer:   cfg.Synthesizer,
		responder:     cfg.Responder,
		hub:           cfg.Hub,
		metrics:       cfg.Metrics,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// HandleTurn processes one webhook callback. It never returns an error to
// the caller; failures resolve to an apology prompt so the patient hears
// something sensible instead of a dead line.
func (c *Controller) HandleTurn(ctx context.Context, req TurnRequest) TurnResult {
	if strings.TrimSpace(req.CallSID) == "" {
		return TurnResult{Say: missingSIDText}
	}
	if strings.TrimSpace(req.RecordingURL) == "" {
		return c.greet(ctx, req)
	}
	return c.respond(ctx, req)
}

func (c *Controller) greet(ctx context.Context, req TurnRequest) TurnResult {
	err := c.store.UpsertConversation(ctx, req.CallSID, store.ConversationUpdate{
		Status:      store.StatusOngoing,
		LastMessage: greetingText,
		Caller:      req.Caller,
	})
	if err != nil {
		return c.failTurn(ctx, req, "store", err)
	}
	if err := c.store.AppendTurn(ctx, req.CallSID, store.RoleAgent, greetingText); err != nil {
		return c.failTurn(ctx, req, "store", err)
	}
	c.publish(req.CallSID, store.RoleAgent, greetingText, "")

	return TurnResult{Say: greetingText, Record: true}
}

func (c *Controller) respond(ctx context.Context, req TurnRequest) TurnResult {
	conv, err := c.store.GetConversation(ctx, req.CallSID)
	if err != nil && err != store.ErrNotFound {
		return c.failTurn(ctx, req, "store", err)
	}
	if conv != nil {
		if conv.Status == store.StatusCompleted {
			return TurnResult{Say: completedText, EndCall: true}
		}
		// The carrier retries webhooks; replay the last reply instead of
		// processing the same recording twice.
		if conv.LastRecordingURL == req.RecordingURL {
			return c.replay(conv)
		}
	}

	audioPath, err := c.fetcher.Fetch(ctx, req.RecordingURL, uuid.New().String()+".wav")
	if err != nil {
		return c.failTurn(ctx, req, "fetch", err)
	}

	start := time.Now()
	transcript, err := c.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return c.failTurn(ctx, req, "transcribe", err)
	}
	c.metrics.ObserveTranscriptionLatency(time.Since(start))
	transcript = strings.TrimSpace(transcript)

	if err := c.store.AppendTurn(ctx, req.CallSID, store.RolePatient, transcript); err != nil {
		return c.failTurn(ctx, req, "store", err)
	}

	it := intent.Classify(transcript)
	c.metrics.WebhookTurns.WithLabelValues(string(it)).Inc()
	c.publish(req.CallSID, store.RolePatient, transcript, string(it))

	reply, endCall := c.replyFor(it, transcript)
	if !endCall {
		reply = c.refine(ctx, transcript, reply)
	}

	status := store.StatusOngoing
	if endCall {
		status = store.StatusCompleted
	}
	err = c.store.UpsertConversation(ctx, req.CallSID, store.ConversationUpdate{
		Status:       status,
		LastIntent:   it,
		LastMessage:  reply,
		Caller:       req.Caller,
		RecordingURL: req.RecordingURL,
	})
	if err != nil {
		return c.failTurn(ctx, req, "store", err)
	}
	if err := c.store.AppendTurn(ctx, req.CallSID, store.RoleAgent, reply); err != nil {
		return c.failTurn(ctx, req, "store", err)
	}
	c.publish(req.CallSID, store.RoleAgent, reply, string(it))

	audioURL := c.synthesize(ctx, req.CallSID, reply)

	if err := c.store.InsertVoiceInteraction(ctx, store.VoiceInteraction{
		CallSID:    req.CallSID,
		Transcript: transcript,
		AIResponse: reply,
		TTSPath:    audioURL,
		Timestamp:  time.Now().UTC(),
	}); err != nil {
		log.Printf("callflow: record voice interaction for %s: %v", req.CallSID, err)
	}

	return TurnResult{Say: reply, AudioURL: audioURL, EndCall: endCall, Record: !endCall}
}

func (c *Controller) replyFor(it intent.Intent, transcript string) (string, bool) {
	switch it {
	case intent.Negative:
		return negativeText, true
	case intent.Scheduling:
		return schedulingText(transcript), true
	case intent.Positive:
		return positiveText, false
	default:
		return fallbackText, false
	}
}

// refine asks the language model for a better phrasing. The rule-based
// candidate always survives a failed or empty generation.
func (c *Controller) refine(ctx context.Context, transcript, candidate string) string {
	if c.responder == nil {
		return candidate
	}
	generated, err := c.responder.Reply(ctx, transcript)
	if err != nil {
		c.metrics.ProviderErrors.WithLabelValues("llm", "generate").Inc()
		log.Printf("callflow: llm generation failed, keeping canned reply: %v", err)
		return candidate
	}
	if strings.TrimSpace(generated) == "" {
		return candidate
	}
	return generated
}

func (c *Controller) synthesize(ctx context.Context, callSID, text string) string {
	path, err := c.synthesizer.Synthesize(ctx, text, uuid.New().String()+".wav")
	if err != nil {
		c.metrics.ProviderErrors.WithLabelValues("tts", "synthesize").Inc()
		log.Printf("callflow: synthesis failed for %s: %v", callSID, err)
		return ""
	}
	if path == "" {
		return ""
	}
	return c.publicBaseURL + "/audio/" + filepath.Base(path)
}

func (c *Controller) replay(conv *store.Conversation) TurnResult {
	endCall := conv.LastIntent == intent.Negative || conv.LastIntent == intent.Scheduling
	say := conv.LastMessage
	if say == "" {
		say = fallbackText
	}
	return TurnResult{Say: say, EndCall: endCall, Record: !endCall}
}

func (c *Controller) failTurn(ctx context.Context, req TurnRequest, stage string, cause error) TurnResult {
	log.Printf("callflow: %s failed for %s: %v", stage, req.CallSID, cause)
	c.metrics.ProviderErrors.WithLabelValues(stage, "turn").Inc()
	if err := c.store.InsertCallError(ctx, store.CallError{
		PhoneNumber: req.Caller,
		Error:       fmt.Sprintf("%s: %v", stage, cause),
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		log.Printf("callflow: record call error for %s: %v", req.CallSID, err)
	}
	return TurnResult{Say: errorText, EndCall: true}
}

// HandleDigits acknowledges a keypad response and marks the call interacted.
func (c *Controller) HandleDigits(ctx context.Context, callSID, digits string) TurnResult {
	if strings.TrimSpace(digits) == "" {
		return TurnResult{Say: "We did not receive any input. Goodbye.", EndCall: true}
	}
	if strings.TrimSpace(callSID) != "" {
		if err := c.store.MarkCallInteracted(ctx, callSID, digits); err != nil && err != store.ErrNotFound {
			log.Printf("callflow: mark call %s interacted: %v", callSID, err)
		}
	}
	say := fmt.Sprintf("You pressed %s. Thank you, your response has been recorded. Goodbye.", digits)
	return TurnResult{Say: say, EndCall: true}
}

func (c *Controller) publish(callSID, role, text, it string) {
	if c.hub == nil {
		return
	}
	c.hub.Publish(events.TurnEvent{
		CallSID:   callSID,
		Role:      role,
		Text:      text,
		Intent:    it,
		Timestamp: time.Now().UTC(),
	})
}
