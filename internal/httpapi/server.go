package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/apolloni/dentcall/internal/callflow"
	"github.com/apolloni/dentcall/internal/config"
	"github.com/apolloni/dentcall/internal/events"
	"github.com/apolloni/dentcall/internal/observability"
	"github.com/apolloni/dentcall/internal/store"
	"github.com/apolloni/dentcall/internal/telephony"
)

type Server struct {
	cfg        config.Config
	controller *callflow.Controller
	dispatcher *callflow.Dispatcher
	store      store.Store
	hub        *events.Hub
	metrics    *observability.Metrics
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, controller *callflow.Controller, dispatcher *callflow.Dispatcher, st store.Store, hub *events.Hub, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:        cfg,
		controller: controller,
		dispatcher: dispatcher,
		store:      st,
		hub:        hub,
		metrics:    metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/twilio-voice", s.handleVoiceWebhook)
	r.Post("/api/twilio-voice-response", s.handleVoiceDigits)

	r.Post("/api/call-patients", s.handleCallPatients)
	r.Post("/api/trigger-call", s.handleTriggerCall)

	r.Get("/api/patients", s.handleListPatients)
	r.Get("/api/call-logs", s.handleListCallLogs)
	r.Get("/api/voice-interactions", s.handleListVoiceInteractions)
	r.Get("/api/conversations", s.handleListConversations)
	r.Get("/api/conversations/ws", s.handleConversationWS)

	r.Get("/audio/{filename}", s.handleAudio)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"store":     s.store.Kind(),
		"telephony": s.dispatcher != nil,
	})
}

// handleVoiceWebhook answers the carrier's voice callbacks. The first hit
// has no RecordingUrl and gets the greeting; later hits carry the recorded
// patient reply.
func (s *Server) handleVoiceWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondTwiML(w, telephony.VoiceResponse{
			Say:    telephony.NewSay("Sorry, there was an error with this call. Goodbye."),
			Hangup: &telephony.Hangup{},
		})
		return
	}

	res := s.controller.HandleTurn(r.Context(), callflow.TurnRequest{
		CallSID:      r.PostFormValue("CallSid"),
		RecordingURL: r.PostFormValue("RecordingUrl"),
		Caller:       r.PostFormValue("To"),
	})
	respondTwiML(w, s.twimlFor(res))
}

func (s *Server) handleVoiceDigits(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondTwiML(w, telephony.VoiceResponse{
			Say:    telephony.NewSay("Sorry, there was an error with this call. Goodbye."),
			Hangup: &telephony.Hangup{},
		})
		return
	}

	res := s.controller.HandleDigits(r.Context(), r.PostFormValue("CallSid"), r.PostFormValue("Digits"))
	respondTwiML(w, s.twimlFor(res))
}

func (s *Server) twimlFor(res callflow.TurnResult) telephony.VoiceResponse {
	var resp telephony.VoiceResponse
	if res.AudioURL != "" {
		resp.Play = &telephony.Play{URL: res.AudioURL}
	} else if res.Say != "" {
		resp.Say = telephony.NewSay(res.Say)
	}
	if res.Record {
		resp.Record = telephony.NewRecord(s.cfg.PublicBaseURL+"/api/twilio-voice", s.cfg.RecordMaxSeconds)
	}
	if res.EndCall {
		resp.Hangup = &telephony.Hangup{}
	}
	return resp
}

type callPatientsRequest struct {
	PhoneNumbers []string `json:"phone_numbers"`
	Pincode      string   `json:"pincode"`
}

type callPatientsResponse struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	CallsInitiated int      `json:"calls_initiated"`
	FailedNumbers  []string `json:"failed_numbers,omitempty"`
}

func (s *Server) handleCallPatients(w http.ResponseWriter, r *http.Request) {
	if s.dispatcher == nil {
		respondError(w, http.StatusInternalServerError, "telephony_unconfigured", "outbound calling is not configured")
		return
	}

	var req callPatientsRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	numbers, err := s.dispatcher.ResolveNumbers(r.Context(), req.PhoneNumbers, req.Pincode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "patient_lookup_failed", err.Error())
		return
	}
	if len(numbers) == 0 {
		respondJSON(w, http.StatusOK, callPatientsResponse{
			Success: false,
			Message: "No phone numbers provided or found",
		})
		return
	}

	result := s.dispatcher.DispatchCalls(r.Context(), numbers)
	respondJSON(w, http.StatusOK, callPatientsResponse{
		Success:        result.Initiated > 0,
		Message:        fmt.Sprintf("Initiated %d calls", result.Initiated),
		CallsInitiated: result.Initiated,
		FailedNumbers:  result.FailedNumbers,
	})
}

type triggerCallRequest struct {
	Pincode string `json:"pincode"`
}

func (s *Server) handleTriggerCall(w http.ResponseWriter, r *http.Request) {
	var req triggerCallRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Pincode) == "" {
		respondError(w, http.StatusBadRequest, "missing_pincode", "pincode is required")
		return
	}

	patients, err := s.store.PatientsByPincode(r.Context(), req.Pincode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "patient_lookup_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"patients":    patients,
		"total_count": len(patients),
	})
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := s.store.ListPatients(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"patients": patients, "total_count": len(patients)})
}

func (s *Server) handleListCallLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.store.ListCallLogs(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"call_logs": logs, "total_count": len(logs)})
}

func (s *Server) handleListVoiceInteractions(w http.ResponseWriter, r *http.Request) {
	interactions, err := s.store.ListVoiceInteractions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"voice_interactions": interactions, "total_count": len(interactions)})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.store.ListConversations(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": conversations, "total_count": len(conversations)})
}

// handleConversationWS streams turn events to dashboard clients as calls
// progress.
func (s *Server) handleConversationWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "live feed not configured")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	eventCh, cancel := s.hub.Subscribe()
	defer cancel()

	// Drain client frames so close and pong handling keep working.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		conn.SetReadLimit(1 << 16)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-readDone:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if filename != filepath.Base(filename) || strings.Contains(filename, "..") {
		respondError(w, http.StatusBadRequest, "invalid_filename", "invalid audio filename")
		return
	}

	path := filepath.Join(s.cfg.AudioDir, filename)
	if _, err := os.Stat(path); err != nil {
		respondError(w, http.StatusNotFound, "audio_not_found", "audio file not found")
		return
	}
	http.ServeFile(w, r, path)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondTwiML(w http.ResponseWriter, resp telephony.VoiceResponse) {
	body, err := resp.Render()
	if err != nil {
		log.Printf("httpapi: render twiml: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write([]byte(body))
}
