package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/apolloni/dentcall/internal/callflow"
	"github.com/apolloni/dentcall/internal/config"
	"github.com/apolloni/dentcall/internal/events"
	"github.com/apolloni/dentcall/internal/observability"
	"github.com/apolloni/dentcall/internal/store"
	"github.com/apolloni/dentcall/internal/telephony"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("httpapi_test_%d", metricsSeq.Add(1)))
}

type stubFetcher struct{}

func (stubFetcher) Fetch(_ context.Context, _, filename string) (string, error) {
	return "/tmp/audio/" + filename, nil
}

type stubTranscriber struct{ text string }

func (s stubTranscriber) Name() string { return "stub" }

func (s stubTranscriber) Transcribe(context.Context, string) (string, error) {
	return s.text, nil
}

type stubSynthesizer struct{}

func (stubSynthesizer) Name() string { return "stub" }

func (stubSynthesizer) Synthesize(context.Context, string, string) (string, error) {
	return "", nil
}

type stubDialer struct {
	calls []string
	err   error
}

func (s *stubDialer) MakeCall(_ context.Context, to, _ string) (*telephony.Call, error) {
	s.calls = append(s.calls, to)
	if s.err != nil {
		return nil, s.err
	}
	return &telephony.Call{SID: "CA_" + to, To: to, Status: "queued"}, nil
}

type serverOptions struct {
	transcript string
	dialer     *stubDialer
	hub        *events.Hub
}

func newTestServer(t *testing.T, st *store.InMemoryStore, opts serverOptions) *Server {
	t.Helper()

	cfg := config.Config{
		PublicBaseURL:    "http://localhost:8000",
		AudioDir:         t.TempDir(),
		RecordMaxSeconds: 30,
		AllowAnyOrigin:   true,
	}
	metrics := newTestMetrics()

	if opts.transcript == "" {
		opts.transcript = "hello"
	}
	controller, err := callflow.NewController(callflow.ControllerConfig{
		Store:         st,
		Fetcher:       stubFetcher{},
		Transcriber:   stubTranscriber{text: opts.transcript},
		Synthesizer:   stubSynthesizer{},
		Hub:           opts.hub,
		Metrics:       metrics,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		t.Fatalf("NewController() error = %v", err)
	}

	var dispatcher *callflow.Dispatcher
	if opts.dialer != nil {
		dispatcher, err = callflow.NewDispatcher(opts.dialer, st, metrics, cfg.PublicBaseURL+"/api/twilio-voice")
		if err != nil {
			t.Fatalf("NewDispatcher() error = %v", err)
		}
	}

	return New(cfg, controller, dispatcher, st, opts.hub, metrics)
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func postJSON(t *testing.T, handler http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestVoiceWebhookGreeting(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(t, st, serverOptions{})

	rec := postForm(t, srv.Router(), "/api/twilio-voice", url.Values{
		"CallSid": {"CA1"},
		"To":      {"+15550100001"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Fatalf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Say") || !strings.Contains(body, "dental clinic") {
		t.Fatalf("body = %q, want greeting", body)
	}
	if !strings.Contains(body, `<Record action="http://localhost:8000/api/twilio-voice"`) {
		t.Fatalf("body = %q, want record verb", body)
	}
	if strings.Contains(body, "<Hangup") {
		t.Fatalf("body = %q, greeting must not hang up", body)
	}
}

func TestVoiceWebhookNegativeHangsUp(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(t, st, serverOptions{transcript: "no thanks"})
	router := srv.Router()

	postForm(t, router, "/api/twilio-voice", url.Values{"CallSid": {"CA2"}})
	rec := postForm(t, router, "/api/twilio-voice", url.Values{
		"CallSid":      {"CA2"},
		"RecordingUrl": {"https://api.twilio.com/rec/RE1"},
	})

	body := rec.Body.String()
	if !strings.Contains(body, "No problem") {
		t.Fatalf("body = %q", body)
	}
	if !strings.Contains(body, "<Hangup") {
		t.Fatalf("body = %q, want hangup", body)
	}
	if strings.Contains(body, "<Record") {
		t.Fatalf("body = %q, terminal reply must not record", body)
	}
}

func TestVoiceWebhookMissingCallSid(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(t, st, serverOptions{})

	rec := postForm(t, srv.Router(), "/api/twilio-voice", url.Values{})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, carrier webhooks always get 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing call information") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestVoiceDigits(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(t, st, serverOptions{})

	rec := postForm(t, srv.Router(), "/api/twilio-voice-response", url.Values{
		"CallSid": {"CA3"},
		"Digits":  {"1"},
	})

	body := rec.Body.String()
	if !strings.Contains(body, "You pressed 1") {
		t.Fatalf("body = %q", body)
	}
	if !strings.Contains(body, "<Hangup") {
		t.Fatalf("body = %q, want hangup", body)
	}
}

func TestCallPatientsWithoutDispatcher(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(t, st, serverOptions{})

	rec := postJSON(t, srv.Router(), "/api/call-patients", `{"phone_numbers":["+15550100001"]}`)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestCallPatientsExplicitNumbers(t *testing.T) {
	st := store.NewInMemoryStore()
	dialer := &stubDialer{}
	srv := newTestServer(t, st, serverOptions{dialer: dialer})

	rec := postJSON(t, srv.Router(), "/api/call-patients", `{"phone_numbers":["+15550100001","+15550100002"]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp callPatientsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.CallsInitiated != 2 {
		t.Fatalf("response = %+v", resp)
	}
	if len(dialer.calls) != 2 {
		t.Fatalf("dialed = %v", dialer.calls)
	}
}

func TestCallPatientsByPincode(t *testing.T) {
	st := store.NewInMemoryStore()
	st.SeedPatients([]store.Patient{
		{Name: "Ada", PhoneNumber: "+15550100010", Pincode: "560001"},
		{Name: "Bo", PhoneNumber: "+15550100011", Pincode: "560002"},
	})
	dialer := &stubDialer{}
	srv := newTestServer(t, st, serverOptions{dialer: dialer})

	rec := postJSON(t, srv.Router(), "/api/call-patients", `{"pincode":"560001"}`)

	var resp callPatientsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.CallsInitiated != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if len(dialer.calls) != 1 || dialer.calls[0] != "+15550100010" {
		t.Fatalf("dialed = %v", dialer.calls)
	}
}

func TestCallPatientsNoNumbers(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(t, st, serverOptions{dialer: &stubDialer{}})

	rec := postJSON(t, srv.Router(), "/api/call-patients", `{}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp callPatientsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Fatalf("response = %+v, want success=false", resp)
	}
	if resp.Message != "No phone numbers provided or found" {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestTriggerCall(t *testing.T) {
	st := store.NewInMemoryStore()
	st.SeedPatients([]store.Patient{
		{Name: "Ada", PhoneNumber: "+15550100010", Pincode: "560001"},
	})
	srv := newTestServer(t, st, serverOptions{})

	rec := postJSON(t, srv.Router(), "/api/trigger-call", `{"pincode":"560001"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Patients   []store.Patient `json:"patients"`
		TotalCount int             `json:"total_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalCount != 1 || len(resp.Patients) != 1 {
		t.Fatalf("response = %+v", resp)
	}

	rec = postJSON(t, srv.Router(), "/api/trigger-call", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 without pincode", rec.Code)
	}
}

func TestListEndpoints(t *testing.T) {
	st := store.NewInMemoryStore()
	st.SeedPatients([]store.Patient{{Name: "Ada", PhoneNumber: "+15550100010", Pincode: "560001"}})
	srv := newTestServer(t, st, serverOptions{})
	router := srv.Router()

	for _, path := range []string{"/api/patients", "/api/call-logs", "/api/voice-interactions", "/api/conversations", "/health"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("GET %s status = %d", path, rec.Code)
		}
		var out map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("GET %s: decode response: %v", path, err)
		}
	}
}

func TestAudioServing(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(t, st, serverOptions{})
	router := srv.Router()

	if err := os.WriteFile(filepath.Join(srv.cfg.AudioDir, "reply.wav"), []byte("RIFFaudio"), 0o644); err != nil {
		t.Fatalf("write audio fixture: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/audio/reply.wav", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "RIFFaudio" {
		t.Fatalf("body = %q", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/audio/missing.wav", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestConversationWSStreamsTurns(t *testing.T) {
	st := store.NewInMemoryStore()
	hub := events.NewHub()
	srv := newTestServer(t, st, serverOptions{hub: hub})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/conversations/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(events.TurnEvent{CallSID: "CA9", Role: "patient", Text: "yes"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.TurnEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.CallSID != "CA9" || ev.Text != "yes" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestConversationWSWithoutHub(t *testing.T) {
	st := store.NewInMemoryStore()
	srv := newTestServer(t, st, serverOptions{})

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/ws", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}
