package telephony

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	client, err := NewClient(ClientConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		FromNumber: "+15550100000",
		BaseURL:    ts.URL,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	client.backoff = func(int) time.Duration { return 0 }
	return client, ts
}

func TestMakeCallSendsFormAndAuth(t *testing.T) {
	var gotPath, gotTo, gotFrom, gotURL string
	var gotUser, gotPass string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		gotTo = r.PostFormValue("To")
		gotFrom = r.PostFormValue("From")
		gotURL = r.PostFormValue("Url")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Call{SID: "CA42", To: gotTo, From: gotFrom, Status: "queued"})
	}))

	call, err := client.MakeCall(context.Background(), "+15550100001", "http://localhost:8000/api/twilio-voice")
	if err != nil {
		t.Fatalf("MakeCall() error = %v", err)
	}
	if call.SID != "CA42" {
		t.Fatalf("call SID = %q, want CA42", call.SID)
	}
	if gotPath != "/Accounts/AC123/Calls.json" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotUser != "AC123" || gotPass != "token" {
		t.Fatalf("basic auth = %q/%q", gotUser, gotPass)
	}
	if gotTo != "+15550100001" || gotFrom != "+15550100000" {
		t.Fatalf("To/From = %q/%q", gotTo, gotFrom)
	}
	if gotURL != "http://localhost:8000/api/twilio-voice" {
		t.Fatalf("Url = %q", gotURL)
	}
}

func TestMakeCallRetriesTransientStatus(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(Call{SID: "CA7", Status: "queued"})
	}))

	call, err := client.MakeCall(context.Background(), "+15550100001", "http://example.com/voice")
	if err != nil {
		t.Fatalf("MakeCall() error = %v", err)
	}
	if call.SID != "CA7" {
		t.Fatalf("call SID = %q, want CA7", call.SID)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestMakeCallStopsOnAPIError(t *testing.T) {
	attempts := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(APIError{Code: 21211, Message: "invalid phone number", Status: 400})
	}))

	_, err := client.MakeCall(context.Background(), "not-a-number", "http://example.com/voice")
	if err == nil {
		t.Fatalf("MakeCall() expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Code != 21211 {
		t.Fatalf("error code = %d, want 21211", apiErr.Code)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on 400)", attempts)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	cases := []ClientConfig{
		{AuthToken: "t", FromNumber: "+1"},
		{AccountSID: "AC", FromNumber: "+1"},
		{AccountSID: "AC", AuthToken: "t"},
	}
	for _, cfg := range cases {
		if _, err := NewClient(cfg); err == nil {
			t.Fatalf("NewClient(%+v) expected error", cfg)
		}
	}
}
