package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestAzureSynthesizeWritesFile(t *testing.T) {
	var gotKey, gotContentType, gotFormat, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		gotContentType = r.Header.Get("Content-Type")
		gotFormat = r.Header.Get("X-Microsoft-OutputFormat")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte("RIFFsynthesized"))
	}))
	t.Cleanup(ts.Close)

	synth, err := NewAzureSynthesizer(AzureConfig{
		Key:      "key",
		Region:   "eastus",
		AudioDir: t.TempDir(),
		Endpoint: ts.URL,
	})
	if err != nil {
		t.Fatalf("NewAzureSynthesizer() error = %v", err)
	}

	path, err := synth.Synthesize(context.Background(), "What time works for you?", "resp.wav")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read synthesized file: %v", err)
	}
	if string(data) != "RIFFsynthesized" {
		t.Fatalf("file content = %q", data)
	}
	if gotKey != "key" {
		t.Fatalf("subscription key header = %q", gotKey)
	}
	if gotContentType != "application/ssml+xml" {
		t.Fatalf("content type = %q", gotContentType)
	}
	if gotFormat != "riff-16khz-16bit-mono-pcm" {
		t.Fatalf("output format = %q", gotFormat)
	}
	if !strings.Contains(gotBody, "en-US-JennyNeural") {
		t.Fatalf("ssml body = %q, want default voice", gotBody)
	}
	if !strings.Contains(gotBody, "What time works for you?") {
		t.Fatalf("ssml body = %q, want text", gotBody)
	}
}

func TestAzureSynthesizeEscapesSSML(t *testing.T) {
	var gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = w.Write([]byte("audio"))
	}))
	t.Cleanup(ts.Close)

	synth, err := NewAzureSynthesizer(AzureConfig{Key: "k", Region: "eastus", AudioDir: t.TempDir(), Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("NewAzureSynthesizer() error = %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), `Great, I heard: <3pm & "tomorrow">`, "r.wav"); err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if strings.Contains(gotBody, "<3pm") {
		t.Fatalf("ssml body not escaped: %q", gotBody)
	}
}

func TestAzureSynthesizeErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid subscription", http.StatusUnauthorized)
	}))
	t.Cleanup(ts.Close)

	synth, err := NewAzureSynthesizer(AzureConfig{Key: "bad", Region: "eastus", AudioDir: t.TempDir(), Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("NewAzureSynthesizer() error = %v", err)
	}
	if _, err := synth.Synthesize(context.Background(), "hello", "r.wav"); err == nil {
		t.Fatalf("Synthesize() expected error on 401")
	}
}
