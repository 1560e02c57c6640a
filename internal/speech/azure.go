package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AzureSynthesizer renders speech through the Azure Cognitive Services
// text-to-speech REST endpoint and writes the result as a wav file.
type AzureSynthesizer struct {
	key        string
	region     string
	voice      string
	audioDir   string
	endpoint   string
	httpClient *http.Client
}

type AzureConfig struct {
	Key      string
	Region   string
	Voice    string
	AudioDir string
	// Endpoint overrides the regional default; used by tests.
	Endpoint string
}

func NewAzureSynthesizer(cfg AzureConfig) (*AzureSynthesizer, error) {
	if strings.TrimSpace(cfg.Key) == "" || strings.TrimSpace(cfg.Region) == "" {
		return nil, fmt.Errorf("azure tts key and region are required")
	}
	if strings.TrimSpace(cfg.AudioDir) == "" {
		return nil, fmt.Errorf("audio dir is required")
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	voice := cfg.Voice
	if voice == "" {
		voice = "en-US-JennyNeural"
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", cfg.Region)
	}

	return &AzureSynthesizer{
		key:        cfg.Key,
		region:     cfg.Region,
		voice:      voice,
		audioDir:   cfg.AudioDir,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (s *AzureSynthesizer) Name() string { return "azure_tts" }

func (s *AzureSynthesizer) Synthesize(ctx context.Context, text, filename string) (string, error) {
	ssml := fmt.Sprintf(
		`<speak version='1.0' xml:lang='en-US'><voice name='%s'>%s</voice></speak>`,
		s.voice, escapeSSML(text))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(ssml))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", "riff-16khz-16bit-mono-pcm")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("azure tts status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	path := filepath.Join(s.audioDir, filepath.Base(filename))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func escapeSSML(text string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")
	return r.Replace(text)
}
