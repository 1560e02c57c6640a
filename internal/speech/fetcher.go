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

// HTTPFetcher downloads recordings over HTTP. Provider recording URLs are
// not reliably fetchable as-is, so it walks a prioritized candidate list of
// URL variants until one succeeds.
type HTTPFetcher struct {
	audioDir   string
	authUser   string
	authPass   string
	authHost   string
	httpClient *http.Client
}

// FetcherConfig configures the recording downloader. AuthUser/AuthPass are
// applied only to URLs on AuthHost (the telephony provider's API host).
type FetcherConfig struct {
	AudioDir string
	AuthUser string
	AuthPass string
	AuthHost string
	Timeout  time.Duration
}

func NewHTTPFetcher(cfg FetcherConfig) (*HTTPFetcher, error) {
	if strings.TrimSpace(cfg.AudioDir) == "" {
		return nil, fmt.Errorf("audio dir is required")
	}
	if err := os.MkdirAll(cfg.AudioDir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	authHost := cfg.AuthHost
	if authHost == "" {
		authHost = "api.twilio.com"
	}

	return &HTTPFetcher{
		audioDir:   cfg.AudioDir,
		authUser:   cfg.AuthUser,
		authPass:   cfg.AuthPass,
		authHost:   authHost,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// candidates lists URL variants in priority order. Provider recording URLs
// often need a container suffix or an explicit download flag before they
// serve raw audio.
func (f *HTTPFetcher) candidates(recordingURL string) []string {
	if !strings.Contains(recordingURL, f.authHost) {
		return []string{recordingURL}
	}
	return []string{
		recordingURL + ".wav",
		recordingURL + ".mp3",
		recordingURL + "?Download=true",
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, recordingURL, filename string) (string, error) {
	path := filepath.Join(f.audioDir, filepath.Base(filename))

	var lastErr error
	for _, candidate := range f.candidates(recordingURL) {
		if err := f.download(ctx, candidate, path); err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("download recording: %w", lastErr)
}

func (f *HTTPFetcher) download(ctx context.Context, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav, audio/mpeg, */*")
	if f.authUser != "" && f.authPass != "" && strings.Contains(url, f.authHost) {
		req.SetBasicAuth(f.authUser, f.authPass)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
