package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the appointment-reminder voice service.
type Config struct {
	BindAddr         string
	PublicBaseURL    string
	MetricsNamespace string
	ShutdownTimeout  time.Duration

	AllowAnyOrigin bool

	AudioDir         string
	RecordMaxSeconds int
	FetchTimeout     time.Duration

	TwilioSID        string
	TwilioAuthToken  string
	TwilioFromNumber string
	TwilioAPIBaseURL string

	MongoURI      string
	MongoDatabase string

	STTProvider      string
	WhisperCLI       string
	WhisperModelPath string
	WhisperLanguage  string

	LLMProvider    string
	OpenAIAPIKey   string
	DeepSeekAPIKey string

	AzureTTSKey    string
	AzureTTSRegion string
	AzureTTSVoice  string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "dentcall"),
		// HOST is the externally reachable base URL the telephony provider
		// calls back into; record actions and audio URLs are built from it.
		PublicBaseURL:    strings.TrimRight(envOrDefault("HOST", "http://localhost:8000"), "/"),
		AudioDir:         envOrDefault("AUDIO_DIR", "public/audio"),
		RecordMaxSeconds: 30,
		FetchTimeout:     25 * time.Second,
		ShutdownTimeout:  15 * time.Second,
		TwilioSID:        trimEnv("TWILIO_SID"),
		TwilioAuthToken:  trimEnv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: trimEnv("TWILIO_PHONE_NUMBER"),
		TwilioAPIBaseURL: envOrDefault("TWILIO_API_BASE_URL", "https://api.twilio.com/2010-04-01"),
		MongoURI:         trimEnv("MONGODB_URI"),
		MongoDatabase:    envOrDefault("MONGODB_DATABASE", "dental_clinic"),
		STTProvider:      envOrDefault("STT_PROVIDER", "auto"),
		WhisperCLI:       envOrDefault("WHISPER_CLI", "whisper-cli"),
		WhisperModelPath: envOrDefault("WHISPER_MODEL_PATH", ".models/whisper/ggml-small.bin"),
		WhisperLanguage:  envOrDefault("WHISPER_LANGUAGE", "en"),
		LLMProvider:      envOrDefault("LLM_PROVIDER", "deepseek"),
		OpenAIAPIKey:     trimEnv("OPENAI_API_KEY"),
		DeepSeekAPIKey:   trimEnv("DEEPSEEK_API_KEY"),
		AzureTTSKey:      trimEnv("AZURE_TTS_KEY"),
		AzureTTSRegion:   trimEnv("AZURE_TTS_REGION"),
		AzureTTSVoice:    envOrDefault("AZURE_TTS_VOICE", "en-US-JennyNeural"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FetchTimeout, err = durationFromEnv("AUDIO_FETCH_TIMEOUT", cfg.FetchTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.RecordMaxSeconds, err = intFromEnv("RECORD_MAX_SECONDS", cfg.RecordMaxSeconds)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", false)
	if err != nil {
		return Config{}, err
	}

	if cfg.RecordMaxSeconds <= 0 {
		return Config{}, fmt.Errorf("RECORD_MAX_SECONDS must be positive")
	}
	if cfg.FetchTimeout < time.Second {
		return Config{}, fmt.Errorf("AUDIO_FETCH_TIMEOUT must be at least 1s")
	}

	return cfg, nil
}

// TelephonyConfigured reports whether outbound dialing credentials are present.
func (c Config) TelephonyConfigured() bool {
	return c.TwilioSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func trimEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
