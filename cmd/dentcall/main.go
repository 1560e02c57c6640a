package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/apolloni/dentcall/internal/callflow"
	"github.com/apolloni/dentcall/internal/config"
	"github.com/apolloni/dentcall/internal/events"
	"github.com/apolloni/dentcall/internal/httpapi"
	"github.com/apolloni/dentcall/internal/llm"
	"github.com/apolloni/dentcall/internal/observability"
	"github.com/apolloni/dentcall/internal/speech"
	"github.com/apolloni/dentcall/internal/store"
	"github.com/apolloni/dentcall/internal/telephony"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv load failed: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	st, err := store.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close(context.Background())
	log.Printf("store backend: %s", st.Kind())

	var transcribers []speech.Transcriber

	tryWhisperCLI := func(fatal bool) bool {
		t, err := speech.NewWhisperCLI(cfg.WhisperCLI, cfg.WhisperModelPath, cfg.WhisperLanguage)
		if err != nil {
			if fatal {
				log.Fatalf("whisper cli init failed: %v", err)
			}
			log.Printf("whisper cli unavailable: %v", err)
			return false
		}
		transcribers = append(transcribers, t)
		log.Printf("transcriber: whisper cli (%s)", cfg.WhisperModelPath)
		return true
	}

	tryOpenAIWhisper := func(fatal bool) bool {
		t, err := speech.NewOpenAIWhisper(cfg.OpenAIAPIKey, "")
		if err != nil {
			if fatal {
				log.Fatalf("openai whisper init failed: %v", err)
			}
			log.Printf("openai whisper unavailable: %v", err)
			return false
		}
		transcribers = append(transcribers, t)
		log.Printf("transcriber: openai whisper api")
		return true
	}

	switch strings.ToLower(strings.TrimSpace(cfg.STTProvider)) {
	case "whisper-cli":
		tryWhisperCLI(true)
	case "openai":
		tryOpenAIWhisper(true)
	case "auto", "":
		tryWhisperCLI(false)
		tryOpenAIWhisper(false)
		if len(transcribers) == 0 {
			log.Fatalf("no transcriber available: install whisper cli or set OPENAI_API_KEY")
		}
	default:
		log.Fatalf("invalid STT_PROVIDER: %q (expected auto|whisper-cli|openai)", cfg.STTProvider)
	}
	transcriber := speech.NewTranscriberChain(transcribers...)

	var synthesizers []speech.Synthesizer
	if cfg.AzureTTSKey != "" && cfg.AzureTTSRegion != "" {
		azure, err := speech.NewAzureSynthesizer(speech.AzureConfig{
			Key:      cfg.AzureTTSKey,
			Region:   cfg.AzureTTSRegion,
			Voice:    cfg.AzureTTSVoice,
			AudioDir: cfg.AudioDir,
		})
		if err != nil {
			log.Fatalf("azure tts init failed: %v", err)
		}
		synthesizers = append(synthesizers, azure)
		log.Printf("synthesizer: azure tts (%s)", cfg.AzureTTSVoice)
	} else {
		log.Printf("synthesizer: none, calls fall back to carrier speech")
	}
	synthesizer := speech.NewSynthesizerChain(synthesizers...)

	var responder llm.Responder
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "openai":
		if cfg.OpenAIAPIKey != "" {
			if responder, err = llm.NewOpenAIClient(cfg.OpenAIAPIKey); err != nil {
				log.Fatalf("openai llm init failed: %v", err)
			}
			log.Printf("llm: openai")
		}
	case "deepseek", "":
		if cfg.DeepSeekAPIKey != "" {
			if responder, err = llm.NewDeepSeekClient(cfg.DeepSeekAPIKey); err != nil {
				log.Fatalf("deepseek llm init failed: %v", err)
			}
			log.Printf("llm: deepseek")
		}
	case "none":
	default:
		log.Fatalf("invalid LLM_PROVIDER: %q (expected deepseek|openai|none)", cfg.LLMProvider)
	}
	if responder == nil {
		log.Printf("llm: disabled, replies stay rule-based")
	}

	fetcher, err := speech.NewHTTPFetcher(speech.FetcherConfig{
		AudioDir: cfg.AudioDir,
		AuthUser: cfg.TwilioSID,
		AuthPass: cfg.TwilioAuthToken,
		Timeout:  cfg.FetchTimeout,
	})
	if err != nil {
		log.Fatalf("audio fetcher init failed: %v", err)
	}

	hub := events.NewHub()

	controller, err := callflow.NewController(callflow.ControllerConfig{
		Store:         st,
		Fetcher:       fetcher,
		Transcriber:   transcriber,
		Synthesizer:   synthesizer,
		Responder:     responder,
		Hub:           hub,
		Metrics:       metrics,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		log.Fatalf("controller init failed: %v", err)
	}

	var dispatcher *callflow.Dispatcher
	if cfg.TelephonyConfigured() {
		dialer, err := telephony.NewClient(telephony.ClientConfig{
			AccountSID: cfg.TwilioSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromNumber: cfg.TwilioFromNumber,
			BaseURL:    cfg.TwilioAPIBaseURL,
		})
		if err != nil {
			log.Fatalf("telephony client init failed: %v", err)
		}
		dispatcher, err = callflow.NewDispatcher(dialer, st, metrics, cfg.PublicBaseURL+"/api/twilio-voice")
		if err != nil {
			log.Fatalf("dispatcher init failed: %v", err)
		}
		log.Printf("telephony: outbound dialing enabled from %s", cfg.TwilioFromNumber)
	} else {
		log.Printf("telephony: credentials missing, outbound dialing disabled")
	}

	api := httpapi.New(cfg, controller, dispatcher, st, hub, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
