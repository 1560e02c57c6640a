package speech

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// ErrNoTranscriber is returned when no transcription backend is configured.
// Unlike synthesis, transcription has no safe degraded mode: without text
// the turn cannot proceed.
var ErrNoTranscriber = errors.New("no transcription backend configured")

// TranscriberChain tries each backend in order until one succeeds.
type TranscriberChain struct {
	backends []Transcriber
}

func NewTranscriberChain(backends ...Transcriber) *TranscriberChain {
	return &TranscriberChain{backends: backends}
}

func (c *TranscriberChain) Name() string { return "chain" }

// Backends exposes the configured order for logging and tests.
func (c *TranscriberChain) Backends() []Transcriber {
	return append([]Transcriber(nil), c.backends...)
}

func (c *TranscriberChain) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if len(c.backends) == 0 {
		return "", ErrNoTranscriber
	}

	var errs []string
	for _, backend := range c.backends {
		text, err := backend.Transcribe(ctx, audioPath)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		errs = append(errs, fmt.Sprintf("%s: %v", backend.Name(), err))
	}
	return "", fmt.Errorf("all transcription backends failed: %s", strings.Join(errs, "; "))
}

// SynthesizerChain tries each backend in order; when every backend fails it
// degrades to "no audio" so a turn never dies on synthesis.
type SynthesizerChain struct {
	backends []Synthesizer
}

func NewSynthesizerChain(backends ...Synthesizer) *SynthesizerChain {
	return &SynthesizerChain{backends: backends}
}

func (c *SynthesizerChain) Name() string { return "chain" }

func (c *SynthesizerChain) Synthesize(ctx context.Context, text, filename string) (string, error) {
	for _, backend := range c.backends {
		path, err := backend.Synthesize(ctx, text, filename)
		if err == nil {
			return path, nil
		}
		if ctx.Err() != nil {
			break
		}
		log.Printf("synthesis backend %s failed: %v", backend.Name(), err)
	}
	return "", nil
}
