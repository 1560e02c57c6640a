// Package speech holds the pluggable capabilities of the voice pipeline:
// recording fetch, transcription, and synthesis. Each capability can fail
// independently; fallback policy lives in explicit ordered chains rather
// than nested error handling.
package speech

import "context"

// Fetcher downloads a recorded utterance to a local file and returns its path.
type Fetcher interface {
	Fetch(ctx context.Context, recordingURL, filename string) (string, error)
}

// Transcriber converts a recorded audio file to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	Name() string
}

// Synthesizer renders text to an audio file and returns its path. An empty
// path with a nil error means "no audio produced"; the caller side falls
// back to its built-in text-to-speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, filename string) (string, error)
	Name() string
}
