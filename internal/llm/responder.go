// Package llm generates refined agent replies through an OpenAI-compatible
// chat completions endpoint. Generation is best-effort: callers keep their
// rule-based candidate whenever it fails.
package llm

import (
	"context"
	"fmt"
)

// Responder produces a conversational reply to a patient transcript.
type Responder interface {
	Reply(ctx context.Context, transcript string) (string, error)
}

const systemPrompt = "You are a professional dental assistant."

func userPrompt(transcript string) string {
	return fmt.Sprintf(
		"You are a friendly dental assistant calling to book appointments. "+
			"The patient said: '%s'. "+
			"Respond naturally under 50 words. If they want to book, ask for preferred date and time.",
		transcript)
}
