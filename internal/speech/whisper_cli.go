package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// WhisperCLI transcribes with a local whisper.cpp binary.
type WhisperCLI struct {
	cliPath   string
	modelPath string
	language  string
}

func NewWhisperCLI(cliPath, modelPath, language string) (*WhisperCLI, error) {
	resolved, err := exec.LookPath(cliPath)
	if err != nil {
		return nil, fmt.Errorf("whisper cli not found: %w", err)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper model not found: %w", err)
	}
	if language == "" {
		language = "en"
	}
	return &WhisperCLI{cliPath: resolved, modelPath: modelPath, language: language}, nil
}

func (w *WhisperCLI) Name() string { return "whisper_cli" }

func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "dentcall-whisper-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)
	outPrefix := filepath.Join(tmpDir, "out")

	// whisper.cpp CLI flag set varies slightly across builds; keep this conservative.
	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-l", w.language,
		"-otxt",
		"-of", outPrefix,
		"-nt",
	}

	cmd := exec.CommandContext(ctx, w.cliPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", context.Canceled
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("whisper.cpp failed: %s", detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
