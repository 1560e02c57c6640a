package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Provider base URLs and models. DeepSeek exposes an OpenAI-compatible API,
// so one client covers both.
const (
	openAIBaseURL   = "https://api.openai.com"
	deepSeekBaseURL = "https://api.deepseek.com"

	openAIModel   = "gpt-4o"
	deepSeekModel = "deepseek-chat"
)

// ChatClient calls an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIClient builds a responder against the OpenAI API.
func NewOpenAIClient(apiKey string) (*ChatClient, error) {
	return newChatClient(openAIBaseURL, apiKey, openAIModel)
}

// NewDeepSeekClient builds a responder against the DeepSeek API.
func NewDeepSeekClient(apiKey string) (*ChatClient, error) {
	return newChatClient(deepSeekBaseURL, apiKey, deepSeekModel)
}

// NewChatClient builds a responder against a custom endpoint; used by tests.
func NewChatClient(baseURL, apiKey, model string) (*ChatClient, error) {
	return newChatClient(baseURL, apiKey, model)
}

func newChatClient(baseURL, apiKey, model string) (*ChatClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	return &ChatClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *ChatClient) Reply(ctx context.Context, transcript string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(transcript)},
		},
		MaxTokens:   150,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat api returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
