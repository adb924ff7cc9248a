package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alcyxob/fitgen/internal/config"
	"alcyxob/fitgen/internal/logger"
)

// HTTPError is a non-2xx answer from the completion endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("completion http %d: %s", e.StatusCode, e.Body)
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ChatClient is a Completer for OpenAI-compatible chat completion APIs.
type ChatClient struct {
	log                  *logger.Logger
	httpClient           *http.Client
	baseURL              string
	apiKey               string
	model                string
	promptPricePer1K     float64
	completionPricePer1K float64
}

func NewChatClient(cfg config.GenerationConfig, log *logger.Logger) *ChatClient {
	return &ChatClient{
		log:                  log.With("service", "ChatClient"),
		httpClient:           &http.Client{Timeout: cfg.Timeout + 5*time.Second},
		baseURL:              strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:               cfg.APIKey,
		model:                cfg.Model,
		promptPricePer1K:     cfg.PromptPricePer1K,
		completionPricePer1K: cfg.CompletionPricePer1K,
	}
}

func (c *ChatClient) Complete(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	body := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read completion: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("completion returned no choices")
	}

	usage := Usage{PromptTokens: out.Usage.PromptTokens, CompletionTokens: out.Usage.CompletionTokens}
	c.log.Debug("Completion finished",
		"model", out.Model,
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"elapsed", time.Since(start),
	)
	return &Completion{
		Content:       out.Choices[0].Message.Content,
		Model:         out.Model,
		Usage:         usage,
		EstimatedCost: c.estimateCost(usage),
	}, nil
}

func (c *ChatClient) estimateCost(u Usage) float64 {
	return float64(u.PromptTokens)/1000*c.promptPricePer1K +
		float64(u.CompletionTokens)/1000*c.completionPricePer1K
}
