// Package generate talks to the generative-language API on behalf of
// personas and turns its answers into feed items.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/robertmeta/inspoflow/config"
	"github.com/robertmeta/inspoflow/model"
)

// DefaultBaseURL is the public Gemini endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// InspirationPrompt is the user turn sent with every single-shot request.
const InspirationPrompt = "Based on your persona, produce a fresh, interesting and easy to understand piece of knowledge you have not shared before. Make sure the topic or analogy differs from previous ones."

// ApologyText replaces a continuation that could not be generated.
const ApologyText = "Sorry, I could not continue this conversation right now. Please try again later."

// InvalidKeyText is returned in-band when the API rejects the credential.
const InvalidKeyText = model.ErrorMarker + "API key is invalid. Check your configuration."

// Generator is the generation boundary the feed depends on.
type Generator interface {
	// Generate returns text for a persona instruction. Failures come back
	// either as an error or as text starting with model.ErrorMarker.
	Generate(ctx context.Context, instruction string) (string, error)
	// Continue extends a conversation and never fails; on error it returns
	// ApologyText.
	Continue(ctx context.Context, instruction string, history []model.ChatMessage, message string) string
}

// Client calls the Gemini generateContent endpoint. A single attempt is
// made per call; deadlines come from the caller's context.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at another endpoint (tests, proxies).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a client from cfg. It refuses to build one without an
// API key so no request is ever issued unauthenticated.
func NewClient(cfg *config.Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = config.DefaultModel
	}
	c := &Client{
		apiKey:  cfg.APIKey,
		model:   modelName,
		baseURL: DefaultBaseURL,
		http:    &http.Client{},
		logger:  zap.NewNop(),
	}
	if cfg.BaseURL != "" {
		c.baseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ModelName returns the configured model.
func (c *Client) ModelName() string { return c.model }

type generationConfig struct {
	Temperature float64  `json:"temperature"`
	TopP        *float64 `json:"topP,omitempty"`
}

type generateRequest struct {
	Contents          []model.ChatMessage `json:"contents"`
	SystemInstruction *systemContent      `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig    `json:"generationConfig"`
}

type systemContent struct {
	Parts []model.Part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content      model.ChatMessage `json:"content"`
		FinishReason string            `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini returned %d: %s", e.StatusCode, e.Message)
}

// invalidKey reports whether the API rejected the credential.
func (e *APIError) invalidKey() bool {
	return strings.Contains(e.Message, "API key not valid")
}

func (c *Client) call(ctx context.Context, instruction string, contents []model.ChatMessage, gc generationConfig) (string, error) {
	body := generateRequest{Contents: contents, GenerationConfig: gc}
	if instruction != "" {
		body.SystemInstruction = &systemContent{Parts: []model.Part{{Text: instruction}}}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Message: parseErrorBody(resp.StatusCode, raw)}
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("prompt blocked: %s", out.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("response has no candidates")
	}
	return out.Candidates[0].Content.Text(), nil
}

func parseErrorBody(status int, body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "authentication failed, check your API key"
	case http.StatusTooManyRequests:
		return "rate limited or quota exceeded"
	}
	s := string(body)
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// Generate asks the model for a new piece of content for instruction.
// An invalid API key is reported in-band as InvalidKeyText; every other
// failure is returned as an error.
func (c *Client) Generate(ctx context.Context, instruction string) (string, error) {
	topP := 0.95
	text, err := c.call(ctx, instruction,
		[]model.ChatMessage{model.NewMessage(model.RoleUser, InspirationPrompt)},
		generationConfig{Temperature: 1.0, TopP: &topP})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.invalidKey() {
			return InvalidKeyText, nil
		}
		return "", err
	}
	return text, nil
}

// Continue sends the prior history plus message and returns the model's
// reply, or ApologyText on any failure.
func (c *Client) Continue(ctx context.Context, instruction string, history []model.ChatMessage, message string) string {
	contents := make([]model.ChatMessage, 0, len(history)+1)
	contents = append(contents, history...)
	contents = append(contents, model.NewMessage(model.RoleUser, message))

	text, err := c.call(ctx, instruction, contents, generationConfig{Temperature: 1.0})
	if err != nil {
		c.logger.Warn("continuation failed", zap.Error(err))
		return ApologyText
	}
	return text
}
