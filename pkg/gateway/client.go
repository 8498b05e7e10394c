// Package gateway talks to the hosted OpenAI-compatible chat-completion
// endpoint used for answer generation and related-question suggestions.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/dskvich/perplexed/pkg/domain"
)

const (
	defaultChatModel    = "google/gemini-2.5-flash"
	defaultRelatedModel = "google/gemini-2.5-flash-lite"
)

type client struct {
	baseURL      string
	apiKey       string
	chatModel    string
	relatedModel string
	imageModel   string
	hc           *http.Client
	api          *openai.Client
}

// NewClient creates a gateway client. An empty API key is allowed at
// construction time; requests then fail with domain.ErrNotConfigured so the
// missing configuration surfaces on the turn that needed it.
func NewClient(baseURL, apiKey string) *client {
	baseURL = strings.TrimSuffix(baseURL, "/")

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL + "/v1"

	return &client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		chatModel:    defaultChatModel,
		relatedModel: defaultRelatedModel,
		imageModel:   defaultImageModel,
		hc:           &http.Client{},
		api:          openai.NewClientWithConfig(config),
	}
}

type chatCompletionsRequest struct {
	Model    string               `json:"model"`
	Messages []domain.ChatMessage `json:"messages"`
	Stream   bool                 `json:"stream"`
}

// CreateChatCompletionStream issues a streaming completion request with the
// persona for mode prepended and returns the raw event stream body. The
// caller owns closing it.
func (c *client) CreateChatCompletionStream(ctx context.Context, messages []domain.ChatMessage, mode domain.Mode) (io.ReadCloser, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return nil, domain.ErrNotConfigured
	}

	withPersona := make([]domain.ChatMessage, 0, len(messages)+1)
	withPersona = append(withPersona, domain.ChatMessage{Role: domain.RoleSystem, Content: personaFor(string(mode))})
	withPersona = append(withPersona, messages...)

	payload, err := json.Marshal(chatCompletionsRequest{
		Model:    c.chatModel,
		Messages: withPersona,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, domain.ErrRateLimited
		case http.StatusPaymentRequired:
			return nil, domain.ErrUsageLimited
		}
		return nil, fmt.Errorf("failed to get AI response: status %d: %s", resp.StatusCode, body)
	}

	return resp.Body, nil
}

// CreateChatCompletion issues a plain, non-streaming completion. Used for
// short auxiliary prompts such as related-question suggestions.
func (c *client) CreateChatCompletion(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if c.baseURL == "" || c.apiKey == "" {
		return "", domain.ErrNotConfigured
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.relatedModel,
		Messages: chatMessages,
	})
	if err != nil {
		return "", fmt.Errorf("creating chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
