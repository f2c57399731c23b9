// Package llm drafts grading guidance for pool questions through any
// OpenAI-compatible endpoint. It never scores a student; verdicts are the
// proctor's alone.
package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"reviewdeck/internal/model"
)

const guidancePrompt = `You are helping an assessment proctor prepare grading guidance.
Given an interview question, write the ideal answer a strong student would give,
followed by two or three bullet points naming what a partial answer must at least
contain. Be concise and concrete. Respond in plain text, no markdown headers.`

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a new LLM client against the given base URL.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:   openai.NewClientWithConfig(config),
		model: modelName,
	}
}

// Ping verifies the endpoint is reachable by listing models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// DraftGuidance asks the model for grading guidance on a question. The
// result is a draft for the admin to edit, never stored automatically.
func (c *Client) DraftGuidance(ctx context.Context, q model.Question) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: guidancePrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Module %d question: %s", q.ModuleID, q.Text)},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
