package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/thomasbeckford/pasichat/internal/domain"
)

const maxSimilarQuestions = 3

const understandSystemPrompt = "You are a query understanding assistant. " +
	"Analyze the user query and generate similar questions. " +
	`Respond with a JSON object of the form {"questions": ["..."]}.`

// Understander rephrases a user query into similar questions via a chat
// completion, so retrieval can search multiple formulations at once.
type Understander struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewUnderstander creates a chat-backed query understander.
func NewUnderstander(cfg *Config) *Understander {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Understander{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// SimilarQuestions returns up to three concise reformulations of query.
// The original query is not included in the result.
func (u *Understander) SimilarQuestions(ctx context.Context, query string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Analyze this query: %q. Provide 3 similar questions that could help answer the user's query. Be concise.",
		query,
	)

	resp, err := u.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: u.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: understandSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, parseChatError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty chat response: %w", errChatWrap(0))
	}

	var parsed struct {
		Questions []string `json:"questions"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse questions: %w", errChatWrap(0))
	}

	questions := parsed.Questions
	if len(questions) > maxSimilarQuestions {
		questions = questions[:maxSimilarQuestions]
	}
	return questions, nil
}

func parseChatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("chat API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, errChatWrap(apiErr.HTTPStatusCode))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("chat API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), errChatWrap(reqErr.HTTPStatusCode))
	}
	return fmt.Errorf("chat request failed: %w", errChatWrap(0))
}

func errChatWrap(status int) error {
	if status == http.StatusTooManyRequests {
		return domain.ErrRateLimited
	}
	return domain.ErrChatProvider
}
