package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sashabaranov/go-openai"

	"github.com/mrsingh-rishi/transcriber/model"
)

// ErrMalformedArticle is returned when the completion has no title/body split.
var ErrMalformedArticle = errors.New("completion is not in title/text form")

// OpenAIClient writes articles from transcripts with a chat completion.
type OpenAIClient struct {
	Client *openai.Client
	Prompt string // prepended to every transcript
	Model  string
}

func NewOpenAIClient(apiKey, baseURL, prompt, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		Client: openai.NewClientWithConfig(cfg),
		Prompt: prompt,
		Model:  model,
	}, nil
}

// WriteArticle asks the model for an article about transcript.
func (c *OpenAIClient) WriteArticle(ctx context.Context, transcript string) (model.ArticleData, error) {
	fullPrompt := strings.TrimSpace(c.Prompt + " " + transcript)
	log.Infof("Generating article with %s, prompt of %d chars", c.Model, len(fullPrompt))

	resp, err := c.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: fullPrompt},
		},
	})
	if err != nil {
		return model.ArticleData{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return model.ArticleData{}, fmt.Errorf("openai returned no choices: %w", ErrMalformedArticle)
	}
	return ParseArticle(resp.Choices[0].Message.Content)
}

// ParseArticle splits a completion into title and body at the first blank
// line, dropping the "Title:" and "Text:" labels the prompt asks for.
func ParseArticle(content string) (model.ArticleData, error) {
	parts := strings.SplitN(strings.TrimSpace(content), "\n\n", 2)
	if len(parts) < 2 {
		return model.ArticleData{}, ErrMalformedArticle
	}
	article := model.ArticleData{
		Title:   strings.TrimSpace(strings.Replace(parts[0], "Title:", "", 1)),
		Content: strings.TrimSpace(strings.Replace(parts[1], "Text:", "", 1)),
	}
	if article.Title == "" || article.Content == "" {
		return model.ArticleData{}, ErrMalformedArticle
	}
	return article, nil
}
