package stt

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/sashabaranov/go-openai"
)

// Provider turns one audio file into text.
type Provider interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// WhisperProvider transcribes through the OpenAI audio API.
type WhisperProvider struct {
	Client *openai.Client
	Model  string
}

// NewWhisperProvider creates a provider for the given key. A non-empty
// baseURL points the client at a compatible endpoint.
func NewWhisperProvider(apiKey, baseURL, model string) *WhisperProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperProvider{
		Client: openai.NewClientWithConfig(cfg),
		Model:  model,
	}
}

// Transcribe uploads path and returns the recognised text.
func (p *WhisperProvider) Transcribe(ctx context.Context, path string) (string, error) {
	log.Infof("Sending a file to OpenAI: %s", path)
	resp, err := p.Client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    p.Model,
		FilePath: path,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	log.Infof("Successful audio file transcription: %s", path)
	return resp.Text, nil
}
