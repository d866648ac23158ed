package models

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// Default model names per provider.
const (
	OpenAIModel    = "gpt-4o-mini"
	AnthropicModel = "claude-3-5-sonnet-20240620"
	GoogleModel    = "gemini-1.5-pro"
)

// ModelFactory returns a chat model for a provider.
type ModelFactory interface {
	Model(ctx context.Context, p Provider) (llms.Model, error)
}

// Credentials holds provider API keys. Empty keys fall back to each SDK's
// own environment variable.
type Credentials struct {
	OpenAIKey     string
	OpenAIBaseURL string
	AnthropicKey  string
	GoogleKey     string
}

// Factory builds langchaingo models and caches one per provider.
type Factory struct {
	creds Credentials

	mu     sync.Mutex
	models map[Provider]llms.Model
}

// NewFactory creates a Factory.
func NewFactory(creds Credentials) *Factory {
	return &Factory{
		creds:  creds,
		models: make(map[Provider]llms.Model),
	}
}

// Model returns the cached model for p, building it on first use.
func (f *Factory) Model(ctx context.Context, p Provider) (llms.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if m, ok := f.models[p]; ok {
		return m, nil
	}

	m, err := f.build(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s model: %w", p, err)
	}
	f.models[p] = m
	return m, nil
}

func (f *Factory) build(ctx context.Context, p Provider) (llms.Model, error) {
	switch p {
	case OpenAI:
		opts := []openai.Option{openai.WithModel(OpenAIModel)}
		if f.creds.OpenAIKey != "" {
			opts = append(opts, openai.WithToken(f.creds.OpenAIKey))
		}
		if f.creds.OpenAIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(f.creds.OpenAIBaseURL))
		}
		return openai.New(opts...)
	case Anthropic:
		opts := []anthropic.Option{anthropic.WithModel(AnthropicModel)}
		if f.creds.AnthropicKey != "" {
			opts = append(opts, anthropic.WithToken(f.creds.AnthropicKey))
		}
		return anthropic.New(opts...)
	case GoogleGenAI:
		opts := []googleai.Option{googleai.WithDefaultModel(GoogleModel)}
		if f.creds.GoogleKey != "" {
			opts = append(opts, googleai.WithAPIKey(f.creds.GoogleKey))
		}
		return googleai.New(ctx, opts...)
	default:
		return nil, &InvalidProviderError{Name: string(p)}
	}
}

// Static serves the same model for every provider. It is used by the local
// REPL with a fixed model and by tests.
type Static struct {
	M llms.Model
}

// Model returns s.M.
func (s Static) Model(_ context.Context, p Provider) (llms.Model, error) {
	if _, err := Parse(string(p)); err != nil {
		return nil, err
	}
	return s.M, nil
}
