package models

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name                string
		state, process, env string
		want                Provider
		wantErr             bool
	}{
		{name: "StateWins", state: "anthropic", process: "google_genai", env: "openai", want: Anthropic},
		{name: "ProcessDefault", process: "google_genai", env: "anthropic", want: GoogleGenAI},
		{name: "EnvDefault", env: "anthropic", want: Anthropic},
		{name: "Fallback", want: OpenAI},
		{name: "BogusState", state: "bogus", wantErr: true},
		{name: "BogusEnv", env: "gpt", wantErr: true},
		{name: "CaseSensitive", state: "OpenAI", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.state, tt.process, tt.env)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidProvider)
				var ipe *InvalidProviderError
				assert.True(t, errors.As(err, &ipe))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidProviderErrorMessage(t *testing.T) {
	_, err := Parse("bogus")
	assert.EqualError(t, err, `invalid model: "bogus" (expected openai, anthropic or google_genai)`)
}

func TestForAgent(t *testing.T) {
	assert.Equal(t, GoogleGenAI, ForAgent(ResearchAgentGoogle, OpenAI))
	assert.Equal(t, Anthropic, ForAgent(ResearchAgent, Anthropic))
	assert.Equal(t, OpenAI, ForAgent("", OpenAI))
}

func TestProviderContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, Provider(""), ProviderFromContext(ctx))

	ctx = WithProvider(ctx, Anthropic)
	assert.Equal(t, Anthropic, ProviderFromContext(ctx))

	// Each request carries its own binding.
	other := WithProvider(context.Background(), GoogleGenAI)
	assert.Equal(t, Anthropic, ProviderFromContext(ctx))
	assert.Equal(t, GoogleGenAI, ProviderFromContext(other))
}

func TestProviders(t *testing.T) {
	for _, p := range Providers() {
		parsed, err := Parse(string(p))
		require.NoError(t, err)
		assert.Equal(t, p, parsed)
	}
}

type nopModel struct{}

func (nopModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "ok"}}}, nil
}

func (nopModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return "ok", nil
}

func TestStaticFactory(t *testing.T) {
	f := Static{M: nopModel{}}

	m, err := f.Model(context.Background(), Anthropic)
	require.NoError(t, err)
	assert.Equal(t, nopModel{}, m)

	_, err = f.Model(context.Background(), Provider("bogus"))
	assert.ErrorIs(t, err, ErrInvalidProvider)
}

func TestFactoryCachesModels(t *testing.T) {
	f := NewFactory(Credentials{OpenAIKey: "sk-test", AnthropicKey: "ak-test"})

	m1, err := f.Model(context.Background(), OpenAI)
	require.NoError(t, err)
	m2, err := f.Model(context.Background(), OpenAI)
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	a, err := f.Model(context.Background(), Anthropic)
	require.NoError(t, err)
	assert.NotNil(t, a)

	_, err = f.Model(context.Background(), Provider("bogus"))
	assert.ErrorIs(t, err, ErrInvalidProvider)
}
