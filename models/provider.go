package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/researchcanvas/log"
)

// Provider names a hosted chat model backend.
type Provider string

const (
	OpenAI      Provider = "openai"
	Anthropic   Provider = "anthropic"
	GoogleGenAI Provider = "google_genai"
)

// DefaultProvider is used when nothing else selects a provider.
const DefaultProvider = OpenAI

// Agent names accepted on the wire.
const (
	ResearchAgent       = "research_agent"
	ResearchAgentGoogle = "research_agent_google_genai"
)

// ErrInvalidProvider is matched by every *InvalidProviderError.
var ErrInvalidProvider = errors.New("invalid model provider")

// InvalidProviderError reports an unrecognized provider name.
type InvalidProviderError struct {
	Name string
}

func (e *InvalidProviderError) Error() string {
	return fmt.Sprintf("invalid model: %q (expected openai, anthropic or google_genai)", e.Name)
}

func (e *InvalidProviderError) Is(target error) bool {
	return target == ErrInvalidProvider
}

// Providers lists every supported provider.
func Providers() []Provider {
	return []Provider{OpenAI, Anthropic, GoogleGenAI}
}

// Parse validates a provider name.
func Parse(name string) (Provider, error) {
	switch p := Provider(name); p {
	case OpenAI, Anthropic, GoogleGenAI:
		return p, nil
	default:
		return "", &InvalidProviderError{Name: name}
	}
}

// Resolve picks the provider for a turn. The first non-empty of the state
// override, the process default and the environment default wins; when all
// are empty the result is DefaultProvider.
func Resolve(stateOverride, processDefault, envDefault string) (Provider, error) {
	name, source := string(DefaultProvider), "default"
	switch {
	case stateOverride != "":
		name, source = stateOverride, "state"
	case processDefault != "":
		name, source = processDefault, "agent"
	case envDefault != "":
		name, source = envDefault, "env"
	}

	p, err := Parse(name)
	if err != nil {
		return "", err
	}
	log.Debug("model provider %s selected from %s", p, source)
	return p, nil
}

// ForAgent returns the provider bound to an agent name. The Google agent is
// pinned to GoogleGenAI; any other agent uses fallback.
func ForAgent(agent string, fallback Provider) Provider {
	if agent == ResearchAgentGoogle {
		return GoogleGenAI
	}
	return fallback
}

type providerKey struct{}

// WithProvider binds the process-default provider for one request.
func WithProvider(ctx context.Context, p Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// ProviderFromContext returns the provider bound by WithProvider, or "".
func ProviderFromContext(ctx context.Context) Provider {
	p, _ := ctx.Value(providerKey{}).(Provider)
	return p
}
