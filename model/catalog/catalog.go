// Package catalog resolves "provider/model" identifiers (as found in agent
// configuration) into concrete model.Model implementations.
package catalog

import (
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/meshgate/logging"
	"github.com/hupe1980/meshgate/model"
	"github.com/hupe1980/meshgate/model/anthropic"
	"github.com/hupe1980/meshgate/model/breaker"
	"github.com/hupe1980/meshgate/model/openai"
)

// Provider names accepted as identifier prefixes.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Options configures model construction.
type Options struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	MaxTokens       int64
	// Breaker wraps every resolved provider model in a circuit breaker.
	Breaker        bool
	BreakerOptions []func(o *breaker.Options)
	Logger         logging.Logger
}

// Parse splits identifier into provider and model name. Identifiers without
// a provider prefix default to OpenAI.
func Parse(identifier string) (provider, name string, err error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", "", fmt.Errorf("empty model identifier")
	}

	provider, name, found := strings.Cut(identifier, "/")
	if !found {
		return ProviderOpenAI, identifier, nil
	}

	provider = strings.ToLower(provider)
	if name == "" {
		return "", "", fmt.Errorf("model identifier %q has no model name", identifier)
	}

	switch provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
		return provider, name, nil
	default:
		return "", "", fmt.Errorf("unknown model provider %q in %q", provider, identifier)
	}
}

// Resolve constructs the model named by identifier.
func Resolve(identifier string, temperature float64, optFns ...func(o *Options)) (model.Model, error) {
	opts := Options{MaxTokens: 4096, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	provider, name, err := Parse(identifier)
	if err != nil {
		return nil, err
	}

	var m model.Model

	switch provider {
	case ProviderOpenAI:
		m = openai.NewModel(func(o *openai.Options) {
			o.Model = name
			o.Temperature = temperature
			o.MaxCompletionTokens = opts.MaxTokens
			o.APIKey = opts.OpenAIAPIKey
			o.BaseURL = opts.OpenAIBaseURL
			o.Logger = opts.Logger
		})
	case ProviderAnthropic:
		m = anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(name)
			o.Temperature = temperature
			o.MaxTokens = opts.MaxTokens
			o.APIKey = opts.AnthropicAPIKey
		})
	case ProviderMock:
		return model.NewMockModel(name, ProviderMock), nil
	}

	if opts.Breaker {
		breakerOpts := append([]func(o *breaker.Options){func(o *breaker.Options) { o.Logger = opts.Logger }}, opts.BreakerOptions...)
		m = breaker.Wrap(m, breakerOpts...)
	}

	opts.Logger.Debug("model.catalog.resolved", "provider", provider, "model", name, "temperature", temperature)

	return m, nil
}

// NewResolver returns a model.Resolver bound to optFns.
func NewResolver(optFns ...func(o *Options)) model.Resolver {
	return func(identifier string, temperature float64) (model.Model, error) {
		return Resolve(identifier, temperature, optFns...)
	}
}
