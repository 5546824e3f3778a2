// Package provider defines the model-provider adapter boundary. The
// actual HTTP clients (OpenAI, Ollama) are an out-of-scope external
// collaborator; this package only gives the core something to call and
// hot-reload, plus a deterministic stand-in used until a real provider
// is wired in.
package provider

import "context"

// Provider answers a single prompt with a completion. Implementations
// that call out to a real model service live outside this module.
type Provider interface {
	// Respond returns a completion for prompt given the supplied
	// compacted history.
	Respond(ctx context.Context, prompt string, history []string) (string, error)
}

// InlineUnconfiguredResponse is the literal response the runtime must
// produce when no model is configured (spec's provider hot-reload
// testable scenario pins this exact string).
const InlineUnconfiguredResponse = "Responded inline"

// NullProvider is used whenever the config snapshot's provider has no
// models configured. It never calls out anywhere.
type NullProvider struct{}

// Respond always returns InlineUnconfiguredResponse.
func (NullProvider) Respond(context.Context, string, []string) (string, error) {
	return InlineUnconfiguredResponse, nil
}

// StubConfiguredProvider stands in for a real provider once at least
// one model is configured. It is deterministic (no network calls) but
// guaranteed to differ from InlineUnconfiguredResponse, which is what
// the hot-reload testable property checks for.
type StubConfiguredProvider struct {
	Model string
}

// Respond returns a placeholder completion naming the configured model.
func (p StubConfiguredProvider) Respond(_ context.Context, prompt string, _ []string) (string, error) {
	return "Model response via " + p.Model + ": " + prompt, nil
}

// Select picks the provider implementation for the given configured
// model list: NullProvider when empty, otherwise a provider for the
// first model.
func Select(models []string) Provider {
	if len(models) == 0 {
		return NullProvider{}
	}
	return StubConfiguredProvider{Model: models[0]}
}
