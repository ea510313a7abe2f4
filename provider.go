package longform

import "fmt"

// Provider identifies an AI provider.
type Provider string

// String returns the provider identifier.
func (p Provider) String() string { return string(p) }

// Supported providers.
const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGoogle    Provider = "google"
)

// ParseProvider validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle:
		return p, nil
	default:
		return "", fmt.Errorf("unknown provider: %q (must be anthropic, openai, or google)", s)
	}
}

// SupportsImages reports whether the provider has an image generation backend.
func (p Provider) SupportsImages() bool {
	return p == ProviderOpenAI || p == ProviderGoogle
}
