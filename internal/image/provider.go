// Package image provides the pluggable image generation backends. Providers
// are a closed set of tagged variants (none, openai, gemini) dispatched
// through one Provider interface; callers treat any error as non-fatal and
// fall back to text-only publication.
package image

import (
	"context"
	"encoding/base64"

	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

// Image is a generated image, delivered either as a fetchable URL or as raw
// bytes, depending on the backend
type Image struct {
	URL  string
	Data []byte
	MIME string
}

// Provider generates an image for a prompt. A nil Image with nil error means
// the provider is disabled.
type Provider interface {
	Generate(ctx context.Context, prompt string) (*Image, error)
}

// NoneProvider never generates anything
type NoneProvider struct{}

// Generate returns nil: image generation is disabled
func (NoneProvider) Generate(ctx context.Context, prompt string) (*Image, error) {
	return nil, nil
}

// ForTag returns the provider variant for the configured tag. Both backends
// are keyed by deployment-wide keys; the per-project generation key is an
// Anthropic key and cannot authenticate image requests.
func ForTag(tag, openaiKey, geminiKey string, limiter *ratelimit.MultiLimiter, log *logger.Logger) Provider {
	switch tag {
	case "openai":
		if openaiKey == "" {
			return NoneProvider{}
		}
		return NewOpenAIProvider(openaiKey, limiter, log)
	case "gemini":
		if geminiKey == "" {
			return NoneProvider{}
		}
		return NewGeminiProvider(geminiKey, limiter, log)
	default:
		return NoneProvider{}
	}
}

func decodeBase64(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}
