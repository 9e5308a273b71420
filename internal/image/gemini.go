package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

const geminiImagenURL = "https://generativelanguage.googleapis.com/v1beta/models/imagen-4.0-generate-preview-06-06:predict"

// GeminiProvider generates images with the Imagen predict endpoint
type GeminiProvider struct {
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// NewGeminiProvider creates a Gemini image provider
func NewGeminiProvider(apiKey string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: limiter,
		log:     log.WithComponent("image_gemini"),
	}
}

type geminiPredictRequest struct {
	Instances  []geminiInstance `json:"instances"`
	Parameters geminiParameters `json:"parameters"`
}

type geminiInstance struct {
	Prompt string `json:"prompt"`
}

type geminiParameters struct {
	SampleCount int `json:"sampleCount"`
}

type geminiPredictResponse struct {
	Predictions []struct {
		BytesBase64Encoded string `json:"bytesBase64Encoded"`
	} `json:"predictions"`
}

// Generate requests one image and returns the decoded bytes
func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (*Image, error) {
	if err := p.limiter.Wait(ctx, ratelimit.LimiterImage); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	reqBody, err := json.Marshal(geminiPredictRequest{
		Instances:  []geminiInstance{{Prompt: prompt}},
		Parameters: geminiParameters{SampleCount: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, geminiImagenURL+"?key="+p.apiKey, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	p.log.Debug().Int("prompt_length", len(prompt)).Msg("Requesting image generation")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("image API error: %s - %s", resp.Status, string(body))
	}

	var result geminiPredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode image response: %w", err)
	}
	if len(result.Predictions) == 0 || result.Predictions[0].BytesBase64Encoded == "" {
		return nil, fmt.Errorf("image API returned no image")
	}

	data, err := decodeBase64(result.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image bytes: %w", err)
	}

	return &Image{Data: data, MIME: "image/png"}, nil
}

var _ Provider = (*GeminiProvider)(nil)
