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

const openaiImagesURL = "https://api.openai.com/v1/images/generations"

// OpenAIProvider generates images with DALL-E 3
type OpenAIProvider struct {
	apiKey     string
	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// NewOpenAIProvider creates an OpenAI image provider
func NewOpenAIProvider(apiKey string, limiter *ratelimit.MultiLimiter, log *logger.Logger) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: limiter,
		log:     log.WithComponent("image_openai"),
	}
}

type openaiImageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	ResponseFormat string `json:"response_format"`
}

type openaiImageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate requests a single 1024x1024 image and returns its short-lived URL
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (*Image, error) {
	if err := p.limiter.Wait(ctx, ratelimit.LimiterImage); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	reqBody, err := json.Marshal(openaiImageRequest{
		Model:          "dall-e-3",
		Prompt:         prompt,
		N:              1,
		Size:           "1024x1024",
		Quality:        "standard",
		ResponseFormat: "url",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openaiImagesURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
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

	var result openaiImageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode image response: %w", err)
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return nil, fmt.Errorf("image API returned no image")
	}

	return &Image{URL: result.Data[0].URL, MIME: "image/png"}, nil
}

var _ Provider = (*OpenAIProvider)(nil)
