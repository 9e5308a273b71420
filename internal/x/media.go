package x

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/autopost-agent/pkg/ratelimit"
)

const mediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// UploadMedia uploads image bytes via the v1.1 media endpoint and returns
// the media id to reference in a tweet
func (c *Client) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterX); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("media", "media")
	if err != nil {
		return "", fmt.Errorf("failed to create multipart form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("failed to write media data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mediaUploadURL, &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	c.log.Debug().
		Int("size_bytes", len(data)).
		Str("mime_type", mimeType).
		Msg("Uploading media")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", newAPIError(resp.StatusCode, respBody)
	}

	var result mediaUploadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if result.MediaIDString == "" {
		return "", fmt.Errorf("upload response missing media id")
	}

	c.log.Info().Str("media_id", result.MediaIDString).Msg("Media uploaded")
	return result.MediaIDString, nil
}
