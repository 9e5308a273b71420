package x

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"

	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

const apiBaseURL = "https://api.twitter.com/2"

// Credentials are the decrypted OAuth 1.0a user-context secrets for one
// project. Write operations on the X API require user context; the app-only
// bearer token used for search cannot post.
type Credentials struct {
	APIKey            string
	APIKeySecret      string
	AccessToken       string
	AccessTokenSecret string
}

// Client performs authenticated X API requests for a single project
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewClient builds a client from decrypted credentials. Pure constructor:
// one client per credential set, no shared singleton.
func NewClient(creds Credentials, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	cfg := oauth1.NewConfig(creds.APIKey, creds.APIKeySecret)
	token := oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret)

	httpClient := cfg.Client(oauth1.NoContext, token)
	httpClient.Timeout = 30 * time.Second

	return &Client{
		httpClient:  httpClient,
		rateLimiter: limiter,
		log:         log.WithComponent("x"),
	}
}

// APIError is a non-2xx response from the X API, carrying the parsed error
// envelope for classification by the publisher
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("x api error (%d %s): %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("x api error (%d): %s", e.StatusCode, e.Body)
}

type errorEnvelope struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode, Body: string(body)}
	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		apiErr.Title = env.Title
		apiErr.Detail = env.Detail
	}
	return apiErr
}

// do performs an authenticated JSON request against the v2 API
func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterX); err != nil {
		return fmt.Errorf("rate limit error: %w", err)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiBaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("X API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	c.log.Debug().Int("status", resp.StatusCode).Msg("X API response")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// tweetRequest is the v2 tweet creation body
type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// PostTweet publishes text with optional previously uploaded media and
// returns the remote post id
func (c *Client) PostTweet(ctx context.Context, text string, mediaIDs []string) (string, error) {
	req := tweetRequest{Text: text}
	if len(mediaIDs) > 0 {
		req.Media = &tweetMedia{MediaIDs: mediaIDs}
	}

	var resp tweetResponse
	if err := c.do(ctx, http.MethodPost, "/tweets", req, &resp); err != nil {
		return "", err
	}
	if resp.Data.ID == "" {
		return "", fmt.Errorf("tweet response missing id")
	}

	c.log.Info().Str("tweet_id", resp.Data.ID).Msg("Tweet posted")
	return resp.Data.ID, nil
}

// User is the authenticated account, used for credential verification
type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type userResponse struct {
	Data User `json:"data"`
}

// GetMe returns the authenticated user, verifying the credential set
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var resp userResponse
	if err := c.do(ctx, http.MethodGet, "/users/me", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}
