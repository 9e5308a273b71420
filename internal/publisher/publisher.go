// Package publisher performs the single-shot publication step: credential
// resolution, optional media upload, then the tweet itself. Retry policy
// lives with the dispatcher, never here.
package publisher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/autopost-agent/internal/crypto"
	"github.com/autopost-agent/internal/image"
	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/x"
	"github.com/autopost-agent/pkg/logger"
	"github.com/autopost-agent/pkg/ratelimit"
)

// XClient is the subset of the X API the publisher needs
type XClient interface {
	UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error)
	PostTweet(ctx context.Context, text string, mediaIDs []string) (string, error)
}

// ClientFactory builds an XClient from decrypted credentials; injected so
// tests can supply fakes
type ClientFactory func(creds x.Credentials) XClient

// Publisher publishes text plus an optional image for a project
type Publisher struct {
	decrypter  crypto.Decrypter
	newClient  ClientFactory
	httpClient *http.Client
	log        *logger.Logger
}

// New creates a Publisher. factory may be nil to use the real X client with
// the given limiter.
func New(decrypter crypto.Decrypter, factory ClientFactory, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Publisher {
	plog := log.WithComponent("publisher")
	if factory == nil {
		factory = func(creds x.Credentials) XClient {
			return x.NewClient(creds, limiter, log)
		}
	}
	return &Publisher{
		decrypter:  decrypter,
		newClient:  factory,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        plog,
	}
}

// Publish uploads the optional image and posts text (+media) for the
// project, returning the remote post id. Failures are returned as
// *PublishError where classification applies. Single-shot: no retries.
func (p *Publisher) Publish(ctx context.Context, project *models.Project, text string, img *image.Image) (string, error) {
	if project.XCredential == nil {
		return "", fmt.Errorf("X credentials not found for project %s", project.ID)
	}

	creds, err := p.decryptCredentials(project.XCredential)
	if err != nil {
		// No plaintext, no publish.
		return "", fmt.Errorf("failed to decrypt X credentials: %w", err)
	}

	client := p.newClient(creds)

	var mediaIDs []string
	if img != nil {
		data, err := p.imageBytes(ctx, img)
		if err != nil {
			return "", Classify(fmt.Errorf("failed to fetch image: %w", err))
		}
		mediaID, err := client.UploadMedia(ctx, data, img.MIME)
		if err != nil {
			return "", Classify(err)
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	tweetID, err := client.PostTweet(ctx, text, mediaIDs)
	if err != nil {
		return "", Classify(err)
	}

	p.log.Info().
		Str("project_id", project.ID).
		Str("tweet_id", tweetID).
		Bool("with_image", img != nil).
		Msg("Published post")

	return tweetID, nil
}

func (p *Publisher) decryptCredentials(cred *models.XCredential) (x.Credentials, error) {
	var creds x.Credentials
	var err error
	if creds.APIKey, err = p.decrypter.Decrypt(cred.APIKey); err != nil {
		return creds, err
	}
	if creds.APIKeySecret, err = p.decrypter.Decrypt(cred.APIKeySecret); err != nil {
		return creds, err
	}
	if creds.AccessToken, err = p.decrypter.Decrypt(cred.AccessToken); err != nil {
		return creds, err
	}
	if creds.AccessTokenSecret, err = p.decrypter.Decrypt(cred.AccessTokenSecret); err != nil {
		return creds, err
	}
	return creds, nil
}

// imageBytes resolves an image to raw bytes, fetching the URL form if the
// backend returned one
func (p *Publisher) imageBytes(ctx context.Context, img *image.Image) ([]byte, error) {
	if len(img.Data) > 0 {
		return img.Data, nil
	}
	if img.URL == "" {
		return nil, fmt.Errorf("image has neither data nor URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image download returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
