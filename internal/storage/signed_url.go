// Package storage consumes the storage provider's signed-URL API. The
// provider itself (object persistence, URL verification) is external; this
// package only mints time-bounded URLs over canonical object paths.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/config"
	"github.com/courseloom/backend/internal/models"
)

// SignedURLClient mints signed object URLs through the storage provider's
// HTTP signing endpoint
type SignedURLClient struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSignedURLClient creates a new signed URL client. Missing settings are
// reported on the first signing call rather than here, so a deployment
// without document delivery can still boot.
func NewSignedURLClient(cfg config.StorageConfig, logger *zap.Logger) *SignedURLClient {
	if cfg.BaseURL == "" || cfg.ServiceKey == "" || cfg.Bucket == "" {
		logger.Warn("storage signing is not fully configured, attachment URL issuance is disabled")
	}

	return &SignedURLClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		bucket:     cfg.Bucket,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// signRequest is the provider signing endpoint request body
type signRequest struct {
	ExpiresIn int `json:"expiresIn"`
}

// signResponse is the provider signing endpoint response body
type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// Bucket returns the configured bucket name
func (c *SignedURLClient) Bucket() string {
	return c.bucket
}

// SignObjectURL mints a time-bounded URL for one object path. The download
// flag switches the response disposition from inline to attachment.
func (c *SignedURLClient) SignObjectURL(ctx context.Context, objectPath string, ttl time.Duration, download bool) (string, error) {
	if c.baseURL == "" || c.serviceKey == "" || c.bucket == "" {
		return "", fmt.Errorf("set STORAGE_BASE_URL, STORAGE_SERVICE_KEY and STORAGE_BUCKET to enable attachment delivery: %w", models.ErrInvalidConfiguration)
	}
	if objectPath == "" {
		return "", fmt.Errorf("empty object path: %w", models.ErrInvalidMediaReference)
	}

	endpoint := fmt.Sprintf("%s/object/sign/%s/%s", c.baseURL, c.bucket, escapePath(objectPath))

	body, err := json.Marshal(signRequest{ExpiresIn: int(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("failed to encode sign request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("storage sign request failed: %w", models.ErrUpstreamFailure)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Body is provider diagnostics, not caller-facing
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Error("storage sign request rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("object_path", objectPath),
			zap.ByteString("detail", detail),
		)
		return "", fmt.Errorf("storage provider returned status %d: %w", resp.StatusCode, models.ErrUpstreamFailure)
	}

	var signed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("failed to decode sign response: %w", models.ErrUpstreamFailure)
	}
	if signed.SignedURL == "" {
		return "", fmt.Errorf("storage provider returned no signed URL: %w", models.ErrUpstreamFailure)
	}

	// The provider returns a path relative to its API base
	signedURL := signed.SignedURL
	if !strings.HasPrefix(signedURL, "http") {
		signedURL = c.baseURL + "/" + strings.TrimLeft(signedURL, "/")
	}

	if download {
		separator := "?"
		if strings.Contains(signedURL, "?") {
			separator = "&"
		}
		signedURL += separator + "download="
	}

	return signedURL, nil
}

// escapePath escapes each path segment while preserving separators
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.Join(segments, "/")
}
