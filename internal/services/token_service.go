package services

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/courseloom/backend/internal/config"
	"github.com/courseloom/backend/internal/media"
	"github.com/courseloom/backend/internal/models"
)

// Token audiences understood by the video provider's verifiers. A token
// minted for one audience is rejected by the others.
const (
	audienceVideo      = "v"
	audienceThumbnail  = "t"
	audienceStoryboard = "s"
)

const pemHeaderMarker = "-----BEGIN"

// tokenService issues short-lived RS256 playback tokens
type tokenService struct {
	signingKey *rsa.PrivateKey
	keyID      string
	defaultTTL time.Duration
	logger     *zap.Logger
}

// NewTokenService creates a new playback token service.
//
// The signing key is loaded once and is read-only afterwards, so the service
// is safe for concurrent use. An empty key is accepted (video signing stays
// disabled and every signing call reports the misconfiguration); a non-empty
// key that is neither PEM nor base64-encoded PEM fails construction so the
// fault surfaces at startup.
func NewTokenService(cfg config.VideoConfig, logger *zap.Logger) (*tokenService, error) {
	svc := &tokenService{
		keyID:      cfg.KeyID,
		defaultTTL: cfg.TokenTTL,
		logger:     logger,
	}
	if svc.defaultTTL <= 0 {
		svc.defaultTTL = 5 * time.Minute
	}

	if cfg.SigningKey == "" {
		logger.Warn("video signing key is not configured, playback token issuance is disabled")
		return svc, nil
	}

	key, err := parseSigningKey(cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("set a valid PEM or base64-PEM RSA signing key in VIDEO_SIGNING_KEY: %w", err)
	}
	svc.signingKey = key

	return svc, nil
}

// parseSigningKey accepts a raw PEM-encoded RSA private key or that PEM
// re-encoded in base64: raw is tried first, then the base64 decode is
// re-checked for the PEM header. The key material itself is never logged.
func parseSigningKey(raw string) (*rsa.PrivateKey, error) {
	pemBytes := []byte(raw)

	if !strings.Contains(raw, pemHeaderMarker) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
		if err != nil || !strings.Contains(string(decoded), pemHeaderMarker) {
			return nil, fmt.Errorf("signing key is neither PEM nor base64-encoded PEM: %w", models.ErrInvalidConfiguration)
		}
		pemBytes = decoded
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSA private key: %w", models.ErrInvalidConfiguration)
	}

	return key, nil
}

// SignPlaybackTokens normalizes the stored video reference and mints one
// token per audience (playback, thumbnail, storyboard) sharing the same
// subject and expiry. A non-positive ttl selects the configured default.
func (s *tokenService) SignPlaybackTokens(playbackRef string, ttl time.Duration) (*models.PlaybackTokens, error) {
	if s.signingKey == nil || s.keyID == "" {
		return nil, fmt.Errorf("video signing key or key id missing: %w", models.ErrInvalidConfiguration)
	}

	// Signing must never proceed on an unverified identifier
	playbackID := media.ExtractPlaybackID(playbackRef)
	if playbackID == "" {
		return nil, fmt.Errorf("reference does not contain a playback id: %w", models.ErrInvalidMediaReference)
	}

	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	expiresAt := time.Now().Add(ttl)

	tokens := &models.PlaybackTokens{
		PlaybackID: playbackID,
		ExpiresAt:  expiresAt,
	}

	for _, target := range []struct {
		audience string
		dest     *string
	}{
		{audienceVideo, &tokens.PlaybackToken},
		{audienceThumbnail, &tokens.ThumbnailToken},
		{audienceStoryboard, &tokens.StoryboardToken},
	} {
		signed, err := s.signToken(playbackID, target.audience, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to sign %q token: %w", target.audience, err)
		}
		*target.dest = signed
	}

	return tokens, nil
}

// signToken builds one compact RS256 JWT for a single audience
func (s *tokenService) signToken(playbackID, audience string, expiresAt time.Time) (string, error) {
	claims := jwt.MapClaims{
		"aud": audience,
		"sub": playbackID,
		"exp": expiresAt.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = s.keyID

	return token.SignedString(s.signingKey)
}
