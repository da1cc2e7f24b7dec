package models

import "errors"

// Sentinel errors shared across services and handlers. Handlers map these to
// HTTP statuses; services wrap them with context via fmt.Errorf and %w.
var (
	// ErrNotFound means the requested lesson or attachment does not exist or
	// is not published (unpublished content is unreachable regardless of
	// purchase state)
	ErrNotFound = errors.New("content not found")

	// ErrPurchaseRequired means the caller is authenticated but holds no
	// entitlement for the requested content
	ErrPurchaseRequired = errors.New("purchase required")

	// ErrInvalidMediaReference means the stored reference cannot be
	// normalized to a usable playback ID or storage path
	ErrInvalidMediaReference = errors.New("invalid media reference")

	// ErrInvalidConfiguration means the signing key or storage settings are
	// missing or malformed; this is an operator fault and must never degrade
	// into granting access
	ErrInvalidConfiguration = errors.New("invalid signing configuration")

	// ErrUpstreamFailure means the storage or video provider itself errored
	ErrUpstreamFailure = errors.New("upstream provider failure")
)
