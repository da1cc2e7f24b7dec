// Package media normalizes heterogeneous stored media references.
// Lessons and attachments created over the lifetime of the platform store
// their references in several shapes: canonical playback IDs or object paths,
// full provider URLs, and legacy placeholders from earlier migrations. This
// package turns any of them into the canonical form the providers expect.
package media

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	// playbackIDPattern matches a canonical video provider playback ID
	playbackIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{20,80}$`)

	// playbackIDScan finds a playback-ID-shaped run inside arbitrary text
	playbackIDScan = regexp.MustCompile(`[A-Za-z0-9]{20,80}`)
)

// Storage provider path markers that precede "<bucket>/<object path>" in
// provider URLs
const (
	markerSign   = "sign"
	markerPublic = "public"
)

// ExtractPlaybackID normalizes a stored video reference into a canonical
// playback ID. It accepts a bare ID, a full provider URL whose first path
// segment is the ID (optionally with a file extension such as .m3u8), or any
// string containing an ID-shaped run. Returns "" when no playback ID can be
// recovered; callers treat that as "video not configured".
func ExtractPlaybackID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	// Already canonical
	if playbackIDPattern.MatchString(raw) {
		return raw
	}

	// Provider URL: the first path segment carries the ID
	if u, err := url.Parse(raw); err == nil && u.IsAbs() && u.Host != "" {
		segments := splitPathSegments(u.Path)
		if len(segments) > 0 {
			candidate := strings.TrimSuffix(segments[0], path.Ext(segments[0]))
			if playbackIDPattern.MatchString(candidate) {
				return candidate
			}
		}
	}

	// Legacy placeholders sometimes wrap the ID in surrounding text
	if match := playbackIDScan.FindString(raw); match != "" && playbackIDPattern.MatchString(match) {
		return match
	}

	return ""
}

// ExtractStoragePath normalizes a stored attachment reference into the
// canonical object path within the given bucket.
//
// A non-URL reference is already the object path. A provider URL is reduced
// to the segments after the "sign"/"public" marker and the bucket name; if no
// marker is present, the substring after "<bucket>/" is used. When neither
// heuristic applies the raw value is returned unchanged with ok=false so
// callers can track the legacy passthrough.
func ExtractStoragePath(raw, bucketName string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" {
		// Not a URL: treat as the canonical object path
		return raw, true
	}

	segments := splitPathSegments(u.Path)

	// Provider URLs carry ".../{sign|public}/{bucket}/{object path}"
	for i, segment := range segments {
		if segment != markerSign && segment != markerPublic {
			continue
		}
		if i+1 < len(segments) && segments[i+1] == bucketName && i+2 < len(segments) {
			return strings.Join(segments[i+2:], "/"), true
		}
	}

	// No marker: look for the bucket name directly in the decoded path
	if bucketName != "" {
		if idx := strings.Index(u.Path, bucketName+"/"); idx >= 0 {
			candidate := u.Path[idx+len(bucketName)+1:]
			if candidate != "" {
				return candidate, true
			}
		}
	}

	// Best-effort passthrough for legacy direct URLs
	return raw, false
}

// IsStaleSignedPath reports whether a candidate object path still carries a
// previously-issued signing token. Such paths come from rows where an already
// signed URL was stored instead of the object path; signing over them again
// would mint a credential for a dead URL, so callers must reject them.
func IsStaleSignedPath(p string) bool {
	return strings.Contains(p, "token=")
}

// splitPathSegments splits a decoded URL path into its non-empty segments
func splitPathSegments(p string) []string {
	parts := strings.Split(p, "/")
	segments := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			segments = append(segments, part)
		}
	}
	return segments
}
