package validator

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// maxURLLength bounds destination URLs
const maxURLLength = 2048

// allowedSchemes lists permitted URL schemes
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// ValidateURL checks if a string is an acceptable destination URL:
// absolute http/https, host present, no embedded credentials
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL cannot be empty"}
	}

	if len(rawURL) > maxURLLength {
		return &ValidationError{Field: "url", Message: "URL too long (max 2048 characters)"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{Field: "url", Message: "Invalid URL structure"}
	}

	// Rejecting non-http(s) also covers javascript:, data:, vbscript: and friends
	if !parsed.IsAbs() || !allowedSchemes[strings.ToLower(parsed.Scheme)] {
		return &ValidationError{Field: "url", Message: "URL scheme must be http or https"}
	}

	if parsed.Host == "" {
		return &ValidationError{Field: "url", Message: "URL must contain a host"}
	}

	if parsed.User != nil {
		return &ValidationError{Field: "url", Message: "URLs with embedded credentials are not allowed"}
	}

	return nil
}

// NormalizeURL standardizes a URL for storage and dedup hashing:
// scheme and host are lowercased, default ports stripped, the fragment
// dropped. Path and query are preserved as given.
func NormalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL // Return original if parsing fails
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)

	host := strings.ToLower(parsed.Host)
	switch {
	case parsed.Scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case parsed.Scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}
	parsed.Host = host

	parsed.Fragment = ""
	parsed.RawFragment = ""

	return parsed.String()
}

// HashURL returns the lowercase hex SHA-256 of a normalized URL. The
// result is the dedup fingerprint stored on every mapping.
func HashURL(normalizedURL string) string {
	sum := sha256.Sum256([]byte(normalizedURL))
	return hex.EncodeToString(sum[:])
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
