package utils

import (
	"fmt"
	"net/url"
)

// ValidateURL checks that a URL is absolute http or https.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url scheme %q", rawURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url host %q", rawURL)
	}
	return nil
}

// IsValidURL reports whether ValidateURL accepts the URL.
func IsValidURL(rawURL string) bool {
	return ValidateURL(rawURL) == nil
}
