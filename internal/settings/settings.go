// Package settings holds the connection settings of the FHIR server the
// console talks to, and the stores they persist in.
package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout is used when no request timeout is configured.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNotFound is returned by a Store that holds no saved settings.
	ErrNotFound = errors.New("settings not found")
	// ErrInvalid wraps validation failures of an update.
	ErrInvalid = errors.New("invalid settings")
)

// ServerSettings identifies the target FHIR server. Timeout is in
// milliseconds.
type ServerSettings struct {
	ServerURL  string `json:"serverUrl"`
	ServerName string `json:"serverName"`
	APIKey     string `json:"apiKey,omitempty"`
	Timeout    int    `json:"timeout,omitempty"`
}

// TimeoutDuration returns the request timeout, or DefaultTimeout when unset.
func (s ServerSettings) TimeoutDuration() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(s.Timeout) * time.Millisecond
}

// Validate checks that the server URL is an absolute http(s) URL.
func (s ServerSettings) Validate() error {
	if strings.TrimSpace(s.ServerURL) == "" {
		return fmt.Errorf("server url is required")
	}
	u, err := url.Parse(s.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server url must be an absolute http or https url")
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

// Redacted returns a copy with the API key masked, for display and logs.
func (s ServerSettings) Redacted() ServerSettings {
	if s.APIKey != "" {
		s.APIKey = "********"
	}
	return s
}

// mergeOver fills the empty fields of s from defaults.
func (s ServerSettings) mergeOver(defaults ServerSettings) ServerSettings {
	if s.ServerURL == "" {
		s.ServerURL = defaults.ServerURL
	}
	if s.ServerName == "" {
		s.ServerName = defaults.ServerName
	}
	if s.APIKey == "" {
		s.APIKey = defaults.APIKey
	}
	if s.Timeout == 0 {
		s.Timeout = defaults.Timeout
	}
	return s
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	ServerURL  *string `json:"serverUrl,omitempty"`
	ServerName *string `json:"serverName,omitempty"`
	APIKey     *string `json:"apiKey,omitempty"`
	Timeout    *int    `json:"timeout,omitempty"`
}

func (p Patch) apply(s ServerSettings) ServerSettings {
	if p.ServerURL != nil {
		s.ServerURL = strings.TrimRight(strings.TrimSpace(*p.ServerURL), "/")
	}
	if p.ServerName != nil {
		s.ServerName = strings.TrimSpace(*p.ServerName)
	}
	if p.APIKey != nil {
		s.APIKey = *p.APIKey
	}
	if p.Timeout != nil {
		s.Timeout = *p.Timeout
	}
	return s
}

// Store persists one ServerSettings record.
type Store interface {
	Load(ctx context.Context) (ServerSettings, error)
	Save(ctx context.Context, s ServerSettings) error
	Delete(ctx context.Context) error
}
