package models

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// SourceDefinition describes an external JSON API exposed as a queryable source.
// Definitions are read-only to the fetch pipeline.
type SourceDefinition struct {
	Name        string            `json:"name" yaml:"name"`
	EndpointURL string            `json:"endpoint_url" yaml:"endpoint_url"`
	QueryParams map[string]string `json:"query_params,omitempty" yaml:"query_params"`

	// APIKeyOverride is a literal secret and takes precedence over AuthEnvVar.
	APIKeyOverride string `json:"api_key_override,omitempty" yaml:"api_key_override"`
	// AuthEnvVar names the environment variable holding the secret.
	AuthEnvVar string `json:"auth_env_var,omitempty" yaml:"auth_env_var"`
	// APIKeyParam injects the secret as a query parameter. Wins over AuthHeader.
	APIKeyParam string `json:"api_key_param,omitempty" yaml:"api_key_param"`
	// AuthHeader injects the secret as "<AuthHeader>: Bearer <secret>".
	AuthHeader string `json:"auth_header,omitempty" yaml:"auth_header"`

	// ResponsePath is a dot-separated path to the record array in the response.
	ResponsePath string `json:"response_path" yaml:"response_path"`
	TTLSeconds   int    `json:"ttl_seconds" yaml:"ttl_seconds"`
	Description  string `json:"description,omitempty" yaml:"description"`
}

// MaxTTLSeconds is the largest TTL that still fits in a time.Duration.
const MaxTTLSeconds = math.MaxInt64 / int64(time.Second)

// Redacted returns a copy with the literal API key masked, for listing.
func (s SourceDefinition) Redacted() SourceDefinition {
	if s.APIKeyOverride != "" {
		s.APIKeyOverride = "***"
	}
	return s
}

// ConfigError reports a malformed source definition.
type ConfigError struct {
	Source string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return "invalid source definition: " + e.Reason
	}
	return fmt.Sprintf("invalid source definition %q: %s", e.Source, e.Reason)
}

// Validate checks structural constraints on the definition. Setting both
// APIKeyParam and AuthHeader is allowed; the query parameter wins.
func (s *SourceDefinition) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return &ConfigError{Reason: "name is required"}
	}
	if strings.HasPrefix(strings.ToLower(s.Name), "sqlite_") {
		return &ConfigError{Source: s.Name, Reason: `names starting with "sqlite_" are reserved`}
	}
	if s.EndpointURL == "" {
		return &ConfigError{Source: s.Name, Reason: "endpoint_url is required"}
	}
	u, err := url.Parse(s.EndpointURL)
	if err != nil {
		return &ConfigError{Source: s.Name, Reason: fmt.Sprintf("endpoint_url: %v", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigError{Source: s.Name, Reason: fmt.Sprintf("endpoint_url scheme %q unsupported: want http|https", u.Scheme)}
	}
	if u.Host == "" {
		return &ConfigError{Source: s.Name, Reason: "endpoint_url has no host"}
	}
	if s.TTLSeconds < 0 {
		return &ConfigError{Source: s.Name, Reason: "ttl_seconds must not be negative"}
	}
	if int64(s.TTLSeconds) > MaxTTLSeconds {
		return &ConfigError{Source: s.Name, Reason: fmt.Sprintf("ttl_seconds must not exceed %d", MaxTTLSeconds)}
	}
	if s.ResponsePath != "" {
		for _, seg := range strings.Split(s.ResponsePath, ".") {
			if seg == "" {
				return &ConfigError{Source: s.Name, Reason: fmt.Sprintf("response_path %q has an empty segment", s.ResponsePath)}
			}
		}
	}
	return nil
}
