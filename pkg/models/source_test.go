package models

import (
	"errors"
	"testing"
)

func validSource() SourceDefinition {
	return SourceDefinition{
		Name:         "weather",
		EndpointURL:  "https://api.example.com/v1/forecast",
		ResponsePath: "data.items",
		TTLSeconds:   60,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SourceDefinition)
		wantErr bool
	}{
		{"valid", func(*SourceDefinition) {}, false},
		{"empty response path", func(s *SourceDefinition) { s.ResponsePath = "" }, false},
		{"both auth targets", func(s *SourceDefinition) { s.APIKeyParam = "key"; s.AuthHeader = "Authorization" }, false},
		{"missing name", func(s *SourceDefinition) { s.Name = " " }, true},
		{"missing url", func(s *SourceDefinition) { s.EndpointURL = "" }, true},
		{"bad scheme", func(s *SourceDefinition) { s.EndpointURL = "ftp://example.com" }, true},
		{"no host", func(s *SourceDefinition) { s.EndpointURL = "https:///path" }, true},
		{"negative ttl", func(s *SourceDefinition) { s.TTLSeconds = -1 }, true},
		{"reserved name", func(s *SourceDefinition) { s.Name = "SQLite_master" }, true},
		{"max ttl", func(s *SourceDefinition) { s.TTLSeconds = int(MaxTTLSeconds) }, false},
		{"ttl overflows duration", func(s *SourceDefinition) { s.TTLSeconds = int(MaxTTLSeconds) + 1 }, true},
		{"empty path segment", func(s *SourceDefinition) { s.ResponsePath = "data..items" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := validSource()
			tt.mutate(&src)
			err := src.Validate()
			if tt.wantErr {
				var ce *ConfigError
				if !errors.As(err, &ce) {
					t.Fatalf("expected ConfigError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRedacted(t *testing.T) {
	src := validSource()
	src.APIKeyOverride = "secret"
	if got := src.Redacted().APIKeyOverride; got != "***" {
		t.Errorf("expected masked key, got %q", got)
	}
	if src.APIKeyOverride != "secret" {
		t.Error("Redacted must not modify the receiver")
	}
}
