package toml

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bnema/meetlink/internal/domain"
)

const currentSchemaVersion = 1

type fileSchema struct {
	Version     int                `toml:"version"`
	Credentials *credentialsSchema `toml:"credentials,omitempty"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported credentials schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

// credentialsSchema holds bundle metadata. Token material lives in the
// secret store under SecretRef, never in this file.
type credentialsSchema struct {
	SubjectID string `toml:"subject_id"`
	IssuedAt  string `toml:"issued_at"`
	Lifetime  string `toml:"lifetime,omitempty"`
	SecretRef string `toml:"secret_ref"`
}

// tokenSecret is the JSON blob kept in the secret store.
type tokenSecret struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func encodeTokenSecret(bundle domain.CredentialBundle) (string, error) {
	payload, err := json.Marshal(tokenSecret{
		AccessToken:  bundle.AccessToken,
		RefreshToken: bundle.RefreshToken,
	})
	if err != nil {
		return "", fmt.Errorf("encode token secret: %w", err)
	}
	return string(payload), nil
}

func decodeTokenSecret(value string) (tokenSecret, error) {
	var tokens tokenSecret
	if err := json.Unmarshal([]byte(value), &tokens); err != nil {
		return tokenSecret{}, fmt.Errorf("decode token secret: %w", err)
	}
	return tokens, nil
}

func toSchema(bundle domain.CredentialBundle, secretRef string) *credentialsSchema {
	schema := &credentialsSchema{
		SubjectID: string(bundle.SubjectID),
		IssuedAt:  formatTime(bundle.IssuedAt),
		SecretRef: secretRef,
	}
	if bundle.Lifetime > 0 {
		schema.Lifetime = bundle.Lifetime.String()
	}
	return schema
}

func fromSchema(schema credentialsSchema, tokens tokenSecret) (domain.CredentialBundle, error) {
	bundle := domain.CredentialBundle{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		SubjectID:    domain.SubjectID(schema.SubjectID),
		IssuedAt:     parseTime(schema.IssuedAt),
	}
	if schema.Lifetime != "" {
		lifetime, err := time.ParseDuration(schema.Lifetime)
		if err != nil {
			return domain.CredentialBundle{}, fmt.Errorf("parse credential lifetime: %w", err)
		}
		bundle.Lifetime = lifetime
	}
	return bundle, nil
}

func parseTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}

	return value.Format(time.RFC3339)
}
