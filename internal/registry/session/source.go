package session

import (
	"context"
	"os"
	"strings"
)

// EnvSource reads the registry secret from an environment variable. The
// username is the principal itself, matching how token-based registries
// (artifact-registry, GHCR) expect pushes to authenticate.
type EnvSource struct {
	// Var names the environment variable holding the secret.
	Var string
}

// Credential implements CredentialSource.
func (s EnvSource) Credential(_ context.Context, endpoint, principal string) (Credential, error) {
	secret := strings.TrimSpace(os.Getenv(s.Var))
	if secret == "" {
		return Credential{}, ErrMissingCredential{Endpoint: endpoint, Principal: principal}
	}

	return Credential{Username: principal, Secret: secret}, nil
}

// StaticSource serves a fixed credential, mainly for tests and for
// configurations where the secret is injected directly.
type StaticSource struct {
	Username string
	Secret   string
}

// Credential implements CredentialSource.
func (s StaticSource) Credential(_ context.Context, endpoint, principal string) (Credential, error) {
	if s.Secret == "" {
		return Credential{}, ErrMissingCredential{Endpoint: endpoint, Principal: principal}
	}

	username := s.Username
	if username == "" {
		username = principal
	}

	return Credential{Username: username, Secret: s.Secret}, nil
}
