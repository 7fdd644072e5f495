package registry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types/image"
	dockerregistry "github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/internal/publish"
	"github.com/alvesdmateus/image-publisher/internal/registry/session"
)

// DockerClient implements Client on top of the local Docker Engine API: the
// daemon holds the built image and performs the actual registry protocol.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient creates a registry client backed by the local Docker daemon.
func NewDockerClient() (*DockerClient, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerClient{cli: cli}, nil
}

// Login implements session.Authenticator by validating the credential
// against the registry endpoint through the daemon.
func (c *DockerClient) Login(ctx context.Context, endpoint string, cred session.Credential) (string, error) {
	authConfig := dockerregistry.AuthConfig{
		Username:      cred.Username,
		Password:      cred.Secret,
		ServerAddress: endpoint,
	}

	resp, err := c.cli.RegistryLogin(ctx, authConfig)
	if err != nil {
		return "", fmt.Errorf("registry login failed: %w", err)
	}

	log.Info().
		Str("endpoint", endpoint).
		Str("status", resp.Status).
		Msg("Registry login succeeded")

	// Registries that do not issue identity tokens keep authenticating
	// pushes with the original secret.
	token := resp.IdentityToken
	if token == "" {
		token = cred.Secret
	}

	return token, nil
}

// Push implements publish.Pusher. The local artifact is tagged with the
// destination reference, then pushed with the session's credentials. A push
// where no layer needed uploading returns publish.ErrAlreadyExists.
func (c *DockerClient) Push(ctx context.Context, sess *session.Session, artifact publish.ArtifactRef, dest publish.DestinationRef) error {
	log.Info().
		Str("artifact", artifact.String()).
		Str("destination", dest.String()).
		Msg("Pushing image")

	if err := c.cli.ImageTag(ctx, artifact.String(), dest.String()); err != nil {
		return publish.PermanentError{Err: fmt.Errorf("failed to tag %s as %s: %w", artifact, dest, err)}
	}

	authConfig := dockerregistry.AuthConfig{
		Username:      sess.Principal,
		Password:      sess.Token,
		ServerAddress: sess.Endpoint,
	}

	encodedAuth, err := encodeAuthConfig(authConfig)
	if err != nil {
		return publish.PermanentError{Err: fmt.Errorf("failed to encode auth config: %w", err)}
	}

	pushResponse, err := c.cli.ImagePush(ctx, dest.String(), image.PushOptions{
		RegistryAuth: encodedAuth,
	})
	if err != nil {
		return classifyPushError(dest, err)
	}
	defer pushResponse.Close()

	uploaded, err := c.streamPushOutput(ctx, pushResponse)
	if err != nil {
		return classifyPushError(dest, err)
	}

	if !uploaded {
		return publish.ErrAlreadyExists
	}

	log.Info().Str("destination", dest.String()).Msg("Image pushed successfully")
	return nil
}

// Close closes the Docker client connection.
func (c *DockerClient) Close() error {
	if c.cli != nil {
		return c.cli.Close()
	}
	return nil
}

// encodeAuthConfig encodes auth config for Docker registry authentication.
func encodeAuthConfig(authConfig dockerregistry.AuthConfig) (string, error) {
	authJSON, err := json.Marshal(authConfig)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(authJSON), nil
}

// streamPushOutput consumes the daemon's JSON progress stream. It reports
// whether any layer actually uploaded; a push whose layers all already exist
// on the remote is the idempotent no-op case.
func (c *DockerClient) streamPushOutput(ctx context.Context, reader io.ReadCloser) (bool, error) {
	decoder := json.NewDecoder(reader)
	uploaded := false

	for {
		select {
		case <-ctx.Done():
			return uploaded, ctx.Err()
		default:
		}

		var msg struct {
			Status   string `json:"status"`
			Progress string `json:"progress"`
			Error    string `json:"error"`
		}

		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return uploaded, nil
			}
			return uploaded, fmt.Errorf("failed to decode push output: %w", err)
		}

		if msg.Error != "" {
			return uploaded, fmt.Errorf("push error: %s", msg.Error)
		}

		if msg.Status != "" {
			if strings.HasPrefix(msg.Status, "Pushed") {
				uploaded = true
			}

			log.Debug().
				Str("status", msg.Status).
				Str("progress", msg.Progress).
				Msg("Push progress")
		}
	}
}

// classifyPushError maps daemon and registry failures onto the executor's
// retry taxonomy.
func classifyPushError(dest publish.DestinationRef, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return publish.TransientError{Err: ErrPushFailed{Destination: dest.String(), Err: err}}
	}
	if errors.Is(err, context.Canceled) {
		return ErrPushFailed{Destination: dest.String(), Err: err}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "authentication required"),
		strings.Contains(msg, "access denied"),
		strings.Contains(msg, "denied: "),
		strings.Contains(msg, "401"),
		strings.Contains(msg, "403"):
		return publish.AuthError{Err: ErrPushFailed{Destination: dest.String(), Err: err}}

	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "temporarily unavailable"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "500"),
		strings.Contains(msg, "502"),
		strings.Contains(msg, "503"),
		strings.Contains(msg, "504"):
		return publish.TransientError{Err: ErrPushFailed{Destination: dest.String(), Err: err}}

	default:
		return publish.PermanentError{Err: ErrPushFailed{Destination: dest.String(), Err: err}}
	}
}
