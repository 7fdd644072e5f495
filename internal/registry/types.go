package registry

import (
	"fmt"

	"github.com/alvesdmateus/image-publisher/internal/publish"
	"github.com/alvesdmateus/image-publisher/internal/registry/session"
)

// Client handles container registry operations: it authenticates sessions
// for the session manager and pushes destinations for the publish executor.
type Client interface {
	session.Authenticator
	publish.Pusher

	// Close releases the underlying transport.
	Close() error
}

// ClientType selects the registry client implementation.
type ClientType string

const (
	// ClientTypeDocker pushes through the local Docker Engine API.
	ClientTypeDocker ClientType = "docker"

	// ClientTypeOCI would push directly over the registry HTTP protocol.
	ClientTypeOCI ClientType = "oci"
)

// Config contains registry client configuration.
type Config struct {
	Type ClientType
}

// NewClient creates a registry client based on configuration.
func NewClient(config Config) (Client, error) {
	clientType := config.Type
	if clientType == "" {
		clientType = ClientTypeDocker
	}

	switch clientType {
	case ClientTypeDocker:
		return NewDockerClient()
	case ClientTypeOCI:
		// Future implementation
		return nil, ErrClientNotImplemented{Type: clientType}
	default:
		return nil, ErrUnknownClient{Type: clientType}
	}
}

// ErrClientNotImplemented is returned when a client type is not yet implemented.
type ErrClientNotImplemented struct {
	Type ClientType
}

func (e ErrClientNotImplemented) Error() string {
	return "registry client not implemented: " + string(e.Type)
}

// ErrUnknownClient is returned when an unknown client type is requested.
type ErrUnknownClient struct {
	Type ClientType
}

func (e ErrUnknownClient) Error() string {
	return "unknown registry client type: " + string(e.Type)
}

// ErrPushFailed is returned when an image push fails before the registry
// produced a classified response.
type ErrPushFailed struct {
	Destination string
	Err         error
}

func (e ErrPushFailed) Error() string {
	return fmt.Sprintf("failed to push %s: %v", e.Destination, e.Err)
}

func (e ErrPushFailed) Unwrap() error {
	return e.Err
}
