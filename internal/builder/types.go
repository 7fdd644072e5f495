package builder

import (
	"context"
	"time"

	"github.com/alvesdmateus/image-publisher/internal/publish"
)

// BuildRequest contains everything needed to build the seeded database image.
type BuildRequest struct {
	AppName    string
	Version    string
	ContextDir string
	BuildArgs  map[string]*string
	Timeout    time.Duration
}

// BuildResult contains the output of a build operation.
type BuildResult struct {
	Artifact      publish.ArtifactRef
	ImageDigest   string
	BuildDuration time.Duration
	BuildLog      string
}

// ImageBuilder builds local container images. The publish core treats it as
// opaque: only the resulting artifact reference matters downstream.
type ImageBuilder interface {
	// Build builds the image and returns the local artifact reference.
	Build(ctx context.Context, req BuildRequest) (*BuildResult, error)

	// Preflight verifies the builder is usable before any work starts.
	Preflight(ctx context.Context) error
}
