package builder

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/internal/publish"
)

// DefaultBuildTimeout is the default maximum time allowed for a build.
const DefaultBuildTimeout = 15 * time.Minute

// DockerBuilder implements ImageBuilder using the Docker Engine API.
type DockerBuilder struct {
	client *client.Client
}

// NewDockerBuilder creates a Docker-backed image builder.
func NewDockerBuilder() (*DockerBuilder, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &DockerBuilder{client: cli}, nil
}

// Preflight checks that the Docker daemon is reachable. This replaces
// shell-style "command exists" probing with a typed startup precondition.
func (b *DockerBuilder) Preflight(ctx context.Context) error {
	if _, err := b.client.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return nil
}

// Build tars the context directory and builds the image through the daemon.
func (b *DockerBuilder) Build(ctx context.Context, req BuildRequest) (*BuildResult, error) {
	startTime := time.Now()

	if err := b.Preflight(ctx); err != nil {
		return nil, err
	}

	artifact, err := publish.NewArtifactRef(strings.ToLower(req.AppName), req.Version)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultBuildTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Info().
		Str("artifact", artifact.String()).
		Str("context", req.ContextDir).
		Dur("timeout", timeout).
		Msg("Building image")

	buildContextTar, err := b.createBuildContext(req.ContextDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildContextTar.Close()

	buildOptions := types.ImageBuildOptions{
		Tags:        []string{artifact.String()},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
		PullParent:  true,
		BuildArgs:   req.BuildArgs,
		Labels: map[string]string{
			"image.publisher.app":     req.AppName,
			"image.publisher.version": req.Version,
		},
	}

	buildResponse, err := b.client.ImageBuild(ctx, buildContextTar, buildOptions)
	if err != nil {
		return nil, fmt.Errorf("docker build failed: %w", err)
	}
	defer buildResponse.Body.Close()

	var buildLog strings.Builder
	if err := b.streamBuildOutput(ctx, buildResponse.Body, &buildLog); err != nil {
		return nil, fmt.Errorf("failed to stream build output: %w", err)
	}

	imageInspect, _, err := b.client.ImageInspectWithRaw(ctx, artifact.String())
	if err != nil {
		return nil, fmt.Errorf("failed to inspect built image: %w", err)
	}

	result := &BuildResult{
		Artifact:      artifact,
		ImageDigest:   imageInspect.ID,
		BuildDuration: time.Since(startTime),
		BuildLog:      buildLog.String(),
	}

	log.Info().
		Str("artifact", artifact.String()).
		Str("digest", result.ImageDigest).
		Dur("duration", result.BuildDuration).
		Msg("Image build completed successfully")

	return result, nil
}

// Close closes the Docker client connection.
func (b *DockerBuilder) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}

// createBuildContext creates a tar archive of the build context directory.
func (b *DockerBuilder) createBuildContext(contextDir string) (io.ReadCloser, error) {
	buf := new(bytes.Buffer)
	tw := tar.NewWriter(buf)
	defer tw.Close()

	err := filepath.Walk(contextDir, func(file string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(contextDir, file)
		if err != nil {
			return err
		}

		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, fi.Name())
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		if !fi.IsDir() {
			data, err := os.Open(file)
			if err != nil {
				return err
			}
			defer data.Close()

			if _, err := io.Copy(tw, data); err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create tar archive: %w", err)
	}

	return io.NopCloser(bytes.NewReader(buf.Bytes())), nil
}

// streamBuildOutput streams and parses Docker build output.
func (b *DockerBuilder) streamBuildOutput(ctx context.Context, reader io.Reader, buildLog *strings.Builder) error {
	decoder := json.NewDecoder(reader)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var msg struct {
			Stream      string `json:"stream"`
			Error       string `json:"error"`
			ErrorDetail struct {
				Message string `json:"message"`
			} `json:"errorDetail"`
		}

		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to decode build output: %w", err)
		}

		if msg.Error != "" {
			buildLog.WriteString(msg.Error)
			return fmt.Errorf("build error: %s", msg.ErrorDetail.Message)
		}

		if msg.Stream != "" {
			buildLog.WriteString(msg.Stream)
			log.Debug().Str("output", strings.TrimSpace(msg.Stream)).Msg("Build output")
		}
	}
}
