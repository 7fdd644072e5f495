package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/image-publisher/internal/builder"
	"github.com/alvesdmateus/image-publisher/internal/seed"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the seeded database image locally",
	Long:  `Build the PostgreSQL image with the embedded schema and sample data, tagged name:version for a later publish.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		version, _ := cmd.Flags().GetString("version")

		result, err := runBuild(cmd.Context(), name, version)
		if err != nil {
			return err
		}

		cmd.Printf("Built %s (%s)\n", result.Artifact, result.ImageDigest)
		return nil
	},
}

func init() {
	buildCmd.Flags().String("name", "", "artifact name (default from config)")
	buildCmd.Flags().String("version", "", "version label for the built image")
	_ = buildCmd.MarkFlagRequired("version")
}

// runBuild materializes the embedded seed assets into a scratch directory
// and drives the image builder. Shared by the build and publish commands.
func runBuild(ctx context.Context, name, version string) (*builder.BuildResult, error) {
	if name == "" {
		name = cfg.Build.AppName
	}

	contextDir, err := os.MkdirTemp("", "publisher-build-")
	if err != nil {
		return nil, fmt.Errorf("failed to create build context directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(contextDir); rmErr != nil {
			log.Warn().Err(rmErr).Str("dir", contextDir).Msg("Failed to clean up build context")
		}
	}()

	if err := seed.WriteBuildContext(contextDir); err != nil {
		return nil, err
	}

	imageBuilder, err := builder.NewDockerBuilder()
	if err != nil {
		return nil, err
	}
	defer imageBuilder.Close()

	if err := imageBuilder.Preflight(ctx); err != nil {
		return nil, err
	}

	postgresVersion := cfg.Build.PostgresVersion
	databaseName := cfg.Build.DatabaseName

	return imageBuilder.Build(ctx, builder.BuildRequest{
		AppName:    name,
		Version:    version,
		ContextDir: contextDir,
		Timeout:    cfg.Build.Timeout,
		BuildArgs: map[string]*string{
			"POSTGRES_VERSION": &postgresVersion,
			"POSTGRES_DB":      &databaseName,
		},
	})
}
