package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/image-publisher/internal/publish"
	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/internal/registry"
	"github.com/alvesdmateus/image-publisher/internal/registry/session"
	"github.com/alvesdmateus/image-publisher/internal/state"
	"github.com/alvesdmateus/image-publisher/pkg/database"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the built image to a container registry",
	Long: `Publish pushes a locally built artifact under every requested tag.
Destinations are resolved deterministically before any network call; each
destination yields exactly one outcome and the aggregated report is printed
to stdout. Exit code 0 iff every destination succeeded.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().String("name", "", "artifact name (default from config)")
	publishCmd.Flags().String("version", "", "version label of the local artifact")
	publishCmd.Flags().StringSlice("tags", nil, "tags to publish (default: version and latest)")
	publishCmd.Flags().String("registry", "", "registry endpoint (default from config)")
	publishCmd.Flags().String("namespace", "", "destination namespace (default from config)")
	publishCmd.Flags().String("principal", "", "registry principal (default from config)")
	publishCmd.Flags().Bool("build", false, "build the image before publishing")
	publishCmd.Flags().String("output", "json", "report format: json or yaml")
	_ = publishCmd.MarkFlagRequired("version")
}

func runPublish(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	version, _ := cmd.Flags().GetString("version")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	registryEndpoint, _ := cmd.Flags().GetString("registry")
	namespace, _ := cmd.Flags().GetString("namespace")
	principal, _ := cmd.Flags().GetString("principal")
	buildFirst, _ := cmd.Flags().GetBool("build")
	output, _ := cmd.Flags().GetString("output")

	if name == "" {
		name = cfg.Build.AppName
	}
	if registryEndpoint == "" {
		registryEndpoint = cfg.Registry.Endpoint
	}
	if namespace == "" {
		namespace = cfg.Registry.Namespace
	}
	if principal == "" {
		principal = cfg.Registry.Principal
	}
	if namespace == "" {
		return fmt.Errorf("destination namespace required (--namespace or registry.namespace)")
	}
	if len(tags) == 0 {
		tags = []string{version, "latest"}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	artifact, err := publish.NewArtifactRef(name, version)
	if err != nil {
		return err
	}

	intent, err := publish.NewPublishIntent(tags...)
	if err != nil {
		return err
	}

	target := publish.Target{Registry: registryEndpoint, Namespace: namespace}

	// Resolve before building or touching the network: an invalid tag must
	// fail fast.
	destinations, err := publish.Resolve(artifact, intent, target)
	if err != nil {
		return err
	}

	if buildFirst {
		if _, err := runBuild(ctx, name, version); err != nil {
			return err
		}
	}

	client, err := registry.NewClient(registry.Config{Type: registry.ClientType(cfg.Registry.ClientType)})
	if err != nil {
		return err
	}
	defer client.Close()

	sessions := session.NewManager(
		session.EnvSource{Var: cfg.Registry.CredentialVar},
		client,
		cfg.Registry.SessionValidity,
	)

	executor := publish.NewExecutor(client, sessions, publish.ExecutorConfig{
		Principal:      principal,
		MaxAttempts:    cfg.Publish.MaxAttempts,
		ConcurrencyCap: cfg.Publish.ConcurrencyCap,
		PushTimeout:    cfg.Publish.PushTimeout,
	}, log.Logger)

	report, err := executor.Publish(ctx, artifact, destinations)
	if err != nil {
		return err
	}

	recordReport(ctx, target, report)
	emitEvent(ctx, report)

	if err := writeReport(cmd.OutOrStdout(), report, output); err != nil {
		return err
	}

	if !report.Success {
		return fmt.Errorf("publish failed for %d of %d destination(s)", len(report.Failed()), len(report.Outcomes))
	}

	return nil
}

// recordReport persists the run to the local history database when enabled.
// History failures are logged, never fatal: the report already exists.
func recordReport(ctx context.Context, target publish.Target, report *publish.Report) {
	if !cfg.History.Enabled {
		return
	}

	db, err := database.Open(cfg.History.Path)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to open history database")
		return
	}
	defer func() {
		if closeErr := database.Close(db); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close history database")
		}
	}()

	if err := database.Migrate(db, &state.PublishRecord{}, &state.OutcomeRecord{}); err != nil {
		log.Warn().Err(err).Msg("Failed to migrate history database")
		return
	}

	if _, err := state.NewRepository(db).RecordReport(ctx, target, report); err != nil {
		log.Warn().Err(err).Msg("Failed to record publish report")
	}
}

// emitEvent pushes the report onto the Redis event sink when enabled.
// Best-effort: sink failures never change the report or the exit code.
func emitEvent(ctx context.Context, report *publish.Report) {
	if !cfg.Events.Enabled {
		return
	}

	sink, err := queue.NewRedisEventSink(cfg.Events.Addr, cfg.Events.Password, cfg.Events.DB)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to connect event sink")
		return
	}
	defer sink.Close()

	if err := sink.Publish(ctx, report); err != nil {
		log.Warn().Err(err).Msg("Failed to emit publish event")
	}
}
