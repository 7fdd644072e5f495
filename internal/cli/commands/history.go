package commands

import (
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/image-publisher/internal/state"
	"github.com/alvesdmateus/image-publisher/pkg/database"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent publish runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		artifactName, _ := cmd.Flags().GetString("name")
		output, _ := cmd.Flags().GetString("output")

		db, err := database.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.HealthCheck(db); err != nil {
			return err
		}

		if err := database.Migrate(db, &state.PublishRecord{}, &state.OutcomeRecord{}); err != nil {
			return err
		}

		repo := state.NewRepository(db)

		var records []state.PublishRecord
		if artifactName != "" {
			records, err = repo.ListRecordsByArtifact(cmd.Context(), artifactName, limit)
		} else {
			records, err = repo.ListRecords(cmd.Context(), limit, 0)
		}
		if err != nil {
			return err
		}

		return writeReport(cmd.OutOrStdout(), records, output)
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	historyCmd.Flags().String("name", "", "filter by artifact name")
	historyCmd.Flags().String("output", "json", "output format: json or yaml")
}
