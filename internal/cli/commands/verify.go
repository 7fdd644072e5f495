package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alvesdmateus/image-publisher/internal/verify"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the seed data in a running container of the published image",
	Long:  `Verify connects to the database and checks that the seed script created the cats table, its rows and both indexes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		result, err := verify.Run(cmd.Context(), cfg.GetVerifyDSN())
		if err != nil {
			return err
		}

		if err := writeReport(cmd.OutOrStdout(), result, output); err != nil {
			return err
		}

		if !result.OK() {
			return fmt.Errorf("seed verification failed")
		}

		return nil
	},
}

func init() {
	verifyCmd.Flags().String("output", "json", "output format: json or yaml")
}
