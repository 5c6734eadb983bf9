package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"linscore/internal/tableio"
)

func scoreCmd(configPath *string) *cobra.Command {
	var (
		featuresFile string
		weightsFile  string
		format       string
		out          string
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a features table file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			features, err := tableio.ReadFeatures(featuresFile, a.config.Scoring.PrimaryKey)
			if err != nil {
				return err
			}

			runner, err := a.runner(cmd.Context(), weightsFile, nil)
			if err != nil {
				return err
			}

			runID, table, err := runner.Run(cmd.Context(), features)
			if err != nil {
				return err
			}
			slog.Info("Features scored", "run", runID, "entities", len(table.Rows))

			if out == "" {
				return tableio.WriteScores(cmd.OutOrStdout(), format, table)
			}

			file, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := tableio.WriteScores(file, format, table); err != nil {
				file.Close()
				return err
			}
			return file.Close()
		},
	}

	cmd.Flags().StringVar(&featuresFile, "features", "", "features table (.csv or .json)")
	cmd.Flags().StringVar(&weightsFile, "weights", "", "weights table (.yaml, .yml or .csv), overrides the configuration")
	cmd.Flags().StringVar(&format, "format", tableio.FormatCSV, "output format: csv or json")
	cmd.Flags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.MarkFlagRequired("features")
	return cmd
}
