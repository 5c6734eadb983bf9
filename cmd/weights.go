package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"linscore/internal/tableio"
)

func weightsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Manage stored weights versions",
	}
	cmd.AddCommand(weightsImportCmd(configPath))
	cmd.AddCommand(weightsListCmd(configPath))
	return cmd
}

func weightsImportCmd(configPath *string) *cobra.Command {
	var (
		file    string
		version string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a weights file under a version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.requireStore()
			if err != nil {
				return err
			}

			weights, err := tableio.ReadWeights(file)
			if err != nil {
				return err
			}

			if err := s.SaveWeights(cmd.Context(), version, weights); err != nil {
				return err
			}
			slog.Info("Weights imported", "version", version, "features", len(weights), "tags", weights.Tags())
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "weights table (.yaml, .yml or .csv)")
	cmd.Flags().StringVar(&version, "version", "", "version name")
	cmd.MarkFlagRequired("file")
	cmd.MarkFlagRequired("version")
	return cmd
}

func weightsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored weights versions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.requireStore()
			if err != nil {
				return err
			}

			versions, err := s.Versions(cmd.Context())
			if err != nil {
				return err
			}
			for _, v := range versions {
				fmt.Fprintln(cmd.OutOrStdout(), v)
			}
			return nil
		},
	}
}
