package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yoniassia/memclawz/internal/config"
	"github.com/yoniassia/memclawz/internal/embed"
	"github.com/yoniassia/memclawz/internal/preflight"
)

func newDoctorCmd(root *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment for problems",
		Long: `Run preflight checks against the configured environment: data
directory permissions, disk space, the memory log source, and the
embedding provider.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}

			embedder, err := embed.NewEmbedder(embed.Options{
				Provider:   embed.ParseProvider(cfg.Embeddings.Provider),
				Endpoint:   cfg.Embeddings.Endpoint,
				Dimensions: cfg.Embeddings.Dimensions,
				Timeout:    cfg.Embeddings.Timeout,
			})
			if err != nil {
				return err
			}
			defer func() { _ = embedder.Close() }()

			checker := preflight.New(
				preflight.WithOutput(cmd.OutOrStdout()),
				preflight.WithVerbose(verbose),
			)
			results := checker.RunAll(cmd.Context(), cfg.Server.DataDir, cfg.Sync.SourcePath, embedder)
			checker.PrintResults(results)

			if checker.HasCriticalFailures(results) {
				return fmt.Errorf("system check failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")

	return cmd
}
