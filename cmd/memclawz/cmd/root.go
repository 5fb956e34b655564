// Package cmd provides the CLI commands for memclawz.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yoniassia/memclawz/pkg/version"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool
}

// NewRootCmd creates the root command for the memclawz CLI.
func NewRootCmd() *cobra.Command {
	var opts rootOptions

	cmd := &cobra.Command{
		Use:   "memclawz",
		Short: "Hybrid memory index and sync engine for agent fleets",
		Long: `memclawz keeps an always-on hybrid memory index for a fleet of
local agents. It tails the agent runtime's memory log into per-namespace
vector and keyword indexes and serves fused search over HTTP.

Run 'memclawz serve' to start the service, then query it with
'memclawz search' or straight HTTP.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("memclawz version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(&opts))
	cmd.AddCommand(newDoctorCmd(&opts))
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd(&opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
