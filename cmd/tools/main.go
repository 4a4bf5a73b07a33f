package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/neoxmeet/meet-backend/internal/config"
)

type dependencies struct {
	Config *config.Config
}

func newRootCmd(deps *dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "neoxmeet-tools",
		Short:         "Operational tools for the NeoxMeet backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newMigrateCmd(deps))
	rootCmd.AddCommand(newSeedRoomCmd(deps))
	rootCmd.AddCommand(newDevTokenCmd(deps))
	rootCmd.AddCommand(newDeadLettersCmd(deps))

	return rootCmd
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	if err := newRootCmd(&dependencies{Config: cfg}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
