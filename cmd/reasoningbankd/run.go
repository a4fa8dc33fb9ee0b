package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/reasoningbank/internal/bank"
)

// runCmd keeps the process alive with the consolidation scheduler
// running, for deployments where an agent talks to the store directly
// and only background compaction is needed from this binary.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the background consolidation scheduler until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !a.cfg.Consolidation.Enabled {
			return fmt.Errorf("consolidation is disabled; set consolidation.enabled to use run")
		}

		scheduler, err := bank.NewConsolidationScheduler(a.service, a.logger,
			bank.WithInterval(a.cfg.Consolidation.Interval),
			bank.WithSessionIdle(a.cfg.Consolidation.SessionIdle))
		if err != nil {
			return err
		}
		if err := scheduler.Start(); err != nil {
			return err
		}
		defer scheduler.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
