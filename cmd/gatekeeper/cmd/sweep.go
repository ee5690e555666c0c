package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one expiration sweep and retention cleanup pass",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	svc, err := buildServices()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()

	result, err := svc.sweeper.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	removed, err := svc.sweeper.RunRetention(ctx)
	if err != nil {
		return fmt.Errorf("retention cleanup failed: %w", err)
	}

	fmt.Printf("expired %d, auto-approved %d, failed %d, removed %d\n",
		result.Expired, result.AutoApproved, result.Failed, removed)
	return nil
}
