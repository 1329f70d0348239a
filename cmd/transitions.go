package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var processTransitionsCmd = &cobra.Command{
	Use:   "process-transitions",
	Short: "Run one lifecycle pass now and print how many jobs moved",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		defer logger.Sync()

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.TransitionsTimeout)
		defer cancel()

		res, err := a.engine.ProcessTransitions(ctx, a.clock.Now())
		if err != nil {
			logger.Error("lifecycle pass failed",
				zap.Int64("moved_to_dump", res.MovedToDump),
				zap.Int64("moved_to_inactive", res.MovedToInactive),
				zap.Error(err))
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}
