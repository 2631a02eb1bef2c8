package main

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/Shivanand-hulikatti/symposium-backend/internal/config"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/database"
	"github.com/Shivanand-hulikatti/symposium-backend/internal/seed"
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := database.NewPool(ctx, config.Load().Database)
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Println("✓ Schema migrated")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Create or update events from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := seed.Apply(ctx, a.events, events)
			if err != nil {
				return fmt.Errorf("seeded %d of %d events: %w", n, len(events), err)
			}
			log.Printf("✓ Seeded %d events", n)
			return nil
		},
	}
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reminder sweep and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, config.Load())
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.sweeper().Sweep(ctx)
			if err != nil {
				return err
			}
			out, _ := json.Marshal(res)
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
