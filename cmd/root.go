package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"movefines/internal/config"
	"movefines/internal/handlers"
	"movefines/internal/repository"
	"movefines/internal/server"

	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "movefines",
		Short: "Robot for fines on late move registrations (folkeregisterbøder).",
		Long: `
Reads fine requests from the robot inbox, queues one task per spreadsheet row
and drives every task through eFlyt, KMD Nova, Digital Post and SAP.
`,
		Example: `
	# Serve the HTTP API (health, run, intake, status)
	movefines serve

	# Make one robot pass with retries and exit
	movefines run
`,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCtx := cmd.Context()
			cfg := setup(runCtx)
			defer cfg.Close(context.Background())

			app, err := build(runCtx, cfg)
			if err != nil {
				return err
			}

			h := handlers.New(cfg, app.Runner, app.Intake)
			h.BaseContext = runCtx
			srv := server.NewServer(cfg.Port, h, repository.NewTokenRepository(cfg.Postgres))
			log.Printf("[HTTP] listening on :%s", cfg.Port)
			err = srv.Run(runCtx)

			// connections close on return; let a running pass persist first
			log.Printf("[HTTP] stopped, waiting for a running pass")
			h.Wait()
			return err
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Check the inbox, work the queue and report, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runCtx := cmd.Context()
			cfg := setup(runCtx)
			defer cfg.Close(context.Background())

			app, err := build(runCtx, cfg)
			if err != nil {
				return err
			}

			res, err := app.Runner.Run(runCtx)
			if err != nil {
				return err
			}
			fmt.Printf("✅ %d iterations, stopped on %s\n", res.Iterations, res.Stop)
			return nil
		},
	}
}

// setup opens and checks every connection and prepares the schema.
func setup(runCtx context.Context) *config.Config {
	setupCtx, cancel := context.WithTimeout(runCtx, 30*time.Second)
	defer cancel()

	cfg := config.Init(setupCtx)
	fmt.Println("✅ All connections successfully established!")

	if err := migrate(setupCtx, cfg); err != nil {
		log.Fatalf("❌ Schema setup failed: %v", err)
	}
	if err := cfg.CheckConnections(setupCtx); err != nil {
		log.Fatalf("❌ Connection check failed: %v", err)
	}
	fmt.Println("🟢 All connections OK")
	return cfg
}
