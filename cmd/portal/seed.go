package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/printflow/portal/internal/logging"
	"github.com/printflow/portal/internal/portal/profile"
	"github.com/printflow/portal/internal/portal/seed"
	"github.com/printflow/portal/internal/portal/support"
	"github.com/printflow/portal/supabase/client"
)

var (
	seedFixture string
	seedTimeout time.Duration
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a demo customer into a development project",
	Long: `Create (or sign in) the fixture's demo customer and insert its
orders, invoices and support tickets. Rows that already exist are left
alone, so the command can be re-run.

Requires SUPABASE_SERVICE_ROLE_KEY (or SERVICE_ROLE_KEY); never point it
at production.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFixture, "fixture", "seed.yaml", "Path to the YAML seed fixture")
	seedCmd.Flags().DurationVar(&seedTimeout, "timeout", time.Minute, "Overall timeout")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Supabase.ServiceRoleKey == "" {
		return errors.New("seed: SUPABASE_SERVICE_ROLE_KEY is required")
	}

	fixture, err := seed.LoadFixture(seedFixture)
	if err != nil {
		return err
	}

	// Sign-in goes through the public key; table writes use the service
	// role so row-level security does not apply.
	public, err := client.New(client.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.AnonKey})
	if err != nil {
		return fmt.Errorf("supabase client: %w", err)
	}
	admin, err := client.New(client.Config{URL: cfg.Supabase.URL, APIKey: cfg.Supabase.ServiceRoleKey})
	if err != nil {
		return fmt.Errorf("supabase client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), seedTimeout)
	defer cancel()

	seeder := &seed.Seeder{
		Identity: public.Auth(),
		DB:       admin,
		Profiles: profile.NewSupabaseRepository(admin),
		Tickets:  support.NewSupabaseRepository(admin),
		Logger:   logging.New("seed", cfg.Log.Level, "text"),
	}
	report, err := seeder.Run(ctx, fixture)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Seeded customer %s (profile created: %v): %d orders, %d invoices, %d tickets\n",
		report.CustomerID, report.ProfileCreated, report.Orders, report.Payments, report.Tickets)
	return nil
}
