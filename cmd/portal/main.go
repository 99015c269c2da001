// Package main is the PrintFlow customer portal binary: the HTTP server,
// a config check and the development seeder.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/printflow/portal/internal/config"
)

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "PrintFlow customer portal",
	Long: `PrintFlow customer portal backed by Supabase.

Configuration comes from defaults, the optional --config YAML file,
the --env-file dotenv file and the environment, in increasing precedence.

Available subcommands:
  serve        - Run the HTTP server (default)
  check-config - Validate configuration and print the effective values
  seed         - Load demo data into a development project`,
	SilenceUsage: true,
	RunE:         runServe,
}

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "addr:        %s\n", cfg.Server.Addr)
		fmt.Fprintf(out, "public url:  %s\n", cfg.Server.PublicURL)
		fmt.Fprintf(out, "supabase:    %s (resilience: %v)\n", cfg.Supabase.URL, cfg.Supabase.Resilience)
		fmt.Fprintf(out, "jwt secret:  %v\n", cfg.Supabase.JWTSecret != "")
		store := "memory"
		if cfg.Session.RedisAddr != "" {
			store = "redis " + cfg.Session.RedisAddr
		}
		fmt.Fprintf(out, "sessions:    %s, ttl %s, idle %s\n", store, cfg.Session.TTL, cfg.Session.IdleEviction)
		fmt.Fprintf(out, "reset url:   %s\n", cfg.Auth.ResetRedirectURL)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file (ignored when missing)")

	rootCmd.AddCommand(serveCmd, checkConfigCmd, seedCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{File: configFile, EnvFiles: []string{envFile}})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
