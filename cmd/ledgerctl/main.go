// Package main provides ledgerctl, the operator CLI of the trading core.
//
// Every command opens the configured stores, runs one operation through the
// same services the server uses, and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"papertrade/internal/config"
	"papertrade/internal/orchestrator"
)

// session is the state shared by subcommands for one invocation.
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	stores  *orchestrator.Stores
	core    *orchestrator.Orchestrator
	cleanup func()
}

var (
	configPath  string
	postgresDSN string
	useMemory   bool
	current     *session
)

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate accounts, orders, positions and the ledger of the trading core",
	Long: `ledgerctl runs single operations against the trading core stores.

Examples:
  ledgerctl migrate
  ledgerctl account create --owner u1 --name demo --balance 10000
  ledgerctl price set BTC-USD 50000
  ledgerctl order submit --account <id> --instrument BTC-USD --side buy --size 1 --leverage 10
  ledgerctl position close <position-id> --size 0.5
  ledgerctl ledger reconcile <account-id>`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "migrate" {
			return nil
		}
		s, err := openSession(cmd.Context(), orchestrator.StoreOptions{})
		if err != nil {
			return err
		}
		current = s
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if current != nil {
			current.close()
			current = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("PAPERTRADE_CONFIG"), "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&postgresDSN, "postgres-dsn", "", "PostgreSQL connection string (overrides config and POSTGRES_DSN)")
	rootCmd.PersistentFlags().BoolVar(&useMemory, "use-memory", false, "use throwaway in-memory storage")
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	err := rootCmd.ExecuteContext(context.Background())
	// PersistentPostRun is skipped when a command fails.
	if current != nil {
		current.close()
	}
	if err != nil {
		os.Exit(1)
	}
}

// openSession loads configuration and wires the services.
func openSession(ctx context.Context, opts orchestrator.StoreOptions) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if postgresDSN != "" {
		cfg.Storage.PostgresDSN = postgresDSN
	}
	if useMemory {
		cfg.Storage.UseMemory = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		return nil, err
	}

	stores, cleanup, err := orchestrator.OpenStores(ctx, cfg.Storage, opts, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	core, err := orchestrator.FromConfig(cfg, stores, nil, logger)
	if err != nil {
		cleanup()
		_ = logger.Sync()
		return nil, err
	}

	return &session{cfg: cfg, logger: logger, stores: stores, core: core, cleanup: cleanup}, nil
}

func (s *session) close() {
	s.cleanup()
	_ = s.logger.Sync()
}

// printJSON writes v as indented JSON to the command output.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

// parseDecimal parses a required decimal argument.
func parseDecimal(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return d, nil
}

// optionalDecimal parses a flag that may be left empty.
func optionalDecimal(name, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := parseDecimal(name, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
