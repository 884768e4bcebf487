package main

import (
	"errors"

	"github.com/spf13/cobra"

	"papertrade/internal/orchestrator"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded PostgreSQL and ClickHouse schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if useMemory {
			return errors.New("migrate needs PostgreSQL; drop --use-memory")
		}
		s, err := openSession(cmd.Context(), orchestrator.StoreOptions{Migrate: true})
		if err != nil {
			return err
		}
		defer s.close()

		seeded, err := s.core.SeedInstruments(cmd.Context(), s.cfg.Instruments)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"migrated":           true,
			"instruments_seeded": seeded.Inserted,
			"prices_seeded":      seeded.PricesSeeded,
		})
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
