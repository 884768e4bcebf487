package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"papertrade/internal/domain"
	"papertrade/internal/journal"
	"papertrade/internal/storage"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Read and reconcile the append-only ledger",
}

var ledgerType string

var ledgerListCmd = &cobra.Command{
	Use:   "list <account-id>",
	Short: "List ledger entries of an account, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t := domain.EntryType(ledgerType)
		if t != "" && !t.Valid() {
			return fmt.Errorf("unknown entry type %q", ledgerType)
		}
		entries, err := current.core.Ledger.List(cmd.Context(), args[0], storage.LedgerFilter{
			Type:   t,
			Limit:  listLimit,
			Offset: listOffset,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, entries)
	},
}

var ledgerReconcileCmd = &cobra.Command{
	Use:   "reconcile <account-id>",
	Short: "Compare the stored balance with the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := current.core.Ledger.Reconcile(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := printJSON(cmd, report); err != nil {
			return err
		}
		if !report.IsReconciled {
			return fmt.Errorf("account %s: balance and ledger disagree", args[0])
		}
		return nil
	},
}

var ledgerJournalCmd = &cobra.Command{
	Use:   "journal <account-id>",
	Short: "Show the local journal mirror and last snapshot of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, ok := current.stores.Journal.(*journal.SQLiteJournal)
		if !ok {
			return errors.New("no journal configured; set storage.journal_path")
		}
		entries, err := j.ListEntries(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		snap, err := j.LatestSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"entries":  entries,
			"snapshot": snap,
		})
	},
}

func init() {
	ledgerListCmd.Flags().StringVar(&ledgerType, "type", "", "only entries of this type")
	ledgerListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum rows, 0 for all")
	ledgerListCmd.Flags().IntVar(&listOffset, "offset", 0, "rows to skip")

	ledgerCmd.AddCommand(ledgerListCmd, ledgerReconcileCmd, ledgerJournalCmd)
	rootCmd.AddCommand(ledgerCmd)
}
