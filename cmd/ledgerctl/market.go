package main

import (
	"time"

	"github.com/spf13/cobra"
)

var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Read and set reference prices",
}

var priceSetCmd = &cobra.Command{
	Use:   "set <instrument> <price>",
	Short: "Record a reference price for an instrument id or symbol",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inst, err := current.core.ResolveInstrument(ctx, args[0])
		if err != nil {
			return err
		}
		price, err := parseDecimal("price", args[1])
		if err != nil {
			return err
		}
		if err := current.core.SetPrice(ctx, inst.ID, price); err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"instrument_id": inst.ID, "symbol": inst.Symbol, "price": price})
	},
}

var priceGetCmd = &cobra.Command{
	Use:   "get <instrument>",
	Short: "Show the current reference price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inst, err := current.core.ResolveInstrument(ctx, args[0])
		if err != nil {
			return err
		}
		price, ok, err := current.core.PnL.CurrentPrice(ctx, inst.ID)
		if err != nil {
			return err
		}
		out := map[string]any{"instrument_id": inst.ID, "symbol": inst.Symbol, "available": ok}
		if ok {
			out["price"] = price
		}
		return printJSON(cmd, out)
	},
}

var instrumentCmd = &cobra.Command{
	Use:   "instrument",
	Short: "List and seed tradeable instruments",
}

var instrumentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List instruments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		insts, err := current.core.Instruments(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, insts)
	},
}

var instrumentSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the instruments of the configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := current.core.SeedInstruments(cmd.Context(), current.cfg.Instruments)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var pnlCmd = &cobra.Command{
	Use:   "pnl <account-id>",
	Short: "Aggregate realized and unrealized P&L of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := current.core.PnL.Aggregate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, summary)
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one mark-to-market and stop-loss/take-profit pass",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		stats, err := current.core.Monitor.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"open":      stats.Open,
			"marked":    stats.Marked,
			"triggered": stats.Triggered,
			"failed":    stats.Failed,
			"duration":  time.Since(start).String(),
		})
	},
}

func init() {
	priceCmd.AddCommand(priceSetCmd, priceGetCmd)
	instrumentCmd.AddCommand(instrumentListCmd, instrumentSeedCmd)
	rootCmd.AddCommand(priceCmd, instrumentCmd, pnlCmd, sweepCmd)
}
