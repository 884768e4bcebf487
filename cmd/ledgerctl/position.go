package main

import (
	"github.com/spf13/cobra"

	"papertrade/internal/storage"
)

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Inspect, protect and close positions",
}

var (
	positionOpenOnly bool
	closeSize        string
	stopLoss         string
	takeProfit       string
)

var positionListCmd = &cobra.Command{
	Use:   "list <account-id>",
	Short: "List positions of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f := storage.PositionFilter{Limit: listLimit, Offset: listOffset}
		if cmd.Flags().Changed("open") {
			f.IsOpen = &positionOpenOnly
		}
		positions, err := current.core.Book.ListByAccount(cmd.Context(), args[0], f)
		if err != nil {
			return err
		}
		return printJSON(cmd, positions)
	},
}

var positionGetCmd = &cobra.Command{
	Use:   "get <position-id>",
	Short: "Mark one position to the current price and show it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := current.core.PnL.Refresh(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, p)
	},
}

var positionCloseCmd = &cobra.Command{
	Use:   "close <position-id>",
	Short: "Close a position fully or partially at the current price",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := optionalDecimal("size", closeSize)
		if err != nil {
			return err
		}
		res, err := current.core.Book.Close(cmd.Context(), args[0], size)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var positionProtectCmd = &cobra.Command{
	Use:   "protect <position-id>",
	Short: "Set stop-loss and take-profit levels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sl, err := optionalDecimal("stop-loss", stopLoss)
		if err != nil {
			return err
		}
		tp, err := optionalDecimal("take-profit", takeProfit)
		if err != nil {
			return err
		}
		p, err := current.core.Book.UpdateProtection(cmd.Context(), args[0], sl, tp)
		if err != nil {
			return err
		}
		return printJSON(cmd, p)
	},
}

func init() {
	positionListCmd.Flags().BoolVar(&positionOpenOnly, "open", true, "filter by open state; omit for all")
	positionListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum rows, 0 for all")
	positionListCmd.Flags().IntVar(&listOffset, "offset", 0, "rows to skip")

	positionCloseCmd.Flags().StringVar(&closeSize, "size", "", "units to close; omit to close fully")

	positionProtectCmd.Flags().StringVar(&stopLoss, "stop-loss", "", "stop-loss price; omit to keep")
	positionProtectCmd.Flags().StringVar(&takeProfit, "take-profit", "", "take-profit price; omit to keep")

	positionCmd.AddCommand(positionListCmd, positionGetCmd, positionCloseCmd, positionProtectCmd)
	rootCmd.AddCommand(positionCmd)
}
