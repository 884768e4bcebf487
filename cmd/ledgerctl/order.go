package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"papertrade/internal/domain"
	"papertrade/internal/execution"
	"papertrade/internal/storage"
)

var orderCmd = &cobra.Command{
	Use:   "order",
	Short: "Submit, cancel and list simulated orders",
}

var (
	orderAccount    string
	orderInstrument string
	orderType       string
	orderSide       string
	orderSize       string
	orderPrice      string
	orderStopPrice  string
	orderLeverage   int
	orderStatus     string
	listLimit       int
	listOffset      int
)

var orderSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit an order and execute it against the current price",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		inst, err := current.core.ResolveInstrument(ctx, orderInstrument)
		if err != nil {
			return err
		}
		size, err := parseDecimal("size", orderSize)
		if err != nil {
			return err
		}
		price, err := optionalDecimal("price", orderPrice)
		if err != nil {
			return err
		}
		stop, err := optionalDecimal("stop-price", orderStopPrice)
		if err != nil {
			return err
		}

		res, err := current.core.Engine.Submit(ctx, execution.OrderRequest{
			AccountID:    orderAccount,
			InstrumentID: inst.ID,
			Type:         domain.OrderType(orderType),
			Side:         domain.OrderSide(orderSide),
			Size:         size,
			Price:        price,
			StopPrice:    stop,
			Leverage:     orderLeverage,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var orderCancelCmd = &cobra.Command{
	Use:   "cancel <order-id>",
	Short: "Cancel a pending order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := current.core.Engine.Cancel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, o)
	},
}

var orderGetCmd = &cobra.Command{
	Use:   "get <order-id>",
	Short: "Show one order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := current.core.Engine.GetOrder(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, o)
	},
}

var orderListCmd = &cobra.Command{
	Use:   "list <account-id>",
	Short: "List orders of an account, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := domain.OrderStatus(orderStatus)
		switch status {
		case "", domain.OrderStatusPending, domain.OrderStatusFilled,
			domain.OrderStatusRejected, domain.OrderStatusCanceled:
		default:
			return fmt.Errorf("unknown order status %q", orderStatus)
		}
		orders, err := current.core.Engine.ListOrders(cmd.Context(), args[0], storage.OrderFilter{
			Status: status,
			Limit:  listLimit,
			Offset: listOffset,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, orders)
	},
}

func init() {
	f := orderSubmitCmd.Flags()
	f.StringVar(&orderAccount, "account", "", "account id")
	f.StringVar(&orderInstrument, "instrument", "", "instrument id or symbol")
	f.StringVar(&orderType, "type", string(domain.OrderTypeMarket), "market, limit, stop, stop_limit, take_profit or trailing_stop")
	f.StringVar(&orderSide, "side", "", "buy or sell")
	f.StringVar(&orderSize, "size", "", "order size in base units")
	f.StringVar(&orderPrice, "price", "", "limit price")
	f.StringVar(&orderStopPrice, "stop-price", "", "stop trigger price")
	f.IntVar(&orderLeverage, "leverage", 1, "leverage applied to margin")
	for _, name := range []string{"account", "instrument", "side", "size"} {
		_ = orderSubmitCmd.MarkFlagRequired(name)
	}

	orderListCmd.Flags().StringVar(&orderStatus, "status", "", "only orders in this status")
	orderListCmd.Flags().IntVar(&listLimit, "limit", 50, "maximum rows, 0 for all")
	orderListCmd.Flags().IntVar(&listOffset, "offset", 0, "rows to skip")

	orderCmd.AddCommand(orderSubmitCmd, orderCancelCmd, orderGetCmd, orderListCmd)
	rootCmd.AddCommand(orderCmd)
}
