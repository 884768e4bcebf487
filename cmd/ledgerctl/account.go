package main

import (
	"github.com/spf13/cobra"

	"papertrade/internal/account"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Create, inspect and fund trading accounts",
}

var (
	createOwner    string
	createName     string
	createCurrency string
	createBalance  string
	createLeverage int
	createDemo     bool
	fundNote       string
)

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account funded with an initial deposit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		balance, err := optionalDecimal("balance", createBalance)
		if err != nil {
			return err
		}
		acct, err := current.core.Accounts.Create(cmd.Context(), account.CreateRequest{
			OwnerID:        createOwner,
			Name:           createName,
			Currency:       createCurrency,
			InitialBalance: balance,
			MaxLeverage:    createLeverage,
			IsDemo:         createDemo,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, acct)
	},
}

var accountGetCmd = &cobra.Command{
	Use:   "get <account-id>",
	Short: "Show one account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := current.core.Accounts.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, acct)
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts, optionally for one owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		accts, err := current.core.Accounts.List(cmd.Context(), createOwner)
		if err != nil {
			return err
		}
		return printJSON(cmd, accts)
	},
}

var accountDepositCmd = &cobra.Command{
	Use:   "deposit <account-id> <amount>",
	Short: "Credit an account through the ledger",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseDecimal("amount", args[1])
		if err != nil {
			return err
		}
		entry, err := current.core.Accounts.Deposit(cmd.Context(), args[0], amount, fundNote)
		if err != nil {
			return err
		}
		return printJSON(cmd, entry)
	},
}

var accountWithdrawCmd = &cobra.Command{
	Use:   "withdraw <account-id> <amount>",
	Short: "Debit an account through the ledger",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		amount, err := parseDecimal("amount", args[1])
		if err != nil {
			return err
		}
		entry, err := current.core.Accounts.Withdraw(cmd.Context(), args[0], amount, fundNote)
		if err != nil {
			return err
		}
		return printJSON(cmd, entry)
	},
}

var accountDeactivateCmd = &cobra.Command{
	Use:   "deactivate <account-id>",
	Short: "Stop an account from placing new orders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		acct, err := current.core.Accounts.Deactivate(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, acct)
	},
}

func init() {
	accountCreateCmd.Flags().StringVar(&createOwner, "owner", "", "owner identifier")
	accountCreateCmd.Flags().StringVar(&createName, "name", "", "display name")
	accountCreateCmd.Flags().StringVar(&createCurrency, "currency", "", "base currency (default USD)")
	accountCreateCmd.Flags().StringVar(&createBalance, "balance", "", "initial balance (default 10000)")
	accountCreateCmd.Flags().IntVar(&createLeverage, "max-leverage", 0, "maximum leverage (default 10)")
	accountCreateCmd.Flags().BoolVar(&createDemo, "demo", true, "mark the account as demo")
	_ = accountCreateCmd.MarkFlagRequired("owner")
	_ = accountCreateCmd.MarkFlagRequired("name")

	accountListCmd.Flags().StringVar(&createOwner, "owner", "", "only accounts of this owner")

	accountDepositCmd.Flags().StringVar(&fundNote, "source", "", "funding source recorded in metadata")
	accountWithdrawCmd.Flags().StringVar(&fundNote, "note", "", "note recorded in metadata")

	accountCmd.AddCommand(accountCreateCmd, accountGetCmd, accountListCmd,
		accountDepositCmd, accountWithdrawCmd, accountDeactivateCmd)
	rootCmd.AddCommand(accountCmd)
}
