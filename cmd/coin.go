package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drusifer/globalheadsortails/internal/config"
	"github.com/drusifer/globalheadsortails/internal/keystore"
	"github.com/drusifer/globalheadsortails/internal/report"
)

var listCoinCmd = &cobra.Command{
	Use:   "list-coin <coin-name>",
	Short: "Show the heads/tails key-store records sharing a coin name",
	Args:  cobra.ExactArgs(1),
	RunE:  runListCoin,
}

var (
	assignCoinOutcome string
)

var assignCoinCmd = &cobra.Command{
	Use:   "assign-coin <uid> <coin-name>",
	Short: "Label a provisioned tag's record with a coin name and outcome",
	Args:  cobra.ExactArgs(2),
	RunE:  runAssignCoin,
}

func init() {
	assignCoinCmd.Flags().StringVar(&assignCoinOutcome, "outcome", "", fmt.Sprintf("one of %s/%s/%s (required)", keystore.OutcomeHeads, keystore.OutcomeTails, keystore.OutcomeInvalid))
	assignCoinCmd.MarkFlagRequired("outcome")
	rootCmd.AddCommand(listCoinCmd)
	rootCmd.AddCommand(assignCoinCmd)
}

func runListCoin(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(config.ValidationFull)
	if err != nil {
		return err
	}
	store, err := keystore.Open(c.Store.Path, c.Store.BackupSuffix)
	if err != nil {
		return err
	}
	records := store.ListCoin(args[0])
	report.PrintKeyStoreRecords(records)
	return nil
}

func runAssignCoin(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(config.ValidationFull)
	if err != nil {
		return err
	}
	store, err := keystore.Open(c.Store.Path, c.Store.BackupSuffix)
	if err != nil {
		return err
	}
	uid, coinName := args[0], args[1]
	if err := store.AssignCoin(uid, coinName, assignCoinOutcome); err != nil {
		return fmt.Errorf("assign coin: %w", err)
	}
	fmt.Printf("assigned %s to coin %q as %s\n", uid, coinName, assignCoinOutcome)
	return nil
}
