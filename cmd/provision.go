package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drusifer/globalheadsortails/internal/config"
	"github.com/drusifer/globalheadsortails/internal/keystore"
	"github.com/drusifer/globalheadsortails/internal/provision"
	"github.com/drusifer/globalheadsortails/pkg/ntag424"
)

var provisionCmd = &cobra.Command{
	Use:   "provision",
	Short: "Provision the tag currently on the reader",
	RunE:  runProvision,
}

func init() {
	rootCmd.AddCommand(provisionCmd)
}

func runProvision(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(config.ValidationFull)
	if err != nil {
		return err
	}

	store, err := keystore.Open(c.Store.Path, c.Store.BackupSuffix)
	if err != nil {
		return err
	}

	conn, err := ntag424.Connect(*c.Runtime.ReaderIndex)
	if err != nil {
		return fmt.Errorf("connect to reader: %w", err)
	}
	defer conn.Close()

	engine := &provision.Engine{Store: store, BaseURL: c.URL}
	minted, err := engine.Provision(conn)
	if err != nil {
		return fmt.Errorf("provision: %w", err)
	}

	fmt.Printf("provisioned %s\n", minted.UID)
	return nil
}
