package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drusifer/globalheadsortails/internal/config"
	"github.com/drusifer/globalheadsortails/internal/keystore"
	"github.com/drusifer/globalheadsortails/internal/provision"
	"github.com/drusifer/globalheadsortails/internal/report"
	"github.com/drusifer/globalheadsortails/pkg/ntag424"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Classify the tag currently on the reader without mutating it",
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
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

	state, err := provision.Inspect(conn, store)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	report.PrintTagState(state)
	return nil
}
