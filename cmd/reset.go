package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drusifer/globalheadsortails/internal/config"
	"github.com/drusifer/globalheadsortails/internal/keystore"
	"github.com/drusifer/globalheadsortails/internal/provision"
	"github.com/drusifer/globalheadsortails/pkg/ntag424"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Factory-reset the tag currently on the reader using its stored keys",
	RunE:  runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
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

	uid, err := ntag424.GetUID(conn)
	if err != nil {
		return fmt.Errorf("get uid: %w", err)
	}
	uidHex := hexUpper(uid)
	record, ok := store.Get(uidHex)
	if !ok {
		return fmt.Errorf("no key-store record for %s; nothing to reset against", uidHex)
	}

	engine := &provision.Engine{Store: store, BaseURL: c.URL}
	if err := engine.Reset(conn, record); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	record.Status = keystore.StatusFactory
	if err := store.Put(record); err != nil {
		return err
	}

	fmt.Printf("reset %s to factory defaults\n", uidHex)
	return nil
}

func hexUpper(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0x0F]
	}
	return string(out)
}
