package cmd

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drusifer/globalheadsortails/internal/config"
	"github.com/drusifer/globalheadsortails/pkg/ntag424"
)

var (
	emulateUIDHex    string
	emulateCounter   uint32
	emulateSDMKeyHex string
	emulateVerify    bool
)

var emulateCmd = &cobra.Command{
	Use:   "emulate-sdm",
	Short: "Generate (and optionally verify) a tap URL without touching a reader",
	RunE:  runEmulate,
}

func init() {
	emulateCmd.Flags().StringVar(&emulateUIDHex, "uid", "", "14-char hex tag UID (required)")
	emulateCmd.Flags().Uint32Var(&emulateCounter, "ctr", 0, "SDM read counter value")
	emulateCmd.Flags().StringVar(&emulateSDMKeyHex, "sdm-key", "", "32-char hex SDM MAC key (required)")
	emulateCmd.Flags().BoolVar(&emulateVerify, "verify", false, "self-verify the generated URL")
	emulateCmd.MarkFlagRequired("uid")
	emulateCmd.MarkFlagRequired("sdm-key")
	rootCmd.AddCommand(emulateCmd)
}

func runEmulate(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(config.ValidationEmulator)
	if err != nil {
		return err
	}

	if len(emulateUIDHex) != 14 {
		return fmt.Errorf("uid must be 14 hex characters, got %d", len(emulateUIDHex))
	}
	uid, err := hex.DecodeString(emulateUIDHex)
	if err != nil {
		return fmt.Errorf("decode uid: %w", err)
	}

	if len(emulateSDMKeyHex) != 32 {
		return fmt.Errorf("sdm-key must be 32 hex characters, got %d", len(emulateSDMKeyHex))
	}
	sdmKey, err := hex.DecodeString(emulateSDMKeyHex)
	if err != nil {
		return fmt.Errorf("decode sdm-key: %w", err)
	}

	url, err := ntag424.GenerateSDMURL(c.URL, uid, emulateCounter, sdmKey)
	if err != nil {
		return fmt.Errorf("generate sdm url: %w", err)
	}

	fmt.Printf("UID:     %s\n", emulateUIDHex)
	fmt.Printf("Counter: %d\n", emulateCounter)
	fmt.Printf("URL:     %s\n", url)

	if emulateVerify {
		match, _, computedMAC, err := ntag424.VerifySDMMACDetailed(url, sdmKey)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		if match {
			fmt.Println("Verify:  OK")
		} else {
			fmt.Printf("Verify:  FAILED (computed %s)\n", computedMAC)
		}
	}
	return nil
}
