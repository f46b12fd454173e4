// Package report renders Inspector and key-store output as terminal
// tables for the operator-facing CLI commands.
package report

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/drusifer/globalheadsortails/internal/keystore"
	"github.com/drusifer/globalheadsortails/internal/provision"
)

var (
	colorHeader  = text.Colors{text.FgCyan, text.Bold}
	colorLabel   = text.Colors{text.FgYellow}
	colorValue   = text.Colors{text.FgWhite}
	colorGood    = text.Colors{text.FgGreen}
	colorBad     = text.Colors{text.FgRed}
	colorPending = text.Colors{text.FgYellow}
)

func classificationColor(c provision.Classification) text.Colors {
	switch c {
	case provision.ClassificationRegisteredProvisioned:
		return colorGood
	case provision.ClassificationInconsistent, provision.ClassificationRegisteredFailed:
		return colorBad
	default:
		return colorPending
	}
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	style := table.StyleRounded
	style.Color.Header = colorHeader
	style.Options.SeparateRows = false
	t.SetStyle(style)
	return t
}

// PrintTagState renders an Inspector snapshot as a two-column table.
func PrintTagState(state *provision.TagState) {
	t := newTable()
	t.SetTitle("TAG STATE")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: colorLabel, WidthMin: 18},
		{Number: 2, Colors: colorValue, WidthMin: 40},
	})

	t.AppendRow(table.Row{"UID", state.UID})
	t.AppendRow(table.Row{"Classification", classificationColor(state.Classification).Sprint(string(state.Classification))})
	if cv := state.ChipVersion; cv != nil {
		t.AppendRow(table.Row{"Chip version", fmt.Sprintf("HW %d.%d / vendor 0x%02X", cv.HWMajorVersion, cv.HWMinorVersion, cv.VendorID)})
	}
	t.AppendRow(table.Row{"Key version (slot 0)", fmt.Sprintf("0x%02X", state.Slot0KeyVersion)})
	t.AppendRow(table.Row{"Key version (slot 1)", fmt.Sprintf("0x%02X", state.Slot1KeyVersion)})
	t.AppendRow(table.Row{"Key version (slot 3)", fmt.Sprintf("0x%02X", state.Slot3KeyVersion)})
	if state.FileSettings != nil {
		t.AppendRow(table.Row{"File 02 SDM enabled", state.FileSettings.SDMEnabled})
		t.AppendRow(table.Row{"File 02 access rights", fmt.Sprintf("%02X %02X", state.FileSettings.AccessRights[0], state.FileSettings.AccessRights[1])})
	}
	t.AppendRow(table.Row{"NDEF length", len(state.NDEF)})
	if state.StoreRecord != nil {
		t.AppendRow(table.Row{"Store status", state.StoreRecord.Status})
		t.AppendRow(table.Row{"Coin name", state.StoreRecord.CoinName})
		t.AppendRow(table.Row{"Outcome", state.StoreRecord.Outcome})
	} else {
		t.AppendRow(table.Row{"Store status", "(no record)"})
	}
	t.Render()
}

// PrintKeyStoreRecords renders a set of key-store rows.
func PrintKeyStoreRecords(records []keystore.TagKeys) {
	t := newTable()
	t.SetTitle("KEY STORE")
	t.AppendHeader(table.Row{"UID", "Coin", "Outcome", "Status", "Provisioned", "Last used"})
	for _, r := range records {
		t.AppendRow(table.Row{r.UID, r.CoinName, r.Outcome, r.Status, r.ProvisionedDate, r.LastUsedDate})
	}
	t.Render()
}
