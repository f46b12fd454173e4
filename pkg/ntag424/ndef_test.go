package ntag424

import (
	"strings"
	"testing"
)

func TestBuildSDMNDEFPlaceholderOrderAndOffsets(t *testing.T) {
	layout, err := BuildSDMNDEF("https://example.com/tap")
	if err != nil {
		t.Fatalf("BuildSDMNDEF: %v", err)
	}
	if !strings.Contains(layout.URL, "uid=00000000000000&ctr=000000&cmac=0000000000000000") {
		t.Fatalf("unexpected query order/placeholders: %s", layout.URL)
	}

	uidAt := layout.NDEF[layout.UIDOffset : layout.UIDOffset+14]
	if string(uidAt) != strings.Repeat("0", 14) {
		t.Fatalf("uid offset points at %q", uidAt)
	}
	ctrAt := layout.NDEF[layout.CtrOffset : layout.CtrOffset+6]
	if string(ctrAt) != strings.Repeat("0", 6) {
		t.Fatalf("ctr offset points at %q", ctrAt)
	}
	macAt := layout.NDEF[layout.MACOffset : layout.MACOffset+16]
	if string(macAt) != strings.Repeat("0", 16) {
		t.Fatalf("mac offset points at %q", macAt)
	}
}

func TestBuildSDMNDEFRejectsRelativeURL(t *testing.T) {
	if _, err := BuildSDMNDEF("/tap"); err == nil {
		t.Fatal("expected error for non-absolute URL")
	}
}

func TestBuildSDMNDEFPrefixCompression(t *testing.T) {
	layout, err := BuildSDMNDEF("https://www.example.com/tap")
	if err != nil {
		t.Fatalf("BuildSDMNDEF: %v", err)
	}
	// Record type 'U' (0x55) at offset 5, prefix code 0x02 for "https://www." at offset 6.
	if layout.NDEF[5] != 0x55 || layout.NDEF[6] != 0x02 {
		t.Fatalf("expected www prefix compression, got type=%02X prefix=%02X", layout.NDEF[5], layout.NDEF[6])
	}
}
