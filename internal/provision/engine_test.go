package provision

import (
	"bytes"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drusifer/globalheadsortails/internal/keystore"
)

func openTestStore(t *testing.T) *keystore.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keys.csv")
	s, err := keystore.Open(path, "_backup.csv")
	if err != nil {
		t.Fatalf("keystore.Open: %v", err)
	}
	return s
}

func uidHexOf(tag *virtualTag) string {
	return strings.ToUpper(hex.EncodeToString(tag.uid[:]))
}

func TestProvisionFreshFactoryHappyPath(t *testing.T) {
	store := openTestStore(t)
	tag := newVirtualTag([7]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	engine := &Engine{Store: store, BaseURL: "https://example.com/tap"}

	minted, err := engine.Provision(tag)
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}

	rec, ok := store.Get(uidHexOf(tag))
	if !ok {
		t.Fatal("expected a store record after successful provisioning")
	}
	if rec.Status != keystore.StatusProvisioned {
		t.Fatalf("expected status provisioned, got %q", rec.Status)
	}
	if rec.PiccMasterKey != minted.PiccMasterKey {
		t.Fatal("stored keys must match the keys minted during provisioning")
	}
	if tag.keys[0] != minted.PiccMasterKey || tag.keys[1] != minted.AppReadKey || tag.keys[3] != minted.SDMMACKey {
		t.Fatal("on-tag keys must match the minted keys for slots 0, 1, and 3")
	}
	if !tag.sdmEnabled {
		t.Fatal("expected file 02 to have SDM enabled after provisioning")
	}
	if !bytes.Contains(tag.ndef, []byte("cmac=")) {
		t.Fatal("expected the written NDEF to contain the cmac query placeholder")
	}
}

func TestProvisionSessionTwoFailureRollsBackStore(t *testing.T) {
	store := openTestStore(t)
	tag := newVirtualTag([7]byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66})
	tag.failSlotSet = true
	tag.failSlot = 1
	engine := &Engine{Store: store, BaseURL: "https://example.com/tap"}

	_, err := engine.Provision(tag)
	if err == nil {
		t.Fatal("expected session-2 ChangeKey failure to propagate")
	}

	if _, ok := store.Get(uidHexOf(tag)); ok {
		t.Fatal("expected no store record after rollback of a previously-unregistered tag")
	}
	var zero [16]byte
	if tag.keys[0] == zero {
		t.Fatal("expected slot 0 to have already rotated before session 2 failed")
	}
}

func TestReprovisionUsesStoredOldKeys(t *testing.T) {
	store := openTestStore(t)
	tag := newVirtualTag([7]byte{0x04, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF})
	engine := &Engine{Store: store, BaseURL: "https://example.com/tap"}

	first, err := engine.Provision(tag)
	if err != nil {
		t.Fatalf("first Provision: %v", err)
	}

	second, err := engine.Provision(tag)
	if err != nil {
		t.Fatalf("reprovision: %v", err)
	}
	if second.PiccMasterKey == first.PiccMasterKey {
		t.Fatal("expected reprovisioning to mint a fresh set of keys")
	}
	rec, ok := store.Get(uidHexOf(tag))
	if !ok || rec.Status != keystore.StatusProvisioned {
		t.Fatalf("expected provisioned record after reprovision, got %+v (ok=%v)", rec, ok)
	}
	if tag.keys[0] != second.PiccMasterKey {
		t.Fatal("expected on-tag slot 0 to hold the second provisioning's key")
	}
}
