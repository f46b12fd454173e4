// Package provision drives the three-session key-rotation-and-configure
// state machine that turns a factory NTAG 424 DNA tag into a live game
// coin, plus the purely observational inspector used to classify a tag
// before deciding what to do with it.
package provision

import (
	"strings"

	"github.com/drusifer/globalheadsortails/internal/keystore"
	"github.com/drusifer/globalheadsortails/pkg/ntag424"
)

// Classification is the coarse bucket an Inspector sorts a tag into.
type Classification string

const (
	ClassificationUnregisteredFactory   Classification = "Unregistered/Factory"
	ClassificationRegisteredFactory     Classification = "Registered/Factory"
	ClassificationRegisteredProvisioned Classification = "Registered/Provisioned"
	ClassificationRegisteredFailed      Classification = "Registered/Failed"
	ClassificationInconsistent          Classification = "Inconsistent"
)

// TagState is the Inspector's read-only snapshot of a tag.
type TagState struct {
	UID             string
	Classification  Classification
	ChipVersion     *ntag424.ChipVersion
	Slot0KeyVersion byte
	Slot1KeyVersion byte
	Slot3KeyVersion byte
	FileSettings    *ntag424.FileSettings
	NDEF            []byte
	StoreRecord     *keystore.TagKeys
}

// looksFactoryNDEF reports whether ndef is empty or the factory-default
// empty-NDEF-message shape (NLEN==0).
func looksFactoryNDEF(ndef []byte) bool {
	if len(ndef) < 2 {
		return true
	}
	nlen := int(ndef[0])<<8 | int(ndef[1])
	return nlen == 0
}

// Inspect reads UID, key versions, file-02 settings, and file-02 content
// without mutating anything, then classifies the tag against the store.
// It never authenticates: all of these reads are either unauthenticated or
// rely on the tag's current (possibly free) access rights.
func Inspect(card ntag424.Card, store *keystore.Store) (*TagState, error) {
	uid, err := ntag424.GetUID(card)
	if err != nil {
		return nil, err
	}
	uidHex := strings.ToUpper(hexEncode(uid))

	chipVersion, err := ntag424.GetChipVersion(card)
	if err != nil {
		return nil, err
	}

	if err := ntag424.SelectPiccApplication(card); err != nil {
		return nil, err
	}

	slot0, err := ntag424.GetKeyVersionPlain(card, 0)
	if err != nil {
		return nil, err
	}
	slot1, err := ntag424.GetKeyVersionPlain(card, 1)
	if err != nil {
		return nil, err
	}
	slot3, err := ntag424.GetKeyVersionPlain(card, 3)
	if err != nil {
		return nil, err
	}

	fileSettings, err := ntag424.GetFileSettingsPlain(card, 0x02)
	if err != nil {
		return nil, err
	}

	ndef, err := ntag424.ReadNDEF(card)
	if err != nil {
		return nil, err
	}

	state := &TagState{
		UID:             uidHex,
		ChipVersion:     chipVersion,
		Slot0KeyVersion: slot0,
		Slot1KeyVersion: slot1,
		Slot3KeyVersion: slot3,
		FileSettings:    fileSettings,
		NDEF:            ndef,
	}

	record, hasRecord := store.Get(uidHex)
	if hasRecord {
		state.StoreRecord = &record
	}

	tagFactoryShaped := looksFactoryNDEF(ndef) && slot0 == 0 && !fileSettings.SDMEnabled

	switch {
	case !hasRecord:
		if tagFactoryShaped {
			state.Classification = ClassificationUnregisteredFactory
		} else {
			state.Classification = ClassificationInconsistent
		}
	case record.Status == keystore.StatusFactory:
		if tagFactoryShaped {
			state.Classification = ClassificationRegisteredFactory
		} else {
			state.Classification = ClassificationInconsistent
		}
	case record.Status == keystore.StatusProvisioned:
		if tagFactoryShaped {
			state.Classification = ClassificationInconsistent
		} else {
			state.Classification = ClassificationRegisteredProvisioned
		}
	case record.Status == keystore.StatusPending, record.Status == keystore.StatusFailed:
		state.Classification = ClassificationRegisteredFailed
	default:
		state.Classification = ClassificationInconsistent
	}

	return state, nil
}

func hexEncode(b []byte) string {
	const digits = "0123456789ABCDEF"
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = digits[v>>4]
		out[i*2+1] = digits[v&0x0F]
	}
	return string(out)
}
