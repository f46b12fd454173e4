package provision

import (
	"fmt"

	"github.com/drusifer/globalheadsortails/internal/keystore"
	"github.com/drusifer/globalheadsortails/pkg/ntag424"
)

const (
	picMasterSlot = 0x00
	appReadSlot   = 0x01
	sdmMacSlot    = 0x03
	ndefFileNo    = 0x02
	ndefFileID    = 0xE104
)

// Engine runs the provisioning state machine over one card scope at a
// time. It holds no state between calls; every method opens and closes
// its own sessions.
type Engine struct {
	Store   *keystore.Store
	BaseURL string
}

// StateError reports a provisioning-engine precondition violation, such as
// attempting to provision a tag the Inspector found inconsistent.
type StateError struct {
	UID     string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("provision: %s: %s", e.UID, e.Message)
}

var zeroKey = make([]byte, 16)

// Provision runs the appropriate path (A or B) for the tag currently in
// the reader, chosen by classifying it first. Path C is Reset, which
// Provision never runs. It refuses to act on a tag the Inspector finds
// Inconsistent without an explicit reset.
func (e *Engine) Provision(card ntag424.Card) (*keystore.TagKeys, error) {
	state, err := Inspect(card, e.Store)
	if err != nil {
		return nil, err
	}

	switch state.Classification {
	case ClassificationUnregisteredFactory, ClassificationRegisteredFactory:
		return e.provisionFreshFactory(card, state.UID)
	case ClassificationRegisteredProvisioned:
		return e.reprovision(card, state)
	case ClassificationInconsistent:
		return nil, &StateError{UID: state.UID, Message: "tag is inconsistent with its store record; reset before provisioning"}
	case ClassificationRegisteredFailed:
		return nil, &StateError{UID: state.UID, Message: "tag has a pending/failed record; reset or resume before provisioning"}
	default:
		return nil, &StateError{UID: state.UID, Message: "unrecognized classification"}
	}
}

// provisionFreshFactory implements Path A: session 1 rotates slot 0 from
// all-zeros, session 2 rotates slots 1 and 3 from all-zeros, the NDEF is
// written while file 02 is still open, and session 3 alone locks file 02
// down with SDM mirroring enabled.
func (e *Engine) provisionFreshFactory(card ntag424.Card, uid string) (*keystore.TagKeys, error) {
	scope, minted, err := e.Store.ProvisionBegin(uid)
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			scope.Rollback()
		}
	}()

	if err := e.runPathCommon(card, zeroKey, zeroKey, zeroKey, minted); err != nil {
		return nil, err
	}

	if err := scope.Commit(); err != nil {
		return nil, err
	}
	success = true
	return &minted, nil
}

// reprovision implements Path B: identical structure, but session 1
// authenticates with the currently stored slot-0 key and the ChangeKey
// old-key arguments for slots 1/3 are the current stored keys rather than
// factory zeros.
func (e *Engine) reprovision(card ntag424.Card, state *TagState) (*keystore.TagKeys, error) {
	if state.StoreRecord == nil {
		return nil, &StateError{UID: state.UID, Message: "provisioned classification without a store record"}
	}
	current := *state.StoreRecord

	scope, minted, err := e.Store.ProvisionBegin(state.UID)
	if err != nil {
		return nil, err
	}
	success := false
	defer func() {
		if !success {
			scope.Rollback()
		}
	}()

	if err := e.runPathCommon(card, current.PiccMasterKey[:], current.AppReadKey[:], current.SDMMACKey[:], minted); err != nil {
		return nil, err
	}

	if err := scope.Commit(); err != nil {
		return nil, err
	}
	success = true
	return &minted, nil
}

// Reset implements Path C: a factory reset is the mirror image of
// provisioning, with the tag's current keys as "old" and all-zero as
// "new". It does not touch the key store at all; the caller decides how to
// update, keep or delete the row.
func (e *Engine) Reset(card ntag424.Card, current keystore.TagKeys) error {
	sess1, err := ntag424.Authenticate(card, current.PiccMasterKey[:], picMasterSlot)
	if err != nil {
		return err
	}
	if _, err := sess1.Execute(card, ntag424.ChangeKeyCommand{
		Slot:       picMasterSlot,
		NewKey:     zeroKey,
		NewVersion: 0,
	}); err != nil {
		sess1.Close()
		return err
	}
	sess1.Close()

	if err := ntag424.SelectPiccApplication(card); err != nil {
		return err
	}
	sess2, err := ntag424.Authenticate(card, zeroKey, picMasterSlot)
	if err != nil {
		return err
	}
	if _, err := sess2.Execute(card, ntag424.ChangeKeyCommand{
		Slot:       appReadSlot,
		NewKey:     zeroKey,
		OldKey:     current.AppReadKey[:],
		NewVersion: 0,
	}); err != nil {
		sess2.Close()
		return err
	}
	if _, err := sess2.Execute(card, ntag424.ChangeKeyCommand{
		Slot:       sdmMacSlot,
		NewKey:     zeroKey,
		OldKey:     current.SDMMACKey[:],
		NewVersion: 0,
	}); err != nil {
		sess2.Close()
		return err
	}
	sess2.Close()

	if err := ntag424.SelectPiccApplication(card); err != nil {
		return err
	}
	sess3, err := ntag424.Authenticate(card, zeroKey, picMasterSlot)
	if err != nil {
		return err
	}
	defer sess3.Close()
	_, err = sess3.Execute(card, ntag424.ChangeFileSettingsCommand{
		FileNo:       ndefFileNo,
		FileOption:   0x00,
		AccessRights: [2]byte{0x00, 0xE0},
	})
	return err
}

// runPathCommon drives the three-session sequence shared by Path A and
// Path B: session 1 rotates slot 0, session 2 rotates slots 1 and 3, the
// NDEF is written while file 02 still allows it, and session 3 alone
// applies SDM-enabled ChangeFileSettings.
func (e *Engine) runPathCommon(card ntag424.Card, oldPicc, oldRead, oldMac []byte, minted keystore.TagKeys) error {
	if err := ntag424.SelectPiccApplication(card); err != nil {
		return err
	}

	// Session 1: rotate slot 0. This session is destroyed by the tag the
	// instant the slot-0 ChangeKey succeeds; nothing else may be issued
	// through it.
	sess1, err := ntag424.Authenticate(card, oldPicc, picMasterSlot)
	if err != nil {
		return err
	}
	_, err = sess1.Execute(card, ntag424.ChangeKeyCommand{
		Slot:       picMasterSlot,
		NewKey:     minted.PiccMasterKey[:],
		NewVersion: 1,
	})
	sess1.Close()
	if err != nil {
		return err
	}

	// Session 2: rotate slots 1 and 3 under the new slot-0 key.
	if err := ntag424.SelectPiccApplication(card); err != nil {
		return err
	}
	sess2, err := ntag424.Authenticate(card, minted.PiccMasterKey[:], picMasterSlot)
	if err != nil {
		return err
	}
	_, err = sess2.Execute(card, ntag424.ChangeKeyCommand{
		Slot:       appReadSlot,
		NewKey:     minted.AppReadKey[:],
		OldKey:     oldRead,
		NewVersion: 1,
	})
	if err != nil {
		sess2.Close()
		return err
	}
	_, err = sess2.Execute(card, ntag424.ChangeKeyCommand{
		Slot:       sdmMacSlot,
		NewKey:     minted.SDMMACKey[:],
		OldKey:     oldMac,
		NewVersion: 1,
	})
	sess2.Close()
	if err != nil {
		return err
	}

	// Write the NDEF template before locking file 02 down: while file 02
	// still permits free write, an unauthenticated ISOUpdateBinary avoids
	// the chunking/MAC-length interaction that otherwise produces 917E on
	// large authenticated writes issued after ChangeFileSettings.
	layout, err := ntag424.BuildSDMNDEF(e.BaseURL)
	if err != nil {
		return err
	}
	if err := ntag424.SelectPiccApplication(card); err != nil {
		return err
	}
	if err := ntag424.ISOSelectFile(card, ndefFileID); err != nil {
		return err
	}
	if err := ntag424.WriteISOUpdateBinary(card, layout.NDEF); err != nil {
		return err
	}

	// Session 3: ChangeFileSettings alone, no preceding ChangeKey in this
	// session — empirically, mixing the two in one session produces 919E.
	if err := ntag424.SelectPiccApplication(card); err != nil {
		return err
	}
	sess3, err := ntag424.Authenticate(card, minted.PiccMasterKey[:], picMasterSlot)
	if err != nil {
		return err
	}
	defer sess3.Close()
	_, err = sess3.Execute(card, ntag424.ChangeFileSettingsCommand{
		FileNo:          ndefFileNo,
		FileOption:      0x40 | 0x01, // SDM enable, CommMode MAC
		AccessRights:    [2]byte{0xE0, 0xE0},
		SDMOptions:      0xC1, // UID mirror, read-counter mirror, ASCII encoding
		SDMAccessRights: [2]byte{0xFE, 0xEF},
		UIDOffset:       layout.UIDOffset,
		CtrOffset:       layout.CtrOffset,
		MACInputOffset:  layout.MACInputOffset,
		MACOffset:       layout.MACOffset,
	})
	return err
}
