package provision

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/drusifer/globalheadsortails/pkg/ntag424"
)

// virtualTag is a protocol-accurate fake NTAG 424 DNA tag used to drive
// the provisioning engine through real AuthenticateEV2First handshakes,
// real ChangeKey/ChangeFileSettings encryption and CMAC, and a real NDEF
// buffer, without any PC/SC hardware. It exists purely for these tests;
// nothing in the library depends on it.
type virtualTag struct {
	uid         [7]byte
	keys        [5][16]byte
	keyVersions [5]byte

	fileOption byte
	ar         [2]byte
	sdmEnabled bool
	sdmOptions byte
	sdmAR      [2]byte
	offsets    [4]uint32

	ndef           []byte
	selectedFileID uint16

	pendingSlot byte
	pendingRndB []byte

	ti       [4]byte
	encKey   []byte
	macKey   []byte
	counter  uint16
	authSlot byte

	// When failSlotSet is true, ChangeKey for failSlot fails with an
	// integrity error instead of applying.
	failSlotSet bool
	failSlot    byte
}

func newVirtualTag(uid [7]byte) *virtualTag {
	return &virtualTag{
		uid:  uid,
		ar:   [2]byte{0x00, 0xE0},
		ndef: []byte{0x00, 0x00},
	}
}

var iv0 = make([]byte, 16)

func (t *virtualTag) Transmit(apdu []byte) ([]byte, error) {
	if len(apdu) < 5 {
		return nil, fmt.Errorf("virtualTag: short apdu")
	}
	cla, ins, p1, p2, lc := apdu[0], apdu[1], apdu[2], apdu[3], int(apdu[4])
	var data []byte
	if len(apdu) >= 5+lc {
		data = apdu[5 : 5+lc]
	}

	switch {
	case cla == 0xFF && ins == 0xCA:
		return ok2(append(append([]byte{}, t.uid[:]...)), 0x90, 0x00)
	case cla == 0x00 && ins == 0xA4 && p1 == 0x04:
		return ok2(nil, 0x90, 0x00)
	case cla == 0x00 && ins == 0xA4 && p1 == 0x00 && p2 == 0x0C:
		t.selectedFileID = uint16(data[0])<<8 | uint16(data[1])
		return ok2(nil, 0x90, 0x00)
	case cla == 0x00 && ins == 0xB0:
		return t.readBinary(p1, p2, lc)
	case cla == 0x00 && ins == 0xD6:
		return t.updateBinary(p1, p2, data)
	case cla == 0x90 && ins == 0x71:
		return t.authPass1(data)
	case cla == 0x90 && ins == 0xAF:
		return t.authPass2(data)
	case cla == 0x90 && ins == 0x64:
		return ok2([]byte{t.keyVersions[data[0]]}, 0x91, 0x00)
	case cla == 0x90 && ins == 0x60:
		return t.getChipVersion()
	case cla == 0x90 && ins == 0xF5:
		return t.getFileSettings(data)
	case cla == 0x90 && ins == 0xC4:
		return t.changeKey(data)
	case cla == 0x90 && ins == 0x5F:
		return t.changeFileSettings(data)
	}
	return nil, fmt.Errorf("virtualTag: unhandled APDU % X", apdu)
}

func ok2(body []byte, sw1, sw2 byte) ([]byte, error) {
	return append(append([]byte{}, body...), sw1, sw2), nil
}

func (t *virtualTag) readBinary(p1, p2 byte, le int) ([]byte, error) {
	offset := int(p1)<<8 | int(p2)
	if offset > len(t.ndef) {
		offset = len(t.ndef)
	}
	end := offset + le
	if end > len(t.ndef) {
		end = len(t.ndef)
	}
	return ok2(t.ndef[offset:end], 0x90, 0x00)
}

func (t *virtualTag) updateBinary(p1, p2 byte, data []byte) ([]byte, error) {
	offset := int(p1)<<8 | int(p2)
	for len(t.ndef) < offset+len(data) {
		t.ndef = append(t.ndef, 0)
	}
	copy(t.ndef[offset:offset+len(data)], data)
	return ok2(nil, 0x90, 0x00)
}

func (t *virtualTag) authPass1(data []byte) ([]byte, error) {
	slot := data[0]
	t.pendingSlot = slot
	rndB := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, rndB); err != nil {
		return nil, err
	}
	t.pendingRndB = rndB
	enc, err := ntag424.AES128CBCEncrypt(t.keys[slot][:], iv0, rndB)
	if err != nil {
		return nil, err
	}
	return ok2(enc, 0x91, 0xAF)
}

func (t *virtualTag) authPass2(cipherText []byte) ([]byte, error) {
	key := t.keys[t.pendingSlot][:]
	plain, err := ntag424.AES128CBCDecrypt(key, iv0, cipherText)
	if err != nil {
		return nil, err
	}
	rndA := plain[:16]
	rndBRotGot := plain[16:32]
	if string(rotateLeft1(t.pendingRndB)) != string(rndBRotGot) {
		return ok2(nil, 0x91, 0xAE)
	}

	ti := make([]byte, 4)
	if _, err := io.ReadFull(rand.Reader, ti); err != nil {
		return nil, err
	}
	rndARot := rotateLeft1(rndA)
	respPlain := make([]byte, 0, 32)
	respPlain = append(respPlain, ti...)
	respPlain = append(respPlain, rndARot...)
	respPlain = append(respPlain, make([]byte, 12)...) // pdcap2 || pcdcap2

	cipher, err := ntag424.AES128CBCEncrypt(key, iv0, respPlain)
	if err != nil {
		return nil, err
	}

	encKey, macKey, err := deriveKeysForTest(key, rndA, t.pendingRndB)
	if err != nil {
		return nil, err
	}
	copy(t.ti[:], ti)
	t.encKey = encKey
	t.macKey = macKey
	t.counter = 0
	t.authSlot = t.pendingSlot

	return ok2(cipher, 0x91, 0x00)
}

// getChipVersion returns the 28-byte concatenated GetVersion body in a
// single frame. The real chip splits this across three 91AF continuation
// frames; this fake returns it whole since it never emits SWMoreData.
func (t *virtualTag) getChipVersion() ([]byte, error) {
	body := make([]byte, 28)
	body[0] = 0x04 // vendor ID (NXP)
	body[1] = 0x04 // hw type
	body[2] = 0x02 // hw subtype
	body[3] = 0x01 // hw major version
	body[4] = 0x00 // hw minor version
	body[5] = 0x13 // hw storage size
	body[6] = 0x05 // hw protocol
	copy(body[14:21], t.uid[:])
	// body[21:26] batch number, body[26] prod week, body[27] prod year
	// are left zero; the fake has no meaningful values for them.
	return ok2(body, 0x91, 0x00)
}

func (t *virtualTag) getFileSettings(data []byte) ([]byte, error) {
	body := []byte{0x00, t.fileOption, t.ar[0], t.ar[1], 0x00, 0x00, 0x00}
	if t.sdmEnabled {
		body = append(body, t.sdmOptions, t.sdmAR[0], t.sdmAR[1])
		for _, off := range t.offsets {
			body = append(body, byte(off), byte(off>>8), byte(off>>16))
		}
	}
	return ok2(body, 0x91, 0x00)
}

func (t *virtualTag) commandIV(lead0, lead1 byte, counter uint16) ([]byte, error) {
	in := make([]byte, 16)
	in[0], in[1] = lead0, lead1
	copy(in[2:6], t.ti[:])
	in[6] = byte(counter)
	in[7] = byte(counter >> 8)
	return ntag424.AES128ECBEncrypt(t.encKey, in)
}

func (t *virtualTag) requestMAC(ins byte, counter uint16, header, macBody []byte) ([]byte, error) {
	in := make([]byte, 0, 7+len(header)+len(macBody))
	in = append(in, ins, byte(counter), byte(counter>>8))
	in = append(in, t.ti[:]...)
	in = append(in, header...)
	in = append(in, macBody...)
	cmac, err := ntag424.AESCMAC(t.macKey, in)
	if err != nil {
		return nil, err
	}
	return ntag424.TruncateCMAC(cmac), nil
}

func (t *virtualTag) responseMAC(sw byte, counter uint16, respEnc []byte) ([]byte, error) {
	in := make([]byte, 0, 7+len(respEnc))
	in = append(in, sw, byte(counter), byte(counter>>8))
	in = append(in, t.ti[:]...)
	in = append(in, respEnc...)
	cmac, err := ntag424.AESCMAC(t.macKey, in)
	if err != nil {
		return nil, err
	}
	return ntag424.TruncateCMAC(cmac), nil
}

func (t *virtualTag) changeKey(data []byte) ([]byte, error) {
	if len(data) != 1+32+8 {
		return ok2(nil, 0x91, 0x7E)
	}
	slot := data[0]
	header := data[0:1]
	encPayload := data[1:33]
	gotMAC := data[33:41]

	wantMAC, err := t.requestMAC(0xC4, t.counter, header, encPayload)
	if err != nil {
		return nil, err
	}
	if string(wantMAC) != string(gotMAC) {
		return ok2(nil, 0x91, 0x1E)
	}

	if t.failSlotSet && slot == t.failSlot {
		return ok2(nil, 0x91, 0x1E)
	}

	iv, err := t.commandIV(0xA5, 0x5A, t.counter)
	if err != nil {
		return nil, err
	}
	padded, err := ntag424.AES128CBCDecrypt(t.encKey, iv, encPayload)
	if err != nil {
		return nil, err
	}
	payload, err := ntag424.UnpadISO7816_4(padded)
	if err != nil {
		return nil, err
	}

	var newKey [16]byte
	var version byte
	if slot == 0 {
		copy(newKey[:], payload[0:16])
		version = payload[16]
	} else {
		old := t.keys[slot]
		for i := 0; i < 16; i++ {
			newKey[i] = payload[i] ^ old[i]
		}
		version = payload[16]
	}
	t.keys[slot] = newKey
	t.keyVersions[slot] = version

	next := t.counter + 1
	respMAC, err := t.responseMAC(0x00, next, nil)
	if err != nil {
		return nil, err
	}
	t.counter = next
	return ok2(respMAC, 0x91, 0x00)
}

func (t *virtualTag) changeFileSettings(data []byte) ([]byte, error) {
	if len(data) < 8+16 {
		return ok2(nil, 0x91, 0x7E)
	}
	encPayload := data[:len(data)-8]
	gotMAC := data[len(data)-8:]

	wantMAC, err := t.requestMAC(0x5F, t.counter, nil, encPayload)
	if err != nil {
		return nil, err
	}
	if string(wantMAC) != string(gotMAC) {
		return ok2(nil, 0x91, 0x1E)
	}

	iv, err := t.commandIV(0xA5, 0x5A, t.counter)
	if err != nil {
		return nil, err
	}
	padded, err := ntag424.AES128CBCDecrypt(t.encKey, iv, encPayload)
	if err != nil {
		return nil, err
	}
	payload, err := ntag424.UnpadISO7816_4(padded)
	if err != nil {
		return nil, err
	}

	t.fileOption = payload[1]
	t.ar = [2]byte{payload[2], payload[3]}
	t.sdmEnabled = t.fileOption&0x40 != 0
	if t.sdmEnabled && len(payload) >= 19 {
		t.sdmOptions = payload[4]
		t.sdmAR = [2]byte{payload[5], payload[6]}
		off := payload[7:]
		for i := 0; i < 4; i++ {
			t.offsets[i] = uint32(off[i*3]) | uint32(off[i*3+1])<<8 | uint32(off[i*3+2])<<16
		}
	}

	next := t.counter + 1
	respMAC, err := t.responseMAC(0x00, next, nil)
	if err != nil {
		return nil, err
	}
	t.counter = next
	return ok2(respMAC, 0x91, 0x00)
}

func rotateLeft1(in []byte) []byte {
	out := make([]byte, len(in))
	copy(out, in[1:])
	out[len(out)-1] = in[0]
	return out
}

// deriveKeysForTest replicates the session key derivation (NXP AN12343)
// so the fake tag's side matches the real Session's keys exactly.
func deriveKeysForTest(key, rndA, rndB []byte) (encKey, macKey []byte, err error) {
	buildSV := func(b0, b1 byte) []byte {
		sv := make([]byte, 32)
		sv[0], sv[1] = b0, b1
		sv[2], sv[3], sv[4], sv[5] = 0x00, 0x01, 0x00, 0x80
		copy(sv[6:8], rndA[0:2])
		for i := 0; i < 6; i++ {
			sv[8+i] = rndA[2+i] ^ rndB[i]
		}
		copy(sv[14:24], rndB[6:16])
		copy(sv[24:32], rndA[8:16])
		return sv
	}
	macKey, err = ntag424.AESCMAC(key, buildSV(0xA5, 0x5A))
	if err != nil {
		return nil, nil, err
	}
	encKey, err = ntag424.AESCMAC(key, buildSV(0x5A, 0xA5))
	if err != nil {
		return nil, nil, err
	}
	return encKey, macKey, nil
}
