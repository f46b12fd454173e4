package ntag424

// isoUpdateBinaryChunkSize is the maximum payload this system ever sends
// in a single ISOUpdateBinary frame. NTAG 424 DNA accepts up to 255 bytes
// per ISO UPDATE BINARY APDU, but large unauthenticated writes chunked at
// the full ISO limit were observed to collide with the MAC-length
// interaction on ChangeFileSettings later in the same provisioning run;
// chunking the write itself at 52 bytes avoids it entirely.
const isoUpdateBinaryChunkSize = 52

// WriteISOUpdateBinary writes data to the currently selected ISO file
// starting at offset 0, auto-chunking at isoUpdateBinaryChunkSize bytes.
// The caller must have already issued ISOSelectFileCommand for the target
// file (typically the NDEF file, 0xE104).
func WriteISOUpdateBinary(card Card, data []byte) error {
	for off := 0; off < len(data); off += isoUpdateBinaryChunkSize {
		end := off + isoUpdateBinaryChunkSize
		if end > len(data) {
			end = len(data)
		}
		cmd := ISOUpdateBinaryCommand{Offset: uint16(off), Data: data[off:end]}
		_, sw, err := ExchangeOnce(card, cmd.APDU())
		if err != nil {
			return err
		}
		if !SwOK(sw) {
			return Classify(0xD6, sw, nil)
		}
	}
	return nil
}

// SelectPiccApplication selects the NTAG 424 DNA PICC application.
func SelectPiccApplication(card Card) error {
	_, sw, err := ExchangeOnce(card, SelectPiccApplicationCommand{}.APDU())
	if err != nil {
		return err
	}
	if !SwOK(sw) {
		return Classify(0xA4, sw, nil)
	}
	return nil
}

// ISOSelectFile selects a file by its 2-byte ISO file ID (e.g. 0xE104 for
// the NDEF file).
func ISOSelectFile(card Card, fileID uint16) error {
	cmd := ISOSelectFileCommand{FileID: fileID}
	_, sw, err := ExchangeOnce(card, cmd.APDU())
	if err != nil {
		return err
	}
	if !SwOK(sw) {
		return Classify(0xA4, sw, nil)
	}
	return nil
}

// GetChipVersion reads hardware/software version info via the three-frame
// unauthenticated GetVersion exchange.
func GetChipVersion(card Card) (*ChipVersion, error) {
	cmd := GetChipVersionCommand{}
	body, sw, err := Exchange(card, cmd.INS(), BuildAPDU(claProprietary, cmd.INS(), 0, 0, nil, true))
	if err != nil {
		return nil, err
	}
	if !SwOK(sw) {
		return nil, Classify(cmd.INS(), sw, nil)
	}
	return cmd.Decode(body)
}

// GetKeyVersionPlain reads a key slot's version byte without an active
// session (used by the Inspector before any authentication has occurred).
func GetKeyVersionPlain(card Card, slot byte) (byte, error) {
	cmd := GetKeyVersionCommand{Slot: slot}
	body, sw, err := Exchange(card, cmd.INS(), BuildAPDU(claProprietary, cmd.INS(), 0, 0, cmd.PlaintextPayload(), true))
	if err != nil {
		return 0, err
	}
	if !SwOK(sw) {
		return 0, Classify(cmd.INS(), sw, nil)
	}
	return cmd.Decode(body)
}

// GetFileSettingsPlain reads a file's settings without an active session.
// This is how the Inspector classifies file 02 before any authentication.
func GetFileSettingsPlain(card Card, fileNo byte) (*FileSettings, error) {
	cmd := GetFileSettingsCommand{FileNo: fileNo}
	body, sw, err := Exchange(card, cmd.INS(), BuildAPDU(claProprietary, cmd.INS(), 0, 0, cmd.PlaintextPayload(), true))
	if err != nil {
		return nil, err
	}
	if !SwOK(sw) {
		return nil, Classify(cmd.INS(), sw, nil)
	}
	return cmd.Decode(body)
}

// ReadDataPlain reads file data without an active session (file 02's read
// access is free, and the provisioning engine's ChangeFileSettings keeps it
// free).
func ReadDataPlain(card Card, fileNo byte, offset, length uint32) ([]byte, error) {
	cmd := ReadDataCommand{FileNo: fileNo, Offset: offset, Length: length, Mode: CommModePlain}
	body, sw, err := Exchange(card, cmd.INS(), BuildAPDU(claProprietary, cmd.INS(), 0, 0, cmd.PlaintextPayload(), true))
	if err != nil {
		return nil, err
	}
	if !SwOK(sw) {
		return nil, Classify(cmd.INS(), sw, nil)
	}
	return body, nil
}

// ReadNDEF reads the NDEF file (0xE104) unauthenticated: select the
// application, select the file, then ISOReadBinary the whole thing.
func ReadNDEF(card Card) ([]byte, error) {
	if err := SelectPiccApplication(card); err != nil {
		return nil, err
	}
	if err := ISOSelectFile(card, 0xE104); err != nil {
		return nil, err
	}
	// Read NLEN (2 bytes) first to learn the record length.
	head, sw, err := ExchangeOnce(card, []byte{0x00, 0xB0, 0x00, 0x00, 0x02})
	if err != nil {
		return nil, err
	}
	if !SwOK(sw) || len(head) < 2 {
		return nil, Classify(0xB0, sw, nil)
	}
	nlen := int(head[0])<<8 | int(head[1])
	total := 2 + nlen
	out := make([]byte, 0, total)
	out = append(out, head...)
	for len(out) < total {
		remaining := total - len(out)
		chunk := remaining
		if chunk > 255 {
			chunk = 255
		}
		apdu := []byte{0x00, 0xB0, byte(len(out) >> 8), byte(len(out)), byte(chunk)}
		body, sw, err := ExchangeOnce(card, apdu)
		if err != nil {
			return nil, err
		}
		if !SwOK(sw) {
			return nil, Classify(0xB0, sw, nil)
		}
		out = append(out, body...)
	}
	return out, nil
}
