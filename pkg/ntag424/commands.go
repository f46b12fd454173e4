package ntag424

import "fmt"

// Command is the closed set of DESFire/ISO operations this system issues.
// Each concrete type is a value carrying its own parameters; Session.Execute
// is the single place that knows how to wrap any of them, so adding a
// command never touches the wrapping logic.
type Command interface {
	INS() byte
	UnencryptedHeader() []byte
	PlaintextPayload() []byte
	CommMode() CommMode
}

// SelectPiccApplicationCommand selects the NTAG 424 DNA PICC application.
// ISO CLA 00 A4 04 00 07 D2 76 00 00 85 01 01 00. Always permitted; it
// resets whatever file/application was previously selected.
type SelectPiccApplicationCommand struct{}

func (SelectPiccApplicationCommand) INS() byte                { return 0xA4 }
func (SelectPiccApplicationCommand) UnencryptedHeader() []byte { return nil }
func (SelectPiccApplicationCommand) PlaintextPayload() []byte  { return nil }
func (SelectPiccApplicationCommand) CommMode() CommMode        { return CommModePlain }

// APDU returns the fixed ISO SELECT APDU for this command; it does not fit
// the proprietary 90-xx shape Session.Execute builds, so callers send it
// directly via ExchangeOnce.
func (SelectPiccApplicationCommand) APDU() []byte {
	return []byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01, 0x00}
}

// ChipVersion is the decoded body of GetChipVersion.
type ChipVersion struct {
	VendorID       byte
	HWType         byte
	HWSubtype      byte
	HWMajorVersion byte
	HWMinorVersion byte
	HWStorageSize  byte
	HWProtocol     byte
	UID            []byte // 7 bytes
	BatchNo        []byte // 5 bytes
	ProdWeek       byte
	ProdYear       byte
}

// GetChipVersionCommand reads hardware/software version info and the
// 7-byte UID. It is a three-frame unauthenticated exchange (91AF, 91AF,
// 9100): the codec's transparent continuation handling concatenates all
// three frames, so from the Session's point of view it is a single Plain
// command with INS 0x60.
type GetChipVersionCommand struct{}

func (GetChipVersionCommand) INS() byte                { return 0x60 }
func (GetChipVersionCommand) UnencryptedHeader() []byte { return nil }
func (GetChipVersionCommand) PlaintextPayload() []byte  { return nil }
func (GetChipVersionCommand) CommMode() CommMode        { return CommModePlain }

// Decode parses the concatenated three-frame GetVersion body (28 bytes:
// hw info 7, sw info 7, uid+batch+date 14).
func (GetChipVersionCommand) Decode(body []byte) (*ChipVersion, error) {
	if len(body) < 28 {
		return nil, &ProtocolError{Cmd: 0x60, Message: fmt.Sprintf("version body too short: %d bytes", len(body))}
	}
	return &ChipVersion{
		VendorID:       body[0],
		HWType:         body[1],
		HWSubtype:      body[2],
		HWMajorVersion: body[3],
		HWMinorVersion: body[4],
		HWStorageSize:  body[5],
		HWProtocol:     body[6],
		UID:            append([]byte{}, body[14:21]...),
		BatchNo:        append([]byte{}, body[21:26]...),
		ProdWeek:       body[26],
		ProdYear:       body[27],
	}, nil
}

// GetKeyVersionCommand reads the version byte of a key slot. Version 0x00
// is inconclusive: both factory tags and freshly-provisioned tags (before
// an explicit version bump) read back 0x00.
type GetKeyVersionCommand struct {
	Slot byte
}

func (c GetKeyVersionCommand) INS() byte                { return 0x64 }
func (c GetKeyVersionCommand) UnencryptedHeader() []byte { return nil }
func (c GetKeyVersionCommand) PlaintextPayload() []byte  { return []byte{c.Slot} }
func (GetKeyVersionCommand) CommMode() CommMode         { return CommModePlain }

// Decode extracts the single version byte.
func (GetKeyVersionCommand) Decode(body []byte) (byte, error) {
	if len(body) < 1 {
		return 0, &ProtocolError{Cmd: 0x64, Message: "empty key version response"}
	}
	return body[0], nil
}

// GetFileSettingsCommand reads a file's settings structure, including the
// SDM configuration tail if SDM is enabled.
type GetFileSettingsCommand struct {
	FileNo byte
}

func (c GetFileSettingsCommand) INS() byte                { return 0xF5 }
func (c GetFileSettingsCommand) UnencryptedHeader() []byte { return nil }
func (c GetFileSettingsCommand) PlaintextPayload() []byte  { return []byte{c.FileNo} }
func (GetFileSettingsCommand) CommMode() CommMode         { return CommModePlain }

// AuthenticateEV2FirstCommand is handled entirely by Authenticate (see
// auth.go); it never goes through Session.Execute because it is what
// creates the Session in the first place. It still implements Command so
// it belongs to the same closed set as every other command.
type AuthenticateEV2FirstCommand struct {
	KeySlot byte
}

func (c AuthenticateEV2FirstCommand) INS() byte                { return 0x71 }
func (c AuthenticateEV2FirstCommand) UnencryptedHeader() []byte { return nil }
func (c AuthenticateEV2FirstCommand) PlaintextPayload() []byte  { return []byte{c.KeySlot} }
func (AuthenticateEV2FirstCommand) CommMode() CommMode         { return CommModePlain }

// ChangeKeyCommand rotates a single key slot. Header is the clear slot
// byte; the plaintext payload layout differs for slot 0 (no XOR, no CRC,
// since slot 0 can only ever be changed from the session authenticated
// against slot 0 itself) versus slots 1-4 (XOR against the old key plus a
// CRC32 of the new key, per NXP AN12196).
type ChangeKeyCommand struct {
	Slot       byte
	NewKey     []byte // 16 bytes
	OldKey     []byte // 16 bytes; ignored for slot 0
	NewVersion byte
}

func (c ChangeKeyCommand) INS() byte                { return 0xC4 }
func (c ChangeKeyCommand) UnencryptedHeader() []byte { return []byte{c.Slot} }
func (ChangeKeyCommand) CommMode() CommMode         { return CommModeFull }

func (c ChangeKeyCommand) PlaintextPayload() []byte {
	if c.Slot == 0 {
		payload := make([]byte, 17)
		copy(payload, c.NewKey)
		payload[16] = c.NewVersion
		return payload
	}
	payload := make([]byte, 21)
	for i := 0; i < 16; i++ {
		payload[i] = c.NewKey[i] ^ c.OldKey[i]
	}
	payload[16] = c.NewVersion
	copy(payload[17:21], crc32LE(CRC32IEEE(c.NewKey)))
	return payload
}

// FileSettings is the decoded response of GetFileSettingsCommand, covering
// both the common header and the optional SDM tail.
type FileSettings struct {
	FileType     byte
	FileOption   byte
	AccessRights [2]byte
	Size         uint32 // 3-byte LE field on the wire

	SDMEnabled     bool
	SDMOptions     byte
	SDMAccessRights [2]byte
	UIDOffset       uint32
	CtrOffset       uint32
	MACInputOffset  uint32
	MACOffset       uint32
}

// Decode parses a GetFileSettings response body.
func (GetFileSettingsCommand) Decode(body []byte) (*FileSettings, error) {
	if len(body) < 7 {
		return nil, &ProtocolError{Cmd: 0xF5, Message: fmt.Sprintf("file settings body too short: %d bytes", len(body))}
	}
	fs := &FileSettings{
		FileType:     body[0],
		FileOption:   body[1],
		AccessRights: [2]byte{body[2], body[3]},
		Size:         readU24LE(body[4:7]),
	}
	fs.SDMEnabled = fs.FileOption&0x40 != 0
	if !fs.SDMEnabled {
		return fs, nil
	}
	rest := body[7:]
	if len(rest) < 3 {
		return nil, &ProtocolError{Cmd: 0xF5, Message: "SDM tail truncated"}
	}
	fs.SDMOptions = rest[0]
	fs.SDMAccessRights = [2]byte{rest[1], rest[2]}
	off := rest[3:]
	idx := 0
	readOffset := func() (uint32, error) {
		if idx+3 > len(off) {
			return 0, &ProtocolError{Cmd: 0xF5, Message: "SDM offset truncated"}
		}
		v := readU24LE(off[idx : idx+3])
		idx += 3
		return v, nil
	}
	var err error
	if fs.UIDOffset, err = readOffset(); err != nil {
		return nil, err
	}
	if fs.CtrOffset, err = readOffset(); err != nil {
		return nil, err
	}
	if fs.MACInputOffset, err = readOffset(); err != nil {
		return nil, err
	}
	if fs.MACOffset, err = readOffset(); err != nil {
		return nil, err
	}
	return fs, nil
}

func readU24LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func u24LE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16)}
}

// ChangeFileSettingsCommand reconfigures a file's access rights and SDM
// mirroring. The header is deliberately empty: the file number travels
// inside the encrypted payload. Putting it in the clear header instead is
// a documented source of parameter-error (919E) failures.
type ChangeFileSettingsCommand struct {
	FileNo          byte
	FileOption      byte
	AccessRights    [2]byte
	SDMOptions      byte
	SDMAccessRights [2]byte
	UIDOffset       uint32
	CtrOffset       uint32
	MACInputOffset  uint32
	MACOffset       uint32
}

func (ChangeFileSettingsCommand) INS() byte                 { return 0x5F }
func (ChangeFileSettingsCommand) UnencryptedHeader() []byte { return nil }
func (ChangeFileSettingsCommand) CommMode() CommMode        { return CommModeFull }

func (c ChangeFileSettingsCommand) PlaintextPayload() []byte {
	payload := make([]byte, 0, 1+1+2+1+2+12)
	payload = append(payload, c.FileNo, c.FileOption)
	payload = append(payload, c.AccessRights[0], c.AccessRights[1])
	if c.FileOption&0x40 == 0 {
		return payload
	}
	payload = append(payload, c.SDMOptions, c.SDMAccessRights[0], c.SDMAccessRights[1])
	payload = append(payload, u24LE(c.UIDOffset)...)
	payload = append(payload, u24LE(c.CtrOffset)...)
	payload = append(payload, u24LE(c.MACInputOffset)...)
	payload = append(payload, u24LE(c.MACOffset)...)
	return payload
}

// ReadDataCommand reads a slice of a standard data file. File 02's
// configured CommMode in this system is MAC, but the command itself is
// agnostic: CommMode is supplied by the caller to match the file's actual
// configuration (Plain for an unlocked factory file, MAC afterward).
type ReadDataCommand struct {
	FileNo byte
	Offset uint32
	Length uint32
	Mode   CommMode
}

func (c ReadDataCommand) INS() byte                { return 0xAD }
func (c ReadDataCommand) UnencryptedHeader() []byte { return nil }
func (c ReadDataCommand) CommMode() CommMode        { return c.Mode }
func (c ReadDataCommand) PlaintextPayload() []byte {
	payload := make([]byte, 0, 7)
	payload = append(payload, c.FileNo)
	payload = append(payload, u24LE(c.Offset)...)
	payload = append(payload, u24LE(c.Length)...)
	return payload
}

// WriteDataCommand writes into a standard data file. Header carries
// file_no/offset/length in the clear per the datasheet; CommMode matches
// the file's configured mode.
type WriteDataCommand struct {
	FileNo byte
	Offset uint32
	Data   []byte
	Mode   CommMode
}

func (c WriteDataCommand) INS() byte { return 0x8D }
func (c WriteDataCommand) UnencryptedHeader() []byte {
	h := make([]byte, 0, 7)
	h = append(h, c.FileNo)
	h = append(h, u24LE(c.Offset)...)
	h = append(h, u24LE(uint32(len(c.Data)))...)
	return h
}
func (c WriteDataCommand) PlaintextPayload() []byte { return c.Data }
func (c WriteDataCommand) CommMode() CommMode       { return c.Mode }

// ISOSelectFileCommand selects a file by its 2-byte ISO file ID.
type ISOSelectFileCommand struct {
	FileID uint16
}

func (c ISOSelectFileCommand) APDU() []byte {
	return []byte{0x00, 0xA4, 0x00, 0x0C, 0x02, byte(c.FileID >> 8), byte(c.FileID)}
}

// ISOUpdateBinaryCommand writes data at an offset into the currently
// selected ISO file. WriteISOUpdateBinary (transport.go) is the one that
// enforces 52-byte chunking; this type models a single chunk's APDU.
type ISOUpdateBinaryCommand struct {
	Offset uint16
	Data   []byte
}

func (c ISOUpdateBinaryCommand) APDU() []byte {
	apdu := make([]byte, 0, 5+len(c.Data))
	apdu = append(apdu, 0x00, 0xD6, byte(c.Offset>>8), byte(c.Offset), byte(len(c.Data)))
	apdu = append(apdu, c.Data...)
	return apdu
}
