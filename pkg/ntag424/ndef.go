package ntag424

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
)

const (
	sdmUIDPlaceholderLen  = 14
	sdmCtrPlaceholderLen  = 6
	sdmMacPlaceholderLen  = 16
)

// SDMNDEFLayout is a built NDEF message together with the byte offsets
// SDM will dynamically substitute at tap time.
type SDMNDEFLayout struct {
	URL            string
	NDEF           []byte
	UIDOffset      uint32
	CtrOffset      uint32
	MACInputOffset uint32
	MACOffset      uint32
}

// BuildSDMNDEF constructs an NDEF URI record from baseURL with uid/ctr/cmac
// query placeholders, in that fixed order (not alphabetical — SDM requires
// it), and returns the byte offsets ChangeFileSettings needs to enable
// mirroring. Placeholder characters are ASCII '0': lowercase is mandatory,
// since the tag mints lowercase hex digits into these slots at tap time
// and an uppercase placeholder would only coincidentally match.
func BuildSDMNDEF(baseURL string) (*SDMNDEFLayout, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("URL must be absolute (include scheme and host)")
	}
	parsed.Fragment = ""

	existing := parsed.Query()
	var params []string
	params = append(params, fmt.Sprintf("uid=%s", strings.Repeat("0", sdmUIDPlaceholderLen)))
	params = append(params, fmt.Sprintf("ctr=%s", strings.Repeat("0", sdmCtrPlaceholderLen)))
	params = append(params, fmt.Sprintf("cmac=%s", strings.Repeat("0", sdmMacPlaceholderLen)))
	for key, values := range existing {
		if key == "uid" || key == "ctr" || key == "cmac" {
			continue
		}
		for _, v := range values {
			params = append(params, fmt.Sprintf("%s=%s", url.QueryEscape(key), url.QueryEscape(v)))
		}
	}
	parsed.RawQuery = strings.Join(params, "&")
	fullURL := parsed.String()

	prefixCode := byte(0x00)
	uri := fullURL
	for _, p := range []struct {
		prefix string
		code   byte
	}{
		{"https://www.", 0x02},
		{"http://www.", 0x01},
		{"https://", 0x04},
		{"http://", 0x03},
	} {
		if strings.HasPrefix(fullURL, p.prefix) {
			prefixCode = p.code
			uri = fullURL[len(p.prefix):]
			break
		}
	}

	payloadLen := 1 + len(uri)
	if payloadLen > 255 {
		return nil, fmt.Errorf("URI too long")
	}
	recordLen := 4 + payloadLen
	totalLen := 2 + recordLen
	if totalLen > 256 {
		return nil, fmt.Errorf("NDEF message too long")
	}

	ndef := make([]byte, totalLen)
	ndef[0] = byte(recordLen >> 8)
	ndef[1] = byte(recordLen)
	ndef[2] = 0xD1 // TNF=Well-known, MB=1, ME=1, SR=1
	ndef[3] = 0x01 // type length
	ndef[4] = byte(payloadLen)
	ndef[5] = 0x55 // type 'U' (URI record)
	ndef[6] = prefixCode
	copy(ndef[7:], []byte(uri))

	uidIdx := bytes.Index(ndef, []byte("uid="))
	ctrIdx := bytes.Index(ndef, []byte("ctr="))
	macIdx := bytes.Index(ndef, []byte("cmac="))
	if uidIdx < 0 || ctrIdx < 0 || macIdx < 0 {
		return nil, fmt.Errorf("failed to locate uid/ctr/cmac placeholders in NDEF")
	}

	uidOffset := uidIdx + 4
	ctrOffset := ctrIdx + 4
	macOffset := macIdx + 5
	if uidOffset+sdmUIDPlaceholderLen > len(ndef) || ctrOffset+sdmCtrPlaceholderLen > len(ndef) || macOffset+sdmMacPlaceholderLen > len(ndef) {
		return nil, fmt.Errorf("SDM offsets out of range")
	}

	return &SDMNDEFLayout{
		URL:            fullURL,
		NDEF:           ndef,
		UIDOffset:      uint32(uidOffset),
		CtrOffset:      uint32(ctrOffset),
		MACInputOffset: uint32(uidIdx),
		MACOffset:      uint32(macOffset),
	}, nil
}
