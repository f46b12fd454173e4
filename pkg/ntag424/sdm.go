package ntag424

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// DeriveSDMSessionKey derives the per-tap SDM MAC session key from the SDM
// file read key, the tag's 7-byte UID, and its little-endian 3-byte read
// counter: SV2 = 3C C3 00 01 00 80 || UID(7) || counter_LE(3), session key
// = AES-CMAC(baseKey, SV2).
func DeriveSDMSessionKey(baseKey, uid, ctrLE []byte) ([]byte, error) {
	if len(baseKey) != 16 {
		return nil, fmt.Errorf("SDM file key must be 16 bytes, got %d", len(baseKey))
	}
	if len(uid) != 7 {
		return nil, fmt.Errorf("UID must be 7 bytes, got %d", len(uid))
	}
	if len(ctrLE) != 3 {
		return nil, fmt.Errorf("counter must be 3 bytes, got %d", len(ctrLE))
	}
	sv2 := make([]byte, 0, 16)
	sv2 = append(sv2, 0x3C, 0xC3, 0x00, 0x01, 0x00, 0x80)
	sv2 = append(sv2, uid...)
	sv2 = append(sv2, ctrLE...)
	return AESCMAC(baseKey, sv2)
}

// ParseSDMURL extracts the uid, ctr, and cmac query parameters from a
// tapped SDM URL.
func ParseSDMURL(rawURL string) (uid, ctr, mac string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", err
	}
	q := u.Query()
	uid, ctr, mac = q.Get("uid"), q.Get("ctr"), q.Get("cmac")
	if uid == "" || ctr == "" || mac == "" {
		return uid, ctr, mac, fmt.Errorf("missing uid/ctr/cmac parameters")
	}
	return uid, ctr, mac, nil
}

// VerifySDMMAC reports whether the cmac parameter of a tapped SDM URL is
// valid for sdmFileKey. It recomputes: decode uid/ctr as lowercase hex,
// derive the session key, CMAC over "uid=<uid>&ctr=<ctr>&cmac=", truncate
// to the odd-indexed 8 bytes, and compare.
func VerifySDMMAC(rawURL string, sdmFileKey []byte) (bool, error) {
	match, _, _, err := verifySDMMAC(rawURL, sdmFileKey)
	return match, err
}

// VerifySDMMACDetailed is VerifySDMMAC plus the decoded counter and the
// computed MAC, useful for diagnostics.
func VerifySDMMACDetailed(rawURL string, sdmFileKey []byte) (match bool, counter uint32, computedMAC string, err error) {
	return verifySDMMAC(rawURL, sdmFileKey)
}

func verifySDMMAC(rawURL string, sdmFileKey []byte) (match bool, counter uint32, computedMAC string, err error) {
	uid, ctr, mac, err := ParseSDMURL(rawURL)
	if err != nil {
		return false, 0, "", err
	}
	if len(uid) != 14 || len(ctr) != 6 || len(mac) != 16 {
		return false, 0, "", fmt.Errorf("invalid parameter lengths: uid=%d ctr=%d cmac=%d (want 14,6,16)", len(uid), len(ctr), len(mac))
	}

	uidBytes, err := hex.DecodeString(uid)
	if err != nil || len(uidBytes) != 7 {
		return false, 0, "", fmt.Errorf("invalid uid hex")
	}
	ctrBE, err := hex.DecodeString(ctr)
	if err != nil || len(ctrBE) != 3 {
		return false, 0, "", fmt.Errorf("invalid ctr hex")
	}
	ctrLE := []byte{ctrBE[2], ctrBE[1], ctrBE[0]}
	counter = uint32(ctrBE[0])<<16 | uint32(ctrBE[1])<<8 | uint32(ctrBE[2])

	sessionKey, err := DeriveSDMSessionKey(sdmFileKey, uidBytes, ctrLE)
	if err != nil {
		return false, counter, "", err
	}

	macInput := fmt.Sprintf("uid=%s&ctr=%s&cmac=", uid, ctr)
	cmac, err := AESCMAC(sessionKey, []byte(macInput))
	if err != nil {
		return false, counter, "", err
	}
	computed := TruncateCMAC(cmac)
	computedMAC = hex.EncodeToString(computed)

	expected, err := hex.DecodeString(mac)
	if err != nil || len(expected) != 8 {
		return false, counter, computedMAC, fmt.Errorf("invalid cmac hex")
	}
	return bytes.Equal(computed, expected), counter, computedMAC, nil
}

// GenerateSDMURL computes what the tag itself would mint on a tap: it is
// the inverse of VerifySDMMAC, used by the emulator command to produce a
// realistic SDM URL for a given UID/counter without physical hardware.
func GenerateSDMURL(baseURL string, uid []byte, counter uint32, sdmFileKey []byte) (string, error) {
	if len(uid) != 7 {
		return "", fmt.Errorf("UID must be 7 bytes, got %d", len(uid))
	}
	if len(sdmFileKey) != 16 {
		return "", fmt.Errorf("SDM file key must be 16 bytes, got %d", len(sdmFileKey))
	}
	if counter > 0xFFFFFF {
		return "", fmt.Errorf("counter must be <= 0xFFFFFF, got %d", counter)
	}

	uidHex := hex.EncodeToString(uid)
	ctrBE := []byte{byte(counter >> 16), byte(counter >> 8), byte(counter)}
	ctrHex := hex.EncodeToString(ctrBE)
	ctrLE := []byte{ctrBE[2], ctrBE[1], ctrBE[0]}

	sessionKey, err := DeriveSDMSessionKey(sdmFileKey, uid, ctrLE)
	if err != nil {
		return "", err
	}

	macInput := fmt.Sprintf("uid=%s&ctr=%s&cmac=", uidHex, ctrHex)
	cmac, err := AESCMAC(sessionKey, []byte(macInput))
	if err != nil {
		return "", err
	}
	macHex := hex.EncodeToString(TruncateCMAC(cmac))

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	existing := parsed.Query()
	var params []string
	params = append(params, fmt.Sprintf("uid=%s", uidHex))
	params = append(params, fmt.Sprintf("ctr=%s", ctrHex))
	params = append(params, fmt.Sprintf("cmac=%s", macHex))
	for key, values := range existing {
		if key == "uid" || key == "ctr" || key == "cmac" {
			continue
		}
		for _, v := range values {
			params = append(params, fmt.Sprintf("%s=%s", url.QueryEscape(key), url.QueryEscape(v)))
		}
	}
	parsed.RawQuery = strings.Join(params, "&")
	return parsed.String(), nil
}
