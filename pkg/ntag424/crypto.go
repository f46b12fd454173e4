// Package ntag424 implements the APDU-level protocol for NXP NTAG424 DNA
// tags: AES-128 primitives, the secure messaging session, the closed set of
// DESFire/ISO commands this system issues, and Secure Dynamic Messaging
// (SDM) NDEF construction and verification.
package ntag424

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// AES128ECBEncrypt encrypts a single 16-byte block under AES-128, no chaining.
// Used only for the per-command IV construction in session.go.
func AES128ECBEncrypt(key, block []byte) ([]byte, error) {
	if len(block) != 16 {
		return nil, fmt.Errorf("ntag424: ECB input must be 16 bytes, got %d", len(block))
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 16)
	c.Encrypt(out, block)
	return out, nil
}

// AES128CBCEncrypt encrypts data (already block-aligned) under AES-128-CBC.
func AES128CBCEncrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%16 != 0 {
		return nil, errors.New("ntag424: CBC encrypt input not block aligned")
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c, iv).CryptBlocks(out, data)
	return out, nil
}

// AES128CBCDecrypt decrypts data (already block-aligned) under AES-128-CBC.
func AES128CBCDecrypt(key, iv, data []byte) ([]byte, error) {
	if len(data)%16 != 0 {
		return nil, errors.New("ntag424: CBC decrypt input not block aligned")
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c, iv).CryptBlocks(out, data)
	return out, nil
}

// PadISO7816_4 applies ISO/IEC 9797-1 Padding Method 2: one 0x80 byte
// followed by zero bytes up to the next 16-byte boundary. This is NOT
// PKCS#7 — the tag rejects PKCS#7-padded payloads with an integrity error.
func PadISO7816_4(data []byte) []byte {
	padLen := 16 - (len(data) % 16)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

// UnpadISO7816_4 reverses PadISO7816_4: strip trailing zero bytes, then the
// terminating 0x80.
func UnpadISO7816_4(data []byte) ([]byte, error) {
	idx := len(data) - 1
	for idx >= 0 && data[idx] == 0x00 {
		idx--
	}
	if idx < 0 || data[idx] != 0x80 {
		return nil, errors.New("ntag424: bad ISO 7816-4 padding")
	}
	return data[:idx], nil
}

func rotateLeft1(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	copy(out, in[1:])
	out[len(in)-1] = in[0]
	return out
}

func rotateRight1(in []byte) []byte {
	out := make([]byte, len(in))
	if len(in) == 0 {
		return out
	}
	out[0] = in[len(in)-1]
	copy(out[1:], in[:len(in)-1])
	return out
}

// AESCMAC computes the NIST SP 800-38B / RFC 4493 AES-128 CMAC of msg.
func AESCMAC(key, msg []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	k1, k2 := generateCMACSubkeys(block)

	n := (len(msg) + 15) / 16
	if n == 0 {
		n = 1
	}
	lastComplete := len(msg) != 0 && len(msg)%16 == 0

	last := make([]byte, 16)
	if lastComplete {
		copy(last, msg[(n-1)*16:])
		xorBlock(last, last, k1)
	} else {
		remain := len(msg) - (n-1)*16
		if remain > 0 {
			copy(last, msg[(n-1)*16:])
		}
		last[remain] = 0x80
		xorBlock(last, last, k2)
	}

	x := make([]byte, 16)
	y := make([]byte, 16)
	for i := 0; i < n-1; i++ {
		blockStart := i * 16
		xorBlock(y, x, msg[blockStart:blockStart+16])
		block.Encrypt(x, y)
	}
	xorBlock(y, x, last)
	block.Encrypt(x, y)
	return x, nil
}

func generateCMACSubkeys(block cipherBlock) (k1, k2 []byte) {
	const rb = 0x87
	zero := make([]byte, 16)
	l := make([]byte, 16)
	block.Encrypt(l, zero)

	k1 = make([]byte, 16)
	leftShift1(k1, l)
	if (l[0] & 0x80) != 0 {
		k1[15] ^= rb
	}

	k2 = make([]byte, 16)
	leftShift1(k2, k1)
	if (k1[0] & 0x80) != 0 {
		k2[15] ^= rb
	}
	return k1, k2
}

type cipherBlock interface {
	Encrypt(dst, src []byte)
}

func leftShift1(dst, src []byte) {
	var carry byte
	for i := len(src) - 1; i >= 0; i-- {
		b := src[i]
		dst[i] = (b << 1) | carry
		carry = (b >> 7) & 1
	}
}

func xorBlock(dst, a, b []byte) {
	for i := 0; i < len(a) && i < len(b); i++ {
		dst[i] = a[i] ^ b[i]
	}
}

// TruncateCMAC reduces a 16-byte CMAC to the 8-byte tag the tag firmware
// actually checks: the odd-indexed bytes (1, 3, 5, ... 15). Any other
// truncation scheme fails on-tag with integrity error 911E.
func TruncateCMAC(cmac []byte) []byte {
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = cmac[1+i*2]
	}
	return out
}

// CRC32IEEE computes the IEEE 802.3 CRC32 (polynomial 0xEDB88320) used to
// checksum the new key in ChangeKey payloads for key slots 1-4.
func CRC32IEEE(data []byte) uint32 {
	const poly = uint32(0xEDB88320)
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ poly
			} else {
				crc = crc >> 1
			}
		}
	}
	return ^crc
}

// crc32LE returns the little-endian bytes of a CRC32IEEE checksum.
func crc32LE(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
