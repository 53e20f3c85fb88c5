package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	ivLength  = 12
	tagLength = 16
)

// legacyPrefix marks tokens written by the retired Fernet scheme:
// version byte 0x80 followed by a big-endian timestamp, base64-encoded,
// always starts with "gAAAAA".
const legacyPrefix = "gAAAAA"

var errCiphertextTooShort = errors.New("ciphertext too short")

// cipherBox performs AEAD encryption of token material. The write path
// is AES-256-GCM with the wire layout base64(iv[12] || tag[16] || ct);
// the read path additionally accepts legacy Fernet payloads keyed off
// the same 32-byte key.
type cipherBox struct {
	aead      cipher.AEAD
	legacyKey []byte
}

func newCipherBox(key []byte) (*cipherBox, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &cipherBox{aead: aead, legacyKey: key}, nil
}

// Encrypt seals plaintext with AES-256-GCM. Every write uses the
// current format regardless of what format the row was read in.
func (c *cipherBox) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, ivLength)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	// Seal appends ct||tag; the wire layout wants iv||tag||ct
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct := sealed[:len(sealed)-tagLength]
	tag := sealed[len(sealed)-tagLength:]

	combined := make([]byte, 0, ivLength+tagLength+len(ct))
	combined = append(combined, iv...)
	combined = append(combined, tag...)
	combined = append(combined, ct...)
	return base64.StdEncoding.EncodeToString(combined), nil
}

// Decrypt opens a stored token. Legacy Fernet payloads are detected by
// prefix and handled read-only; anything that fails to decrypt is an
// error, never silently-empty credentials.
func (c *cipherBox) Decrypt(ciphertext string) (string, error) {
	if strings.HasPrefix(ciphertext, legacyPrefix) {
		plaintext, err := c.decryptLegacy(ciphertext)
		if err == nil {
			return plaintext, nil
		}
		// Fall through: a GCM payload could in principle share the prefix
	}

	combined, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode token ciphertext: %w", err)
	}
	if len(combined) < ivLength+tagLength {
		return "", errCiphertextTooShort
	}

	iv := combined[:ivLength]
	tag := combined[ivLength : ivLength+tagLength]
	ct := combined[ivLength+tagLength:]

	sealed := make([]byte, 0, len(ct)+tagLength)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt token: %w", err)
	}
	return string(plaintext), nil
}

// decryptLegacy opens a Fernet token: 0x80 || ts[8] || iv[16] ||
// ct (AES-128-CBC) || hmac[32], with the 32-byte key split into a
// signing half and an encryption half.
func (c *cipherBox) decryptLegacy(token string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("decode legacy token: %w", err)
	}
	if len(raw) < 1+8+16+32 {
		return "", errCiphertextTooShort
	}
	if raw[0] != 0x80 {
		return "", fmt.Errorf("unsupported legacy token version 0x%02x", raw[0])
	}

	signingKey := c.legacyKey[:16]
	encKey := c.legacyKey[16:32]

	body := raw[:len(raw)-32]
	mac := raw[len(raw)-32:]

	h := hmac.New(sha256.New, signingKey)
	h.Write(body)
	if !hmac.Equal(h.Sum(nil), mac) {
		return "", errors.New("legacy token signature mismatch")
	}

	// Timestamp is not validated; legacy rows have no TTL
	_ = binary.BigEndian.Uint64(raw[1:9])

	iv := raw[9:25]
	ct := body[25:]
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", errors.New("legacy token ciphertext not block-aligned")
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", err
	}
	plaintext := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ct)

	unpadded, err := stripPKCS7(plaintext)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

// stripPKCS7 removes CBC padding; returns an error for invalid padding
// so corrupt rows surface instead of yielding garbage credentials.
func stripPKCS7(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty plaintext")
	}
	pad := int(b[len(b)-1])
	if pad == 0 || pad > aes.BlockSize || pad > len(b) {
		return nil, errors.New("invalid padding")
	}
	if !bytes.Equal(b[len(b)-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, errors.New("invalid padding")
	}
	return b[:len(b)-pad], nil
}
