// Package security provides the credential and one-time-code primitives
// used by the console: OTP payload decryption, bearer token inspection,
// challenge code digests and identifier generation.
package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrMalformedPayload = errors.New("otp payload is not ivHex:encHex")
	ErrBadPadding       = errors.New("otp payload has invalid padding")
	ErrEmptyCode        = errors.New("otp payload decrypted to an empty code")
)

// OTPCipher decrypts the one-time codes returned by the backend's send-OTP
// call. The key is the SHA-256 digest of a secret shared with the backend.
//
// Known limitation: the backend hands the code to the console and the
// console compares it locally. Verification belongs on the backend; this
// cipher exists only because the backend contract requires it.
type OTPCipher struct {
	key []byte
}

func NewOTPCipher(secret string) *OTPCipher {
	sum := sha256.Sum256([]byte(secret))
	return &OTPCipher{key: sum[:]}
}

// Decrypt opens an "ivHex:encHex" payload sealed with AES-CBC and PKCS7 padding.
func (c *OTPCipher) Decrypt(payload string) (string, error) {
	ivHex, encHex, ok := strings.Cut(strings.TrimSpace(payload), ":")
	if !ok || ivHex == "" || encHex == "" {
		return "", ErrMalformedPayload
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", fmt.Errorf("%w: bad iv", ErrMalformedPayload)
	}
	ciphertext, err := hex.DecodeString(encHex)
	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: bad ciphertext", ErrMalformedPayload)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ciphertext)

	plain, err = pkcs7Unpad(plain)
	if err != nil {
		return "", err
	}
	if len(plain) == 0 {
		return "", ErrEmptyCode
	}
	return string(plain), nil
}

// Encrypt seals code the way the backend does, with a random IV. Used by
// local development backends and tests.
func (c *OTPCipher) Encrypt(code string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("failed to generate iv: %w", err)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}
	plain := pkcs7Pad([]byte(code))
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

func pkcs7Pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte) ([]byte, error) {
	if len(b) == 0 || len(b)%aes.BlockSize != 0 {
		return nil, ErrBadPadding
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrBadPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrBadPadding
		}
	}
	return b[:len(b)-n], nil
}
