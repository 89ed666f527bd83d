package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

// SealedPrefix marks a secret stored encrypted in the client registry
const SealedPrefix = "sealed:"

const nonceSize = 24

// ComputeHMAC returns the base64 encoded HMAC-SHA256 of data under secret
func ComputeHMAC(data []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ParseKey decodes a 64 character hex string into a 32 byte key
func ParseKey(hexKey string) (*[32]byte, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// IsSealed reports whether value was produced by SealSecret
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// SealSecret encrypts plaintext with secretbox under key. The random nonce is
// prepended to the box and the result is base64 encoded behind SealedPrefix.
func SealSecret(plaintext string, key *[32]byte) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("input data is empty")
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, key)
	return SealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

// OpenSecret reverses SealSecret
func OpenSecret(sealed string, key *[32]byte) (string, error) {
	if !IsSealed(sealed) {
		return "", fmt.Errorf("value is not sealed")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(sealed, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode sealed value: %w", err)
	}
	if len(data) < nonceSize+secretbox.Overhead {
		return "", fmt.Errorf("sealed value too short: %d bytes", len(data))
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, key)
	if !ok {
		return "", fmt.Errorf("failed to open sealed value")
	}
	return string(plain), nil
}
