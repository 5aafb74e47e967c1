package crypto

import (
	"crypto/aes"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
)

const (
	// ChannelKeySize is the AES-128 key length used by channels.
	ChannelKeySize = 16

	// MACSize is the truncated HMAC tag length carried on the wire.
	MACSize = 2

	// BlockSize is the AES block size; ciphertext is always a multiple of it.
	BlockSize = aes.BlockSize
)

// ErrNotBlockAligned means a ciphertext length is not a multiple of the AES
// block size and cannot have been produced by Encrypt.
var ErrNotBlockAligned = errors.New("ciphertext not block aligned")

// publicChannelKey is the well-known key shared by every MeshCore device for
// the default public channel (base64 izOH6cXN6mrJ5e25oRXNcg==).
var publicChannelKey = [ChannelKeySize]byte{
	0x8b, 0x33, 0x87, 0xe9, 0xc5, 0xcd, 0xea, 0x6a,
	0xc9, 0xe5, 0xed, 0xba, 0xa1, 0x15, 0xcd, 0x72,
}

// PublicChannelKey returns the well-known public channel key.
func PublicChannelKey() [ChannelKeySize]byte {
	return publicChannelKey
}

// DeriveChannelKey derives a channel key from a channel name or password:
// the first 16 bytes of its SHA-256 digest.
func DeriveChannelKey(input string) [ChannelKeySize]byte {
	digest := sha256.Sum256([]byte(input))
	var key [ChannelKeySize]byte
	copy(key[:], digest[:ChannelKeySize])
	return key
}

// ChannelHash is the 1-byte wire identifier for a channel: the first byte of
// SHA-256 over the key. It tags packets without revealing the key; distinct
// keys may collide and the protocol accepts that.
func ChannelHash(key [ChannelKeySize]byte) byte {
	digest := sha256.Sum256(key[:])
	return digest[0]
}

// Encrypt runs AES-128-ECB over the plaintext, zero-padded up to the next
// block boundary. ECB with no IV is the documented upstream wire format,
// preserved for compatibility; it is not semantically secure across messages
// and must not be reused in new designs.
func Encrypt(key [ChannelKeySize]byte, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes init: %w", err)
	}

	padded := pad(plaintext)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += BlockSize {
		block.Encrypt(out[i:i+BlockSize], padded[i:i+BlockSize])
	}
	return out, nil
}

// Decrypt reverses Encrypt. The result still carries the zero padding: the
// caller strips it based on the embedded message's own terminator, since the
// padding is zero-fill rather than length-prefixed.
func Decrypt(key [ChannelKeySize]byte, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrNotBlockAligned, len(ciphertext))
	}

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("aes init: %w", err)
	}

	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += BlockSize {
		block.Decrypt(out[i:i+BlockSize], ciphertext[i:i+BlockSize])
	}
	return out, nil
}

// MAC computes the 2-byte authentication tag over a plaintext: HMAC-SHA256
// keyed by the channel key extended with 16 zero bytes, truncated to the
// first two bytes. Truncation leaves only ~16 bits of forgery resistance;
// that is acceptable upstream solely because channel keys are secret, and
// must not be silently strengthened without breaking wire compatibility.
func MAC(key [ChannelKeySize]byte, plaintext []byte) [MACSize]byte {
	hmacKey := make([]byte, 32)
	copy(hmacKey, key[:])

	mac := hmac.New(sha256.New, hmacKey)
	mac.Write(plaintext)
	full := mac.Sum(nil)

	var tag [MACSize]byte
	copy(tag[:], full[:MACSize])
	return tag
}

// VerifyMAC recomputes the tag over plaintext and compares in constant time.
func VerifyMAC(key [ChannelKeySize]byte, plaintext []byte, tag [MACSize]byte) bool {
	expected := MAC(key, plaintext)
	return hmac.Equal(expected[:], tag[:])
}

func pad(data []byte) []byte {
	rem := len(data) % BlockSize
	if rem == 0 && len(data) > 0 {
		return data
	}
	padded := make([]byte, len(data)+BlockSize-rem)
	copy(padded, data)
	return padded
}
