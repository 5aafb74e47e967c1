// Package crypto provides the MeshCore cryptographic primitives: Ed25519
// identity keys, X25519 key agreement, and the symmetric channel scheme
// (AES-128-ECB with a truncated HMAC-SHA256 tag).
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"
	"golang.org/x/crypto/curve25519"
)

// KeyPair represents a public/private key pair for signing and verification.
type KeyPair struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// GenerateKeyPair creates a new Ed25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		PublicKey:  publicKey,
		PrivateKey: privateKey,
	}, nil
}

// KeyPairFromSeed rebuilds a key pair from a persisted 32-byte seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length %d", len(seed))
	}
	privateKey := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{
		PublicKey:  privateKey.Public().(ed25519.PublicKey),
		PrivateKey: privateKey,
	}, nil
}

// Seed returns the 32-byte private seed for persistence.
func (kp *KeyPair) Seed() []byte {
	return kp.PrivateKey.Seed()
}

// Sign creates a signature for the given message using the private key.
func (kp *KeyPair) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(kp.PrivateKey, message), nil
}

// Verify checks if the signature is valid for the given message.
func (kp *KeyPair) Verify(message, signature []byte) bool {
	return ed25519.Verify(kp.PublicKey, message, signature)
}

// VerifyWith checks a signature against an arbitrary public key.
func VerifyWith(publicKey ed25519.PublicKey, message, signature []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(publicKey, message, signature)
}

// SharedSecret computes the X25519 shared secret with a peer's Ed25519
// public key. Both keys are mapped to their Montgomery form first, so two
// nodes exchanging only Ed25519 identities can agree on a 32-byte secret.
func (kp *KeyPair) SharedSecret(peerPublicKey ed25519.PublicKey) ([]byte, error) {
	if len(peerPublicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid peer public key length %d", len(peerPublicKey))
	}

	point, err := new(edwards25519.Point).SetBytes(peerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid peer public key: %w", err)
	}
	peerMontgomery := point.BytesMontgomery()

	// The X25519 scalar is the clamped low half of SHA-512(seed), the same
	// expansion Ed25519 signing uses.
	h := sha512.Sum512(kp.PrivateKey.Seed())
	scalar := h[:curve25519.ScalarSize]
	scalar[0] &= 248
	scalar[31] &= 127
	scalar[31] |= 64

	secret, err := curve25519.X25519(scalar, peerMontgomery)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	return secret, nil
}
