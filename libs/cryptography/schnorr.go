// Package cryptography provides the signing primitives used to mint and
// check authorization receipts.  Receipts are BIP-340 Schnorr signatures
// over secp256k1; signing is deterministic (nonces are derived from the key
// and message, no auxiliary randomness) so a given (key, message) pair
// always yields the same signature bytes.  This is a deliberate, non-standard
// choice carried over from the deployed locker fleet for reproducibility.
package cryptography

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

var (
	// ErrInvalidSecretKey - the supplied secret key is not a valid secp256k1 scalar
	ErrInvalidSecretKey = errors.New("invalid secp256k1 secret key")
	// ErrInvalidPublicKey - the supplied public key is not a valid x-only secp256k1 point
	ErrInvalidPublicKey = errors.New("invalid x-only secp256k1 public key")
	// ErrInvalidSignature - the supplied signature is not a valid schnorr signature encoding
	ErrInvalidSignature = errors.New("invalid schnorr signature encoding")
)

// SchnorrSigner holds the process-wide identity key used to sign receipts
type SchnorrSigner struct {
	priv *btcec.PrivateKey
}

// NewSchnorrSignerFromHex constructs a signer from a 32 byte hex encoded secret key
func NewSchnorrSignerFromHex(secretHex string) (*SchnorrSigner, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(secretHex))
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidSecretKey
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	if priv.Key.IsZero() {
		return nil, ErrInvalidSecretKey
	}
	return &SchnorrSigner{priv: priv}, nil
}

// SignDigest produces a schnorr signature over the given digest
func (s *SchnorrSigner) SignDigest(digest [sha256.Size]byte) (*schnorr.Signature, error) {
	return schnorr.Sign(s.priv, digest[:])
}

// PublicKey returns the signer's public key
func (s *SchnorrSigner) PublicKey() *btcec.PublicKey {
	return s.priv.PubKey()
}

// PublicKeyHex returns the x-only hex serialization of the signer's public key
func (s *SchnorrSigner) PublicKeyHex() string {
	return hex.EncodeToString(schnorr.SerializePubKey(s.priv.PubKey()))
}

// ParseXOnlyPublicKey parses a 32 byte hex encoded x-only public key
func ParseXOnlyPublicKey(pubHex string) (*btcec.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(pubHex))
	if err != nil || len(raw) != schnorr.PubKeyBytesLen {
		return nil, ErrInvalidPublicKey
	}
	pub, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, ErrInvalidPublicKey
	}
	return pub, nil
}

// ParseSignature parses a 64 byte hex encoded schnorr signature
func ParseSignature(sigHex string) (*schnorr.Signature, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(sigHex))
	if err != nil || len(raw) != schnorr.SignatureSize {
		return nil, ErrInvalidSignature
	}
	sig, err := schnorr.ParseSignature(raw)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return sig, nil
}

// VerifyDigest reports whether sig is a valid signature over digest for pub
func VerifyDigest(sig *schnorr.Signature, digest [sha256.Size]byte, pub *btcec.PublicKey) bool {
	return sig.Verify(digest[:], pub)
}
