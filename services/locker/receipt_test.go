package locker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltbox/boltbox/libs/cryptography"
)

const (
	testSecretKeyHex = "0000000000000000000000000000000000000000000000000000000000000001"
	// x coordinate of the secp256k1 generator point, the public key matching
	// a secret key of 1
	testPublicKeyHex = "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798"
)

func newTestSigner(t *testing.T) *cryptography.SchnorrSigner {
	signer, err := cryptography.NewSchnorrSignerFromHex(testSecretKeyHex)
	require.NoError(t, err)
	return signer
}

func TestReceiptRoundTrip(t *testing.T) {
	s := &Service{signer: newTestSigner(t)}

	sig, err := s.signReceipt(1, 1700000000)
	require.NoError(t, err)

	assert.NoError(t, VerifyReceipt(sig, 1, 1700000000, s.signer.PublicKeyHex()))
}

func TestReceiptBindsLockerAndTime(t *testing.T) {
	s := &Service{signer: newTestSigner(t)}

	sig, err := s.signReceipt(1, 1700000000)
	require.NoError(t, err)

	pub := s.signer.PublicKeyHex()

	assert.ErrorIs(t, VerifyReceipt(sig, 2, 1700000000, pub), ErrSignatureInvalid,
		"a receipt for one locker must not authorize another")
	assert.ErrorIs(t, VerifyReceipt(sig, 1, 1700000001, pub), ErrSignatureInvalid,
		"a receipt must not verify at any other timestamp")
}

func TestReceiptRejectsWrongKey(t *testing.T) {
	s := &Service{signer: newTestSigner(t)}

	sig, err := s.signReceipt(1, 1700000000)
	require.NoError(t, err)

	other, err := cryptography.NewSchnorrSignerFromHex(
		"0000000000000000000000000000000000000000000000000000000000000002")
	require.NoError(t, err)

	assert.ErrorIs(t, VerifyReceipt(sig, 1, 1700000000, other.PublicKeyHex()), ErrSignatureInvalid)
}

func TestReceiptRejectsMalformedInputs(t *testing.T) {
	s := &Service{signer: newTestSigner(t)}

	sig, err := s.signReceipt(1, 1700000000)
	require.NoError(t, err)

	// malformed inputs fail the same way as bad signatures
	assert.ErrorIs(t, VerifyReceipt("zz", 1, 1700000000, s.signer.PublicKeyHex()), ErrSignatureInvalid)
	assert.ErrorIs(t, VerifyReceipt(sig, 1, 1700000000, "not-hex"), ErrSignatureInvalid)
	assert.ErrorIs(t, VerifyReceipt(sig[:16], 1, 1700000000, s.signer.PublicKeyHex()), ErrSignatureInvalid)
}

func TestReceiptSignatureDeterministic(t *testing.T) {
	s := &Service{signer: newTestSigner(t)}

	first, err := s.signReceipt(42, 1700000000)
	require.NoError(t, err)
	second, err := s.signReceipt(42, 1700000000)
	require.NoError(t, err)

	// nonces are derived from the key and message, no auxiliary randomness
	assert.Equal(t, first, second)
}

func TestReceiptSignatureEncoding(t *testing.T) {
	s := &Service{signer: newTestSigner(t)}

	sig, err := s.signReceipt(1, 1700000000)
	require.NoError(t, err)

	assert.Len(t, sig, 128, "a schnorr signature is 64 bytes, 128 hex characters")
	assert.Equal(t, strings.ToUpper(sig), sig, "signatures are upper case hex on the wire")
}

func TestReceiptDigestLayout(t *testing.T) {
	// the digest is over decimal id followed by decimal timestamp with no
	// delimiter, so distinct (id, timestamp) pairs can hash identically when
	// digits shift across the boundary
	assert.Equal(t, receiptDigest(1, 23), receiptDigest(12, 3))
	assert.NotEqual(t, receiptDigest(1, 23), receiptDigest(1, 24))
}
