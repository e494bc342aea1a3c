package cryptography

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchnorrSignerFromHex(t *testing.T) {
	signer, err := NewSchnorrSignerFromHex(
		"0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)

	// a secret key of 1 yields the generator point as its public key
	assert.Equal(t,
		"79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		signer.PublicKeyHex())
}

func TestNewSchnorrSignerFromHexRejectsBadKeys(t *testing.T) {
	for _, secret := range []string{
		"",
		"zz",
		"deadbeef",
		"0000000000000000000000000000000000000000000000000000000000000000",
	} {
		_, err := NewSchnorrSignerFromHex(secret)
		assert.ErrorIs(t, err, ErrInvalidSecretKey, "secret %q", secret)
	}
}

func TestSignDigestVerifies(t *testing.T) {
	signer, err := NewSchnorrSignerFromHex(
		"0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("11700000000"))
	sig, err := signer.SignDigest(digest)
	require.NoError(t, err)

	assert.True(t, VerifyDigest(sig, digest, signer.PublicKey()))

	other := sha256.Sum256([]byte("21700000000"))
	assert.False(t, VerifyDigest(sig, other, signer.PublicKey()))
}

func TestSignDigestDeterministic(t *testing.T) {
	signer, err := NewSchnorrSignerFromHex(
		"0000000000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("message"))
	first, err := signer.SignDigest(digest)
	require.NoError(t, err)
	second, err := signer.SignDigest(digest)
	require.NoError(t, err)

	assert.Equal(t, first.Serialize(), second.Serialize())
}

func TestParseXOnlyPublicKey(t *testing.T) {
	_, err := ParseXOnlyPublicKey(
		"79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798")
	assert.NoError(t, err)

	for _, pub := range []string{"", "zz", "79be667e"} {
		_, err := ParseXOnlyPublicKey(pub)
		assert.ErrorIs(t, err, ErrInvalidPublicKey, "pub %q", pub)
	}
}

func TestParseSignatureRejectsMalformed(t *testing.T) {
	for _, sig := range []string{"", "zz", "cafe"} {
		_, err := ParseSignature(sig)
		assert.ErrorIs(t, err, ErrInvalidSignature, "sig %q", sig)
	}
}
