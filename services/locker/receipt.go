package locker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/boltbox/boltbox/libs/cryptography"
)

// ErrSignatureInvalid covers malformed keys, malformed signatures and failed
// verification alike.  Callers are deliberately unable to tell which, so a
// remote party cannot use the distinction as an oracle.
var ErrSignatureInvalid = errors.New("signature verification failed")

// SessionReceipt is a server authorization over a locker at a point in time.
// The signature covers (locker_id, timestamp) and verifies against the
// server identity key; it is derived on demand and never stored.
type SessionReceipt struct {
	LockerID  int64  `json:"locker_id"`
	StartTime int64  `json:"start_time"`
	Signature string `json:"signature"`
}

// receiptDigest builds the message digest receipts are signed over: sha256 of
// the decimal locker id immediately followed by the decimal timestamp.  There
// is no delimiter between the two fields; the deployed locker hardware hashes
// the same bytes, so this layout is load bearing.
func receiptDigest(lockerID, timestamp int64) [sha256.Size]byte {
	msg := strconv.FormatInt(lockerID, 10) + strconv.FormatInt(timestamp, 10)
	return sha256.Sum256([]byte(msg))
}

// signReceipt signs (lockerID, timestamp) with the server identity key and
// returns the upper case hex encoded signature
func (s *Service) signReceipt(lockerID, timestamp int64) (string, error) {
	digest := receiptDigest(lockerID, timestamp)
	sig, err := s.signer.SignDigest(digest)
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(sig.Serialize())), nil
}

// VerifyReceipt checks signatureHex over (lockerID, timestamp) against the
// x-only public key publicKeyHex.  Any failure, malformed input included,
// comes back as ErrSignatureInvalid.
func VerifyReceipt(signatureHex string, lockerID, timestamp int64, publicKeyHex string) error {
	pub, err := cryptography.ParseXOnlyPublicKey(publicKeyHex)
	if err != nil {
		return ErrSignatureInvalid
	}
	sig, err := cryptography.ParseSignature(signatureHex)
	if err != nil {
		return ErrSignatureInvalid
	}
	if !cryptography.VerifyDigest(sig, receiptDigest(lockerID, timestamp), pub) {
		return ErrSignatureInvalid
	}
	return nil
}
