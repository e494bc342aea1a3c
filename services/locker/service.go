package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	appctx "github.com/boltbox/boltbox/libs/context"
	"github.com/boltbox/boltbox/libs/clients/ln"
	"github.com/boltbox/boltbox/libs/cryptography"
	"github.com/boltbox/boltbox/libs/logging"
)

var (
	// ErrLockerNotInUse - billing was requested for a locker with no active session
	ErrLockerNotInUse = errors.New("locker is not in use")
	// ErrInvoiceUnpaid - a receipt was requested for an invoice that has not settled
	ErrInvoiceUnpaid = errors.New("invoice has not been paid")
	// ErrStaleConfirmation - the open confirmation timestamp is outside the freshness window
	ErrStaleConfirmation = errors.New("open confirmation timestamp is stale")
	// ErrPaymentBackend - the lightning backend failed to serve a request
	ErrPaymentBackend = errors.New("payment backend request failed")
)

// allow for a little clock drift on confirmations from locker hardware
const confirmClockSkew = time.Minute

// BillingStatement is returned when a session ends: the lease duration in
// seconds doubles as the invoice amount in sats
type BillingStatement struct {
	LockerID  int64       `json:"locker_id"`
	LeaseTime int64       `json:"lease_time"`
	Invoice   *ln.Invoice `json:"invoice"`
}

// ConfirmOpenRequest is the signed acknowledgement the locker hardware sends
// after physically opening
type ConfirmOpenRequest struct {
	LockerID  int64  `json:"locker_id" valid:"required"`
	Signature string `json:"signature" valid:"hexadecimal,required"`
	Timestamp int64  `json:"timestamp" valid:"required"`
}

// Service coordinates locker state transitions, billing and receipt issuance
type Service struct {
	Datastore Datastore

	ln            ln.Client
	signer        *cryptography.SchnorrSigner
	confirmWindow time.Duration
}

// NewService creates a new locker service
func NewService(datastore Datastore, lnClient ln.Client, signer *cryptography.SchnorrSigner, confirmWindow time.Duration) *Service {
	if confirmWindow <= 0 {
		confirmWindow = 5 * time.Minute
	}
	return &Service{
		Datastore:     datastore,
		ln:            lnClient,
		signer:        signer,
		confirmWindow: confirmWindow,
	}
}

// InitService creates a service using the passed context for configuration
func InitService(ctx context.Context, datastore Datastore, lnClient ln.Client) (*Service, error) {
	logger := logging.Logger(ctx, "locker.InitService")

	secretHex, err := appctx.GetStringFromContext(ctx, appctx.SigningSecretKeyCTXKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get signing secret key: %w", err)
	}

	signer, err := cryptography.NewSchnorrSignerFromHex(secretHex)
	if err != nil {
		return nil, fmt.Errorf("failed to construct receipt signer: %w", err)
	}

	confirmWindow, _ := appctx.GetDurationFromContext(ctx, appctx.OpenConfirmWindowCTXKey)

	logger.Info().Str("server_pubkey", signer.PublicKeyHex()).Msg("locker service starting")

	return NewService(datastore, lnClient, signer, confirmWindow), nil
}

// GetLocker returns the locker with the given id
func (s *Service) GetLocker(ctx context.Context, lockerID int64) (*Locker, error) {
	return s.Datastore.GetLocker(ctx, lockerID)
}

// ListLockers returns all provisioned lockers
func (s *Service) ListLockers(ctx context.Context) ([]Locker, error) {
	return s.Datastore.ListLockers(ctx)
}

// CreateLocker provisions a new locker bound to an x-only public key
func (s *Service) CreateLocker(ctx context.Context, publicKeyHex string) (*Locker, error) {
	if _, err := cryptography.ParseXOnlyPublicKey(publicKeyHex); err != nil {
		return nil, err
	}
	return s.Datastore.CreateLocker(ctx, publicKeyHex)
}

// BeginSession moves an available locker to in_use and returns a start of
// session receipt signed by the server identity key
func (s *Service) BeginSession(ctx context.Context, lockerID int64) (*SessionReceipt, error) {
	logger := logging.Logger(ctx, "locker.BeginSession")

	now := time.Now().Unix()
	locker, err := s.Datastore.BeginSession(ctx, lockerID, now)
	if err != nil {
		return nil, err
	}

	signature, err := s.signReceipt(locker.ID, now)
	if err != nil {
		logger.Error().Err(err).Int64("locker_id", lockerID).Msg("failed to sign session receipt")
		return nil, fmt.Errorf("failed to sign session receipt: %w", err)
	}

	return &SessionReceipt{
		LockerID:  locker.ID,
		StartTime: now,
		Signature: signature,
	}, nil
}

// EndSession computes the lease duration for an in_use locker, requests an
// invoice of that amount and records the pending payment.  The locker stays
// in_use until the matching open confirmation arrives.
func (s *Service) EndSession(ctx context.Context, lockerID int64) (*BillingStatement, error) {
	logger := logging.Logger(ctx, "locker.EndSession")

	locker, err := s.Datastore.GetLocker(ctx, lockerID)
	if err != nil {
		return nil, err
	}
	if locker.State != LockerStateInUse {
		return nil, ErrLockerNotInUse
	}

	leaseTime := time.Now().Unix() - locker.SessionStart

	// the backend call is a blocking network operation, made outside of any
	// datastore transaction
	invoice, err := s.ln.CreateInvoice(ctx, leaseTime)
	if err != nil {
		logger.Error().Err(err).Int64("locker_id", lockerID).Msg("failed to create invoice")
		return nil, fmt.Errorf("%w: %v", ErrPaymentBackend, err)
	}

	if _, err := s.Datastore.InsertPendingPayment(ctx, leaseTime, invoice.PaymentHash, lockerID); err != nil {
		return nil, err
	}

	logger.Info().
		Int64("locker_id", lockerID).
		Int64("lease_time", leaseTime).
		Str("payment_hash", invoice.PaymentHash).
		Msg("session billed")

	return &BillingStatement{
		LockerID:  lockerID,
		LeaseTime: leaseTime,
		Invoice:   invoice,
	}, nil
}

// FetchReceipt returns the redeemable unlock receipt for a settled payment.
// The payment record persists afterwards so the receipt can be fetched again;
// the locker itself stays in_use until the open confirmation arrives.
func (s *Service) FetchReceipt(ctx context.Context, paymentHash string) (*SessionReceipt, error) {
	logger := logging.Logger(ctx, "locker.FetchReceipt")

	status, err := s.ln.InvoiceStatus(ctx, paymentHash)
	if err != nil {
		logger.Error().Err(err).Str("payment_hash", paymentHash).Msg("failed to query invoice status")
		return nil, ErrInvoiceUnpaid
	}
	if status != ln.InvoiceStatusPaid {
		return nil, ErrInvoiceUnpaid
	}

	payment, err := s.Datastore.GetPendingPayment(ctx, paymentHash)
	if err != nil {
		return nil, err
	}

	if payment.Status != PaymentStatusPaid {
		if err := s.Datastore.MarkPendingPaymentPaid(ctx, paymentHash); err != nil {
			return nil, err
		}
	}

	now := time.Now().Unix()
	signature, err := s.signReceipt(payment.LockerID, now)
	if err != nil {
		logger.Error().Err(err).Int64("locker_id", payment.LockerID).Msg("failed to sign unlock receipt")
		return nil, fmt.Errorf("failed to sign unlock receipt: %w", err)
	}

	// the timestamp returned is the one the signature covers, so the caller
	// can hand both to the locker for verification
	return &SessionReceipt{
		LockerID:  payment.LockerID,
		StartTime: now,
		Signature: signature,
	}, nil
}

// ConfirmOpen verifies a signed open acknowledgement from the locker
// hardware and releases the locker.  The signature must verify against the
// locker's own stored key, not the server key, and the timestamp must fall
// inside the freshness window.  A device holding the locker key is otherwise
// trusted; confirmations are idempotent.
func (s *Service) ConfirmOpen(ctx context.Context, req ConfirmOpenRequest) (*Locker, error) {
	logger := logging.Logger(ctx, "locker.ConfirmOpen")

	now := time.Now()
	confirmedAt := time.Unix(req.Timestamp, 0)
	if now.Sub(confirmedAt) > s.confirmWindow || confirmedAt.Sub(now) > confirmClockSkew {
		return nil, ErrStaleConfirmation
	}

	locker, err := s.Datastore.GetLocker(ctx, req.LockerID)
	if err != nil {
		return nil, err
	}

	if err := VerifyReceipt(req.Signature, req.LockerID, req.Timestamp, locker.PublicKey); err != nil {
		logger.Warn().Int64("locker_id", req.LockerID).Msg("open confirmation failed verification")
		return nil, err
	}

	released, err := s.Datastore.ReleaseLocker(ctx, req.LockerID)
	if err != nil {
		return nil, err
	}

	logger.Info().Int64("locker_id", req.LockerID).Msg("locker opened")
	return released, nil
}
