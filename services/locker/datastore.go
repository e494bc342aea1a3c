package locker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/boltbox/boltbox/libs/datastore"

	// needed for magic migration
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const (
	// LockerStateAvailable - the locker is free and a session may begin
	LockerStateAvailable = "available"
	// LockerStateInUse - the locker is occupied by an active session
	LockerStateInUse = "in_use"
)

const (
	// PaymentStatusPending - the invoice for this payment has not been observed paid
	PaymentStatusPending = "pending"
	// PaymentStatusPaid - the invoice for this payment was observed paid
	PaymentStatusPaid = "paid"
)

var (
	// ErrLockerNotFound - no locker exists under the requested id
	ErrLockerNotFound = errors.New("locker not found")
	// ErrLockerNotAvailable - the locker is not in the available state
	ErrLockerNotAvailable = errors.New("locker is not available")
	// ErrPaymentNotFound - no pending payment exists under the requested payment hash
	ErrPaymentNotFound = errors.New("pending payment not found")
)

// Locker is a physical access unit controlled by this service.
// SessionStart is only meaningful while State is in_use.
type Locker struct {
	ID           int64     `json:"id" db:"id"`
	PublicKey    string    `json:"public_key" db:"public_key"`
	State        string    `json:"state" db:"state"`
	SessionStart int64     `json:"start_time" db:"session_start"`
	CreatedAt    time.Time `json:"-" db:"created_at"`
	UpdatedAt    time.Time `json:"-" db:"updated_at"`
}

// PendingPayment ties an issued invoice to the locker session it bills
type PendingPayment struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Amount      int64     `json:"amount" db:"amount"`
	PaymentHash string    `json:"payment_hash" db:"payment_hash"`
	Status      string    `json:"status" db:"status"`
	LockerID    int64     `json:"locker_id" db:"locker_id"`
	CreatedAt   time.Time `json:"-" db:"created_at"`
}

// Datastore abstracts over the underlying datastore
type Datastore interface {
	datastore.Datastore
	// GetLocker returns the locker with the given id
	GetLocker(ctx context.Context, lockerID int64) (*Locker, error)
	// ListLockers returns all provisioned lockers
	ListLockers(ctx context.Context) ([]Locker, error)
	// CreateLocker provisions a new locker bound to an authorized public key
	CreateLocker(ctx context.Context, publicKey string) (*Locker, error)
	// BeginSession atomically moves an available locker to in_use with the given start time
	BeginSession(ctx context.Context, lockerID int64, startTime int64) (*Locker, error)
	// ReleaseLocker moves a locker back to available, clearing the session start
	ReleaseLocker(ctx context.Context, lockerID int64) (*Locker, error)
	// InsertPendingPayment records a pending payment for a billed session
	InsertPendingPayment(ctx context.Context, amount int64, paymentHash string, lockerID int64) (*PendingPayment, error)
	// GetPendingPayment returns the pending payment behind a payment hash
	GetPendingPayment(ctx context.Context, paymentHash string) (*PendingPayment, error)
	// MarkPendingPaymentPaid flips a pending payment to paid, idempotently
	MarkPendingPaymentPaid(ctx context.Context, paymentHash string) error
}

// Postgres is a Datastore wrapper around a postgres database
type Postgres struct {
	datastore.Postgres
}

// NewPostgres creates a new Postgres Datastore
func NewPostgres(databaseURL string, performMigration bool, dbStatsPrefix string) (Datastore, error) {
	pg, err := datastore.NewPostgres(databaseURL, performMigration, dbStatsPrefix)
	if pg != nil {
		return &Postgres{*pg}, err
	}
	return nil, err
}

// GetLocker returns the locker with the given id
func (pg *Postgres) GetLocker(ctx context.Context, lockerID int64) (*Locker, error) {
	var locker Locker
	err := pg.RawDB().GetContext(ctx, &locker, `
		SELECT id, public_key, state, session_start, created_at, updated_at
		FROM lockers
		WHERE id = $1`, lockerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLockerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get locker: %w", err)
	}
	return &locker, nil
}

// ListLockers returns all provisioned lockers
func (pg *Postgres) ListLockers(ctx context.Context) ([]Locker, error) {
	lockers := []Locker{}
	err := pg.RawDB().SelectContext(ctx, &lockers, `
		SELECT id, public_key, state, session_start, created_at, updated_at
		FROM lockers
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list lockers: %w", err)
	}
	return lockers, nil
}

// CreateLocker provisions a new locker bound to an authorized public key
func (pg *Postgres) CreateLocker(ctx context.Context, publicKey string) (*Locker, error) {
	var locker Locker
	err := pg.RawDB().GetContext(ctx, &locker, `
		INSERT INTO lockers (public_key, state, session_start)
		VALUES ($1, $2, 0)
		RETURNING id, public_key, state, session_start, created_at, updated_at`,
		publicKey, LockerStateAvailable)
	if err != nil {
		return nil, fmt.Errorf("failed to create locker: %w", err)
	}
	return &locker, nil
}

// BeginSession atomically moves an available locker to in_use.  The state
// check and the write are one conditional update so two concurrent begin
// requests can never both win.
func (pg *Postgres) BeginSession(ctx context.Context, lockerID int64, startTime int64) (*Locker, error) {
	var locker Locker
	err := pg.RawDB().GetContext(ctx, &locker, `
		UPDATE lockers
		SET state = $2, session_start = $3, updated_at = now()
		WHERE id = $1 AND state = $4
		RETURNING id, public_key, state, session_start, created_at, updated_at`,
		lockerID, LockerStateInUse, startTime, LockerStateAvailable)
	if errors.Is(err, sql.ErrNoRows) {
		// either the locker does not exist or it was not available
		if _, gerr := pg.GetLocker(ctx, lockerID); gerr != nil {
			return nil, gerr
		}
		return nil, ErrLockerNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to begin session: %w", err)
	}
	return &locker, nil
}

// ReleaseLocker moves a locker back to available.  The update is
// unconditional on state so hardware open acknowledgements are idempotent.
func (pg *Postgres) ReleaseLocker(ctx context.Context, lockerID int64) (*Locker, error) {
	var locker Locker
	err := pg.RawDB().GetContext(ctx, &locker, `
		UPDATE lockers
		SET state = $2, session_start = 0, updated_at = now()
		WHERE id = $1
		RETURNING id, public_key, state, session_start, created_at, updated_at`,
		lockerID, LockerStateAvailable)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLockerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to release locker: %w", err)
	}
	return &locker, nil
}

// InsertPendingPayment records a pending payment for a billed session
func (pg *Postgres) InsertPendingPayment(ctx context.Context, amount int64, paymentHash string, lockerID int64) (*PendingPayment, error) {
	var payment PendingPayment
	err := pg.RawDB().GetContext(ctx, &payment, `
		INSERT INTO pending_payments (amount, payment_hash, status, locker_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, amount, payment_hash, status, locker_id, created_at`,
		amount, paymentHash, PaymentStatusPending, lockerID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert pending payment: %w", err)
	}
	return &payment, nil
}

// GetPendingPayment returns the pending payment behind a payment hash
func (pg *Postgres) GetPendingPayment(ctx context.Context, paymentHash string) (*PendingPayment, error) {
	var payment PendingPayment
	err := pg.RawDB().GetContext(ctx, &payment, `
		SELECT id, amount, payment_hash, status, locker_id, created_at
		FROM pending_payments
		WHERE payment_hash = $1`, paymentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending payment: %w", err)
	}
	return &payment, nil
}

// MarkPendingPaymentPaid flips a pending payment to paid.  The record is kept
// after payment so receipts can be reissued idempotently.
func (pg *Postgres) MarkPendingPaymentPaid(ctx context.Context, paymentHash string) error {
	_, err := pg.RawDB().ExecContext(ctx, `
		UPDATE pending_payments
		SET status = $2
		WHERE payment_hash = $1`,
		paymentHash, PaymentStatusPaid)
	if err != nil {
		return fmt.Errorf("failed to mark pending payment paid: %w", err)
	}
	return nil
}
