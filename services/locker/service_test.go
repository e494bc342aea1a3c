package locker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltbox/boltbox/libs/clients/ln"
	mockln "github.com/boltbox/boltbox/libs/clients/ln/mock"
)

// fakeDatastore implements the locker CAS semantics in memory.  The embedded
// interface covers the datastore plumbing methods no service test reaches.
type fakeDatastore struct {
	Datastore

	mu       sync.Mutex
	lockers  map[int64]*Locker
	payments map[string]*PendingPayment
}

func newFakeDatastore() *fakeDatastore {
	return &fakeDatastore{
		lockers:  map[int64]*Locker{},
		payments: map[string]*PendingPayment{},
	}
}

func (f *fakeDatastore) addLocker(id int64, state string, sessionStart int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockers[id] = &Locker{
		ID:           id,
		PublicKey:    testPublicKeyHex,
		State:        state,
		SessionStart: sessionStart,
	}
}

func (f *fakeDatastore) CreateLocker(ctx context.Context, publicKey string) (*Locker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.lockers) + 1)
	f.lockers[id] = &Locker{
		ID:        id,
		PublicKey: publicKey,
		State:     LockerStateAvailable,
	}
	copied := *f.lockers[id]
	return &copied, nil
}

func (f *fakeDatastore) GetLocker(ctx context.Context, lockerID int64) (*Locker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	locker, ok := f.lockers[lockerID]
	if !ok {
		return nil, ErrLockerNotFound
	}
	copied := *locker
	return &copied, nil
}

func (f *fakeDatastore) ListLockers(ctx context.Context) ([]Locker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []Locker{}
	for _, locker := range f.lockers {
		out = append(out, *locker)
	}
	return out, nil
}

func (f *fakeDatastore) BeginSession(ctx context.Context, lockerID int64, startTime int64) (*Locker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	locker, ok := f.lockers[lockerID]
	if !ok {
		return nil, ErrLockerNotFound
	}
	if locker.State != LockerStateAvailable {
		return nil, ErrLockerNotAvailable
	}
	locker.State = LockerStateInUse
	locker.SessionStart = startTime
	copied := *locker
	return &copied, nil
}

func (f *fakeDatastore) ReleaseLocker(ctx context.Context, lockerID int64) (*Locker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	locker, ok := f.lockers[lockerID]
	if !ok {
		return nil, ErrLockerNotFound
	}
	locker.State = LockerStateAvailable
	locker.SessionStart = 0
	copied := *locker
	return &copied, nil
}

func (f *fakeDatastore) InsertPendingPayment(ctx context.Context, amount int64, paymentHash string, lockerID int64) (*PendingPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment := &PendingPayment{
		Amount:      amount,
		PaymentHash: paymentHash,
		Status:      PaymentStatusPending,
		LockerID:    lockerID,
	}
	f.payments[paymentHash] = payment
	copied := *payment
	return &copied, nil
}

func (f *fakeDatastore) GetPendingPayment(ctx context.Context, paymentHash string) (*PendingPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[paymentHash]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *payment
	return &copied, nil
}

func (f *fakeDatastore) MarkPendingPaymentPaid(ctx context.Context, paymentHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payment, ok := f.payments[paymentHash]
	if !ok {
		return ErrPaymentNotFound
	}
	payment.Status = PaymentStatusPaid
	return nil
}

func newTestService(t *testing.T, datastore Datastore, lnClient ln.Client) *Service {
	return NewService(datastore, lnClient, newTestSigner(t), 5*time.Minute)
}

func TestBeginSessionIssuesVerifiableReceipt(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateAvailable, 0)
	s := newTestService(t, datastore, ln.NewMockBackend())

	receipt, err := s.BeginSession(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), receipt.LockerID)
	assert.NoError(t, VerifyReceipt(receipt.Signature, receipt.LockerID, receipt.StartTime, s.signer.PublicKeyHex()))

	locker, err := datastore.GetLocker(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, LockerStateInUse, locker.State)
	assert.Equal(t, receipt.StartTime, locker.SessionStart)
}

func TestBeginSessionUnknownLocker(t *testing.T) {
	s := newTestService(t, newFakeDatastore(), ln.NewMockBackend())

	_, err := s.BeginSession(context.Background(), 99)
	assert.ErrorIs(t, err, ErrLockerNotFound)
}

func TestBeginSessionNotAvailable(t *testing.T) {
	start := time.Now().Unix() - 30
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateInUse, start)
	s := newTestService(t, datastore, ln.NewMockBackend())

	_, err := s.BeginSession(context.Background(), 1)
	assert.ErrorIs(t, err, ErrLockerNotAvailable)

	// the active session is untouched
	locker, err := datastore.GetLocker(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, start, locker.SessionStart)
}

func TestBeginSessionSingleWinner(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateAvailable, 0)
	s := newTestService(t, datastore, ln.NewMockBackend())

	const contenders = 8
	errs := make(chan error, contenders)
	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.BeginSession(context.Background(), 1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var won, lost int
	for err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrLockerNotAvailable):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, won, "exactly one contender may claim the locker")
	assert.Equal(t, contenders-1, lost)
}

func TestEndSessionBillsLeaseTime(t *testing.T) {
	start := time.Now().Unix() - 120
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateInUse, start)
	s := newTestService(t, datastore, ln.NewMockBackend())

	statement, err := s.EndSession(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), statement.LockerID)
	assert.GreaterOrEqual(t, statement.LeaseTime, int64(120))
	assert.Less(t, statement.LeaseTime, int64(130))
	require.NotNil(t, statement.Invoice)
	assert.Equal(t, statement.LeaseTime, statement.Invoice.Amount)
	assert.NotEmpty(t, statement.Invoice.PaymentHash)

	// billing does not release the locker, the open confirmation does
	locker, err := datastore.GetLocker(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, LockerStateInUse, locker.State)

	payment, err := datastore.GetPendingPayment(context.Background(), statement.Invoice.PaymentHash)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPending, payment.Status)
}

func TestEndSessionNotInUse(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateAvailable, 0)
	s := newTestService(t, datastore, ln.NewMockBackend())

	_, err := s.EndSession(context.Background(), 1)
	assert.ErrorIs(t, err, ErrLockerNotInUse)
}

func TestEndSessionBackendFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-60)

	lnClient := mockln.NewMockClient(ctrl)
	lnClient.EXPECT().CreateInvoice(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection refused"))

	s := newTestService(t, datastore, lnClient)

	_, err := s.EndSession(context.Background(), 1)
	assert.ErrorIs(t, err, ErrPaymentBackend)

	// no pending payment may be recorded for a failed invoice
	assert.Empty(t, datastore.payments)
}

func TestFetchReceiptUnpaid(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	lnClient := mockln.NewMockClient(ctrl)
	lnClient.EXPECT().InvoiceStatus(gomock.Any(), "deadbeef").
		Return(ln.InvoiceStatusUnpaid, nil)

	s := newTestService(t, newFakeDatastore(), lnClient)

	_, err := s.FetchReceipt(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrInvoiceUnpaid)
}

func TestFetchReceiptUnknownPayment(t *testing.T) {
	s := newTestService(t, newFakeDatastore(), ln.NewMockBackend())

	_, err := s.FetchReceipt(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestFetchReceiptMarksPaidAndReissues(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-60)
	s := newTestService(t, datastore, ln.NewMockBackend())

	statement, err := s.EndSession(context.Background(), 1)
	require.NoError(t, err)
	hash := statement.Invoice.PaymentHash

	receipt, err := s.FetchReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.LockerID)
	assert.NoError(t, VerifyReceipt(receipt.Signature, receipt.LockerID, receipt.StartTime, s.signer.PublicKeyHex()))

	payment, err := datastore.GetPendingPayment(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusPaid, payment.Status)

	// fetching again reissues rather than failing
	again, err := s.FetchReceipt(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, receipt.LockerID, again.LockerID)
}

func TestConfirmOpenReleasesLocker(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-60)
	s := newTestService(t, datastore, ln.NewMockBackend())

	// the seeded test lockers carry the public key matching the test signer
	now := time.Now().Unix()
	sig, err := s.signReceipt(1, now)
	require.NoError(t, err)

	released, err := s.ConfirmOpen(context.Background(), ConfirmOpenRequest{
		LockerID:  1,
		Signature: sig,
		Timestamp: now,
	})
	require.NoError(t, err)
	assert.Equal(t, LockerStateAvailable, released.State)
	assert.Equal(t, int64(0), released.SessionStart)
}

func TestConfirmOpenIdempotent(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateAvailable, 0)
	s := newTestService(t, datastore, ln.NewMockBackend())

	now := time.Now().Unix()
	sig, err := s.signReceipt(1, now)
	require.NoError(t, err)

	req := ConfirmOpenRequest{LockerID: 1, Signature: sig, Timestamp: now}
	_, err = s.ConfirmOpen(context.Background(), req)
	require.NoError(t, err)
	_, err = s.ConfirmOpen(context.Background(), req)
	assert.NoError(t, err, "a duplicate confirmation is not an error")
}

func TestConfirmOpenRejectsBadSignature(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-60)
	s := newTestService(t, datastore, ln.NewMockBackend())

	now := time.Now().Unix()
	// signed for a different locker
	sig, err := s.signReceipt(2, now)
	require.NoError(t, err)

	_, err = s.ConfirmOpen(context.Background(), ConfirmOpenRequest{
		LockerID:  1,
		Signature: sig,
		Timestamp: now,
	})
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	locker, err := datastore.GetLocker(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, LockerStateInUse, locker.State, "a failed confirmation must not release the locker")
}

func TestConfirmOpenRejectsStaleTimestamp(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-3600)
	s := newTestService(t, datastore, ln.NewMockBackend())

	stale := time.Now().Add(-time.Hour).Unix()
	sig, err := s.signReceipt(1, stale)
	require.NoError(t, err)

	_, err = s.ConfirmOpen(context.Background(), ConfirmOpenRequest{
		LockerID:  1,
		Signature: sig,
		Timestamp: stale,
	})
	assert.ErrorIs(t, err, ErrStaleConfirmation)
}

func TestCreateLockerValidatesKey(t *testing.T) {
	datastore := newFakeDatastore()
	s := newTestService(t, datastore, ln.NewMockBackend())

	_, err := s.CreateLocker(context.Background(), "not a key")
	assert.Error(t, err)
}

func TestFullLeaseLifecycle(t *testing.T) {
	datastore := newFakeDatastore()
	datastore.addLocker(1, LockerStateAvailable, 0)
	s := newTestService(t, datastore, ln.NewMockBackend())
	ctx := context.Background()

	start, err := s.BeginSession(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, VerifyReceipt(start.Signature, start.LockerID, start.StartTime, s.signer.PublicKeyHex()))

	statement, err := s.EndSession(ctx, 1)
	require.NoError(t, err)

	receipt, err := s.FetchReceipt(ctx, statement.Invoice.PaymentHash)
	require.NoError(t, err)

	// the client hands the receipt to locker hardware, which opens and
	// acknowledges with its own signature over the same digest layout
	_, err = s.ConfirmOpen(ctx, ConfirmOpenRequest{
		LockerID:  receipt.LockerID,
		Signature: receipt.Signature,
		Timestamp: receipt.StartTime,
	})
	require.NoError(t, err)

	// the locker is available for the next lease
	_, err = s.BeginSession(ctx, 1)
	assert.NoError(t, err)
}
