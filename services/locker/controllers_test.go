package locker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltbox/boltbox/libs/clients/ln"
)

func setupTestHandlers(t *testing.T) (*Service, *fakeDatastore, http.Handler) {
	datastore := newFakeDatastore()
	service := newTestService(t, datastore, ln.NewMockBackend())

	mux := http.NewServeMux()
	mux.Handle("/v1/lockers/", http.StripPrefix("/v1/lockers", Router(service)))
	mux.Handle("/v1/receipts/", http.StripPrefix("/v1/receipts", ReceiptRouter(service)))
	return service, datastore, mux
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) (json.RawMessage, *string) {
	var envelope struct {
		Data  json.RawMessage `json:"data"`
		Error *string         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope))
	return envelope.Data, envelope.Error
}

func TestBeginSessionHandler(t *testing.T) {
	service, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateAvailable, 0)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/1/session", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	data, errMsg := decodeEnvelope(t, rr)
	require.Nil(t, errMsg)

	var receipt SessionReceipt
	require.NoError(t, json.Unmarshal(data, &receipt))
	assert.Equal(t, int64(1), receipt.LockerID)
	assert.NoError(t, VerifyReceipt(receipt.Signature, receipt.LockerID, receipt.StartTime, service.signer.PublicKeyHex()))
}

func TestBeginSessionHandlerNotAvailable(t *testing.T) {
	_, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix())

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/1/session", nil)
	// contention is reported inside the envelope, not as an http failure
	require.Equal(t, http.StatusOK, rr.Code)

	_, errMsg := decodeEnvelope(t, rr)
	require.NotNil(t, errMsg)
	assert.Equal(t, "Locker is not available", *errMsg)
}

func TestBeginSessionHandlerUnknownLocker(t *testing.T) {
	_, _, h := setupTestHandlers(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/99/session", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestBeginSessionHandlerBadID(t *testing.T) {
	_, _, h := setupTestHandlers(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/banana/session", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEndSessionHandlerNotInUse(t *testing.T) {
	_, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateAvailable, 0)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/1/bill", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEndSessionHandler(t *testing.T) {
	_, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-60)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/1/bill", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	data, errMsg := decodeEnvelope(t, rr)
	require.Nil(t, errMsg)

	var statement BillingStatement
	require.NoError(t, json.Unmarshal(data, &statement))
	assert.Equal(t, int64(1), statement.LockerID)
	require.NotNil(t, statement.Invoice)
	assert.NotEmpty(t, statement.Invoice.PaymentHash)
}

func TestFetchReceiptHandler(t *testing.T) {
	service, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-60)

	statement, err := service.EndSession(context.Background(), 1)
	require.NoError(t, err)

	rr := doJSON(t, h, http.MethodGet, "/v1/receipts/"+statement.Invoice.PaymentHash, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// the receipt is returned flat for the locker hardware to consume
	var receipt SessionReceipt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &receipt))
	assert.Equal(t, int64(1), receipt.LockerID)
	assert.NoError(t, VerifyReceipt(receipt.Signature, receipt.LockerID, receipt.StartTime, service.signer.PublicKeyHex()))
}

func TestFetchReceiptHandlerUnknownHash(t *testing.T) {
	_, _, h := setupTestHandlers(t)

	hash := fmt.Sprintf("%064d", 0)
	rr := doJSON(t, h, http.MethodGet, "/v1/receipts/"+hash, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFetchReceiptHandlerBadHash(t *testing.T) {
	_, _, h := setupTestHandlers(t)

	rr := doJSON(t, h, http.MethodGet, "/v1/receipts/nothex", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConfirmOpenHandler(t *testing.T) {
	service, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-60)

	now := time.Now().Unix()
	sig, err := service.signReceipt(1, now)
	require.NoError(t, err)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/open", ConfirmOpenRequest{
		LockerID:  1,
		Signature: sig,
		Timestamp: now,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	data, errMsg := decodeEnvelope(t, rr)
	require.Nil(t, errMsg)
	assert.Equal(t, `"locker opened"`, string(data))

	locker, err := datastore.GetLocker(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, LockerStateAvailable, locker.State)
}

func TestConfirmOpenHandlerBadSignature(t *testing.T) {
	service, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateInUse, time.Now().Unix()-60)

	now := time.Now().Unix()
	sig, err := service.signReceipt(2, now)
	require.NoError(t, err)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/open", ConfirmOpenRequest{
		LockerID:  1,
		Signature: sig,
		Timestamp: now,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConfirmOpenHandlerMissingFields(t *testing.T) {
	_, _, h := setupTestHandlers(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/open", map[string]interface{}{
		"locker_id": 1,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListLockersHandler(t *testing.T) {
	_, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateAvailable, 0)
	datastore.addLocker(2, LockerStateInUse, time.Now().Unix())

	rr := doJSON(t, h, http.MethodGet, "/v1/lockers/", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	data, errMsg := decodeEnvelope(t, rr)
	require.Nil(t, errMsg)

	var lockers []Locker
	require.NoError(t, json.Unmarshal(data, &lockers))
	assert.Len(t, lockers, 2)
}

func TestGetLockerHandler(t *testing.T) {
	_, datastore, h := setupTestHandlers(t)
	datastore.addLocker(1, LockerStateAvailable, 0)

	rr := doJSON(t, h, http.MethodGet, "/v1/lockers/1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	data, errMsg := decodeEnvelope(t, rr)
	require.Nil(t, errMsg)

	var locker Locker
	require.NoError(t, json.Unmarshal(data, &locker))
	assert.Equal(t, LockerStateAvailable, locker.State)

	rr = doJSON(t, h, http.MethodGet, "/v1/lockers/42", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateLockerHandler(t *testing.T) {
	_, _, h := setupTestHandlers(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/lockers/", CreateLockerRequest{
		PublicKey: testPublicKeyHex,
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/v1/lockers/", CreateLockerRequest{
		PublicKey: "deadbeef",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
