package locker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi"

	"github.com/boltbox/boltbox/libs/cryptography"
	"github.com/boltbox/boltbox/libs/handlers"
	"github.com/boltbox/boltbox/libs/inputs"
	"github.com/boltbox/boltbox/libs/logging"
	"github.com/boltbox/boltbox/libs/middleware"
	"github.com/boltbox/boltbox/libs/requestutils"
)

// response is the envelope wrapping every locker endpoint payload
type response struct {
	Data  interface{} `json:"data"`
	Error *string     `json:"error"`
}

func respondData(ctx context.Context, w http.ResponseWriter, data interface{}) *handlers.AppError {
	return handlers.RenderContent(ctx, response{Data: data}, w, http.StatusOK)
}

func respondError(ctx context.Context, w http.ResponseWriter, message string) *handlers.AppError {
	return handlers.RenderContent(ctx, response{Error: &message}, w, http.StatusOK)
}

// Router returns the locker management and billing routes
func Router(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("GET", "/", middleware.InstrumentHandler("ListLockers", ListLockers(service)))
	r.Method("POST", "/", middleware.InstrumentHandler("CreateLocker", CreateLocker(service)))
	r.Method("POST", "/open", middleware.InstrumentHandler("ConfirmOpen", ConfirmOpen(service)))
	r.Method("GET", "/{lockerID}", middleware.InstrumentHandler("GetLocker", GetLocker(service)))
	r.Method("POST", "/{lockerID}/session", middleware.InstrumentHandler("BeginSession", BeginSession(service)))
	r.Method("POST", "/{lockerID}/bill", middleware.InstrumentHandler("EndSession", EndSession(service)))
	return r
}

// ReceiptRouter returns the receipt redemption routes
func ReceiptRouter(service *Service) chi.Router {
	r := chi.NewRouter()
	r.Method("GET", "/{paymentHash}", middleware.InstrumentHandler("FetchReceipt", FetchReceipt(service)))
	return r
}

func lockerIDFromURL(ctx context.Context, r *http.Request) (int64, *handlers.AppError) {
	var lockerID inputs.ID
	if err := inputs.DecodeAndValidateString(ctx, &lockerID, chi.URLParam(r, "lockerID")); err != nil {
		return 0, handlers.ValidationError("request url parameter", map[string]interface{}{
			"lockerID": err.Error(),
		})
	}
	return lockerID.Int64(), nil
}

func lockerError(err error, msg string) *handlers.AppError {
	switch {
	case errors.Is(err, ErrLockerNotFound):
		return handlers.WrapError(err, "locker not found", http.StatusNotFound)
	case errors.Is(err, ErrLockerNotInUse):
		return handlers.WrapError(err, "locker is not in use", http.StatusBadRequest)
	case errors.Is(err, ErrPaymentNotFound):
		return handlers.WrapError(err, "payment not found", http.StatusNotFound)
	case errors.Is(err, ErrInvoiceUnpaid):
		return handlers.WrapError(err, "invoice has not been paid", http.StatusBadRequest)
	case errors.Is(err, ErrStaleConfirmation):
		return handlers.WrapError(err, "confirmation timestamp is stale", http.StatusBadRequest)
	case errors.Is(err, ErrSignatureInvalid):
		return handlers.WrapError(err, "signature verification failed", http.StatusBadRequest)
	case errors.Is(err, ErrPaymentBackend):
		return handlers.WrapError(err, "payment backend unavailable", http.StatusInternalServerError)
	default:
		return handlers.WrapError(err, msg, http.StatusInternalServerError)
	}
}

// ListLockers is the handler for listing all provisioned lockers
func ListLockers(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()
		lockers, err := service.ListLockers(ctx)
		if err != nil {
			return lockerError(err, "error listing lockers")
		}
		return respondData(ctx, w, lockers)
	})
}

// GetLocker is the handler for fetching a single locker
func GetLocker(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		lockerID, appErr := lockerIDFromURL(ctx, r)
		if appErr != nil {
			return appErr
		}

		locker, err := service.GetLocker(ctx, lockerID)
		if err != nil {
			return lockerError(err, "error getting locker")
		}
		return respondData(ctx, w, locker)
	})
}

// CreateLockerRequest includes the key a new locker verifies receipts against
type CreateLockerRequest struct {
	PublicKey string `json:"public_key" valid:"hexadecimal,required"`
}

// CreateLocker is the handler for provisioning a new locker
func CreateLocker(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		var req CreateLockerRequest
		if err := readValidJSON(r, &req); err != nil {
			return err
		}

		locker, err := service.CreateLocker(ctx, req.PublicKey)
		if err != nil {
			if errors.Is(err, cryptography.ErrInvalidPublicKey) {
				return handlers.WrapError(err, "invalid public key", http.StatusBadRequest)
			}
			return lockerError(err, "error creating locker")
		}
		return respondData(ctx, w, locker)
	})
}

// BeginSession is the handler for starting a locker session
func BeginSession(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		lockerID, appErr := lockerIDFromURL(ctx, r)
		if appErr != nil {
			return appErr
		}

		receipt, err := service.BeginSession(ctx, lockerID)
		if err != nil {
			// contention for a locker is an expected outcome for clients
			// polling availability, reported in the envelope rather than as
			// an http failure
			if errors.Is(err, ErrLockerNotAvailable) {
				return respondError(ctx, w, "Locker is not available")
			}
			return lockerError(err, "error beginning session")
		}
		return respondData(ctx, w, receipt)
	})
}

// EndSession is the handler for billing an active locker session
func EndSession(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		lockerID, appErr := lockerIDFromURL(ctx, r)
		if appErr != nil {
			return appErr
		}

		statement, err := service.EndSession(ctx, lockerID)
		if err != nil {
			return lockerError(err, "error billing session")
		}
		return respondData(ctx, w, statement)
	})
}

// FetchReceipt is the handler for redeeming a paid invoice for an unlock
// receipt.  The receipt is returned flat, not enveloped, as the payload is
// handed directly to locker hardware.
func FetchReceipt(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()

		paymentHash := chi.URLParam(r, "paymentHash")
		if !govalidator.IsHash(paymentHash, "sha256") {
			return handlers.ValidationError("request url parameter", map[string]interface{}{
				"paymentHash": "must be a sha256 hash in hex",
			})
		}

		receipt, err := service.FetchReceipt(ctx, paymentHash)
		if err != nil {
			return lockerError(err, "error fetching receipt")
		}
		return handlers.RenderContent(ctx, receipt, w, http.StatusOK)
	})
}

// ConfirmOpen is the handler for the signed open acknowledgement sent by
// locker hardware
func ConfirmOpen(service *Service) handlers.AppHandler {
	return handlers.AppHandler(func(w http.ResponseWriter, r *http.Request) *handlers.AppError {
		ctx := r.Context()
		logger := logging.Logger(ctx, "locker.ConfirmOpenHandler")

		var req ConfirmOpenRequest
		if err := readValidJSON(r, &req); err != nil {
			return err
		}

		if _, err := service.ConfirmOpen(ctx, req); err != nil {
			logger.Debug().Err(err).Int64("locker_id", req.LockerID).Msg("open confirmation rejected")
			return lockerError(err, "error confirming open")
		}
		return respondData(ctx, w, "locker opened")
	})
}

func readValidJSON(r *http.Request, v interface{}) *handlers.AppError {
	body, err := requestutils.Read(r.Context(), r.Body)
	if err != nil {
		return handlers.WrapError(err, "error reading request body", http.StatusBadRequest)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return handlers.WrapError(err, "error decoding request body", http.StatusBadRequest)
	}
	if _, err := govalidator.ValidateStruct(v); err != nil {
		return handlers.WrapValidationError(err)
	}
	return nil
}
