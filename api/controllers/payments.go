package controllers

import (
	"net/http"

	"github.com/angelmondragon/drinkrun-backend/api/responses"
	"github.com/angelmondragon/drinkrun-backend/api/validators"
	"github.com/angelmondragon/drinkrun-backend/internal/payments"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
)

// InitiatePayment starts a push-to-phone payment attempt for an order.
func InitiatePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input payments.InitiatePushInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attempt, err := svc.InitiatePush(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, attempt)
	}
}

// RecordCashPayment records a cash payment taken on delivery or in store.
func RecordCashPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input payments.RecordCashPaymentInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Actor = actorFromRequest(r)
		projection, err := svc.RecordCashPayment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, projection)
	}
}

// PollPayment forces one gateway status check for a pending attempt.
func PollPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attemptID, err := validators.ParseUUIDParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		attempt, err := svc.PollOnce(r.Context(), attemptID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, attempt)
	}
}
