package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/drinkrun-backend/api/responses"
	"github.com/angelmondragon/drinkrun-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
	"github.com/angelmondragon/drinkrun-backend/pkg/gateway"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
)

// PaymentWebhook receives gateway resolution callbacks. Unknown references
// are acknowledged so the gateway stops retrying stale events.
func PaymentWebhook(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload gateway.CallbackPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid callback body"))
			return
		}
		if err := svc.HandleCallback(r.Context(), payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "accepted"})
	}
}
