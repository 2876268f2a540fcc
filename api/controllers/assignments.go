package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/drinkrun-backend/api/responses"
	"github.com/angelmondragon/drinkrun-backend/api/validators"
	"github.com/angelmondragon/drinkrun-backend/internal/assignment"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
)

type assignBranchRequest struct {
	BranchID       *uuid.UUID `json:"branch_id,omitempty"`
	ReassignDriver bool       `json:"reassign_driver,omitempty"`
}

// AssignBranch moves an order to a branch, optionally picking the nearest
// active driver when the branch changes.
func AssignBranch(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req assignBranchRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		projection, err := svc.AssignBranch(r.Context(), assignment.AssignBranchInput{
			OrderID:        orderID,
			BranchID:       req.BranchID,
			ReassignDriver: req.ReassignDriver,
			Actor:          actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, projection)
	}
}

type assignDriverRequest struct {
	DriverID *uuid.UUID `json:"driver_id,omitempty"`
}

// AssignDriver sets or clears the driver on an order.
func AssignDriver(svc assignment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req assignDriverRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		projection, err := svc.AssignDriver(r.Context(), assignment.AssignDriverInput{
			OrderID:  orderID,
			DriverID: req.DriverID,
			Actor:    actorFromRequest(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, projection)
	}
}
