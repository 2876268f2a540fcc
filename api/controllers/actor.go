package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/drinkrun-backend/internal/orders"
)

// Actor identity arrives from the authenticating edge proxy as trusted
// headers; the engine never verifies credentials itself.
const (
	actorRoleHeader = "X-Actor-Role"
	actorUserHeader = "X-Actor-Id"
	driverIDHeader  = "X-Driver-Id"
)

func actorFromRequest(r *http.Request) orders.Actor {
	actor := orders.Actor{
		Role: strings.TrimSpace(r.Header.Get(actorRoleHeader)),
	}
	if raw := strings.TrimSpace(r.Header.Get(actorUserHeader)); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			actor.UserID = &id
		}
	}
	if raw := strings.TrimSpace(r.Header.Get(driverIDHeader)); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			actor.DriverID = &id
		}
	}
	return actor
}
