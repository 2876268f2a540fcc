package assignment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/internal/orderlock"
	"github.com/angelmondragon/drinkrun-backend/internal/orders"
	"github.com/angelmondragon/drinkrun-backend/pkg/db"
	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox/payloads"
)

// Service selects and validates branch/driver assignments for an order.
// Reassignment of a terminal order is always forbidden.
type Service interface {
	AssignBranch(ctx context.Context, input AssignBranchInput) (*orders.Projection, error)
	AssignDriver(ctx context.Context, input AssignDriverInput) (*orders.Projection, error)
}

// AssignBranchInput drives a branch (re)assignment.
type AssignBranchInput struct {
	OrderID        uuid.UUID
	BranchID       *uuid.UUID
	ReassignDriver bool
	Actor          orders.Actor
}

// AssignDriverInput drives a driver (re)assignment; a nil driver unassigns.
type AssignDriverInput struct {
	OrderID  uuid.UUID
	DriverID *uuid.UUID
	Actor    orders.Actor
}

type service struct {
	repo   Repository
	orders orders.Repository
	client *db.Client
	lock   orderlock.Locker
	outbox *outbox.Service
	logg   *logger.Logger
}

// ServiceParams configure the assignment service.
type ServiceParams struct {
	Repo   Repository
	Orders orders.Repository
	Client *db.Client
	Lock   orderlock.Locker
	Outbox *outbox.Service
	Logger *logger.Logger
}

// NewService wires the assignment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("assignment repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("order locker required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:   params.Repo,
		orders: params.Orders,
		client: params.Client,
		lock:   params.Lock,
		outbox: params.Outbox,
		logg:   params.Logger,
	}, nil
}

func (s *service) AssignBranch(ctx context.Context, input AssignBranchInput) (*orders.Projection, error) {
	var result *orders.Projection
	err := s.lock.WithOrderLock(ctx, input.OrderID, func(ctx context.Context) error {
		return s.client.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.loadMutableOrder(ctx, tx, input.OrderID)
			if err != nil {
				return err
			}

			updates := map[string]any{"branch_id": input.BranchID}
			branchChanged := !uuidPtrEqual(order.BranchID, input.BranchID)

			var branch *models.Branch
			if input.BranchID != nil {
				branch, err = s.repo.WithTx(tx).FindBranch(ctx, *input.BranchID)
				if err != nil {
					return err
				}
				if branch == nil || !branch.IsActive {
					return pkgerrors.New(pkgerrors.CodeValidation, "branch not found or inactive")
				}
			}

			driverID := order.DriverID
			if input.ReassignDriver && branchChanged && branch != nil {
				nearest, err := s.nearestActiveDriver(ctx, tx, *branch)
				if err != nil {
					return err
				}
				driverID = &nearest.ID
				updates["driver_id"] = driverID
				updates["driver_accepted"] = enums.DriverAcceptancePending
			}

			if err := s.orders.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
				return err
			}

			if err := s.emitOrderUpdated(ctx, tx, order.ID, input.BranchID, driverID, input.Actor); err != nil {
				return err
			}

			updated, err := s.orders.WithTx(tx).FindByID(ctx, order.ID)
			if err != nil {
				return err
			}
			projection := orders.ProjectOrder(*updated)
			result = &projection
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) AssignDriver(ctx context.Context, input AssignDriverInput) (*orders.Projection, error) {
	var result *orders.Projection
	err := s.lock.WithOrderLock(ctx, input.OrderID, func(ctx context.Context) error {
		return s.client.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.loadMutableOrder(ctx, tx, input.OrderID)
			if err != nil {
				return err
			}

			updates := map[string]any{"driver_id": input.DriverID}
			if input.DriverID == nil {
				updates["driver_accepted"] = nil
			} else {
				driver, err := s.repo.WithTx(tx).FindDriver(ctx, *input.DriverID)
				if err != nil {
					return err
				}
				if driver == nil || !driver.IsActive {
					return pkgerrors.New(pkgerrors.CodeValidation, "driver not found or inactive")
				}
				updates["driver_accepted"] = enums.DriverAcceptancePending
			}

			if err := s.orders.WithTx(tx).Update(ctx, order.ID, updates); err != nil {
				return err
			}

			if err := s.emitOrderUpdated(ctx, tx, order.ID, order.BranchID, input.DriverID, input.Actor); err != nil {
				return err
			}

			updated, err := s.orders.WithTx(tx).FindByID(ctx, order.ID)
			if err != nil {
				return err
			}
			projection := orders.ProjectOrder(*updated)
			result = &projection
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) loadMutableOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.WithTx(tx).FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "terminal orders cannot be reassigned")
	}
	return order, nil
}

func (s *service) nearestActiveDriver(ctx context.Context, tx *gorm.DB, branch models.Branch) (*models.Driver, error) {
	drivers, err := s.repo.WithTx(tx).ListActiveDrivers(ctx)
	if err != nil {
		return nil, err
	}
	if len(drivers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no active drivers available")
	}

	best := drivers[0]
	bestDistance := haversineKm(branch.Latitude, branch.Longitude, best.Latitude, best.Longitude)
	for _, driver := range drivers[1:] {
		distance := haversineKm(branch.Latitude, branch.Longitude, driver.Latitude, driver.Longitude)
		if distance < bestDistance {
			best = driver
			bestDistance = distance
		}
	}
	return &best, nil
}

func (s *service) emitOrderUpdated(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, branchID, driverID *uuid.UUID, actor orders.Actor) error {
	var actorRef *outbox.ActorRef
	if actor.Role != "" || actor.UserID != nil {
		actorRef = &outbox.ActorRef{Role: actor.Role, UserID: actor.UserID}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderUpdated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actorRef,
		Version:       1,
		Data: payloads.OrderUpdatedEvent{
			OrderID:  orderID,
			BranchID: branchID,
			DriverID: driverID,
		},
	})
}

func uuidPtrEqual(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
