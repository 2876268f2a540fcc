package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/internal/assignment"
	"github.com/angelmondragon/drinkrun-backend/internal/ledger"
	"github.com/angelmondragon/drinkrun-backend/internal/orders"
	"github.com/angelmondragon/drinkrun-backend/internal/payments"
	"github.com/angelmondragon/drinkrun-backend/pkg/config"
	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
	"github.com/angelmondragon/drinkrun-backend/pkg/gateway"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubOrdersService struct {
	projection *orders.Projection
}

func (s stubOrdersService) Create(ctx context.Context, input orders.CreateOrderInput) (*orders.Projection, error) {
	return s.projection, nil
}

func (s stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*orders.Projection, error) {
	if s.projection == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.projection, nil
}

func (s stubOrdersService) List(ctx context.Context, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

func (s stubOrdersService) Transition(ctx context.Context, input orders.TransitionInput) (*orders.Projection, error) {
	return s.projection, nil
}

func (s stubOrdersService) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, actor orders.Actor) (*orders.Projection, error) {
	return s.projection, nil
}

func (s stubOrdersService) RecordDriverResponse(ctx context.Context, orderID, driverID uuid.UUID, response enums.DriverAcceptance) (*orders.Projection, error) {
	return s.projection, nil
}

func (s stubOrdersService) ApplyPaymentCompletionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*orders.Projection, error) {
	panic("unexpected call")
}

func (s stubOrdersService) SetPaymentStatusTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	panic("unexpected call")
}

type stubPaymentsService struct{}

func (stubPaymentsService) InitiatePush(ctx context.Context, input payments.InitiatePushInput) (*models.Transaction, error) {
	return &models.Transaction{ID: uuid.New()}, nil
}

func (stubPaymentsService) HandleCallback(ctx context.Context, payload gateway.CallbackPayload) error {
	return nil
}

func (stubPaymentsService) PollOnce(ctx context.Context, attemptID uuid.UUID) (*models.Transaction, error) {
	return &models.Transaction{ID: attemptID}, nil
}

func (stubPaymentsService) FailTimedOut(ctx context.Context, attemptID uuid.UUID) error {
	return nil
}

func (stubPaymentsService) RecordCashPayment(ctx context.Context, input payments.RecordCashPaymentInput) (*orders.Projection, error) {
	return &orders.Projection{ID: input.OrderID}, nil
}

func (stubPaymentsService) SweepTimedOut(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

type stubAssignmentService struct{}

func (stubAssignmentService) AssignBranch(ctx context.Context, input assignment.AssignBranchInput) (*orders.Projection, error) {
	return &orders.Projection{ID: input.OrderID}, nil
}

func (stubAssignmentService) AssignDriver(ctx context.Context, input assignment.AssignDriverInput) (*orders.Projection, error) {
	return &orders.Projection{ID: input.OrderID}, nil
}

type stubLedgerService struct{}

func (stubLedgerService) RecordOrderPayment(ctx context.Context, tx *gorm.DB, input ledger.RecordPaymentInput) (*models.Transaction, error) {
	panic("unexpected call")
}

func (stubLedgerService) SplitDeliveryFee(ctx context.Context, tx *gorm.DB, input ledger.SplitDeliveryFeeInput) (*ledger.DeliveryFeeSplit, error) {
	panic("unexpected call")
}

func (stubLedgerService) CreditTip(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount decimal.Decimal, driverID uuid.UUID) (*models.Transaction, error) {
	panic("unexpected call")
}

func (stubLedgerService) HasTransaction(ctx context.Context, orderID uuid.UUID, txnType enums.TransactionType, driverWalletID *uuid.UUID) (bool, error) {
	return false, nil
}

func (stubLedgerService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	return []models.Transaction{{ID: uuid.New(), OrderID: orderID}}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
	}
}

func newTestRouter(projection *orders.Projection) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(Deps{
		Config:     testConfig(),
		Logger:     logg,
		DB:         stubPinger{},
		Redis:      stubPinger{},
		Orders:     stubOrdersService{projection: projection},
		Payments:   stubPaymentsService{},
		Assignment: stubAssignmentService{},
		Ledger:     stubLedgerService{},
	})
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-DrinkRun-Env") != "test" {
		t.Fatalf("missing env header")
	}
}

func TestHealthReady(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestOrderDetailRoute(t *testing.T) {
	orderID := uuid.New()
	router := newTestRouter(&orders.Projection{ID: orderID, Status: enums.OrderStatusPending})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestOrderDetailRejectsBadUUID(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/not-a-uuid", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderDetailNotFound(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString(), nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestOrderTransactionsRoute(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+uuid.NewString()+"/transactions", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	router := newTestRouter(nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
