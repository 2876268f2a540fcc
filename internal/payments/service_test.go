package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/drinkrun-backend/internal/ledger"
	"github.com/angelmondragon/drinkrun-backend/internal/orders"
	"github.com/angelmondragon/drinkrun-backend/internal/wallets"
	"github.com/angelmondragon/drinkrun-backend/pkg/db"
	"github.com/angelmondragon/drinkrun-backend/pkg/db/models"
	"github.com/angelmondragon/drinkrun-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/drinkrun-backend/pkg/errors"
	"github.com/angelmondragon/drinkrun-backend/pkg/gateway"
	"github.com/angelmondragon/drinkrun-backend/pkg/logger"
	"github.com/angelmondragon/drinkrun-backend/pkg/outbox"
	"github.com/angelmondragon/drinkrun-backend/pkg/pagination"
)

func newTestClient(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	ddl := `CREATE TABLE IF NOT EXISTS outbox_events (
		id TEXT,
		event_type TEXT,
		aggregate_type TEXT,
		aggregate_id TEXT,
		payload TEXT,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER DEFAULT 0,
		last_error TEXT
	)`
	if err := conn.Exec(ddl).Error; err != nil {
		t.Fatalf("failed to create outbox table: %v", err)
	}
	return db.NewWithConn(conn), conn
}

func countEvents(t *testing.T, conn *gorm.DB, aggregateID uuid.UUID, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	err := conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", aggregateID, eventType).
		Count(&count).Error
	if err != nil {
		t.Fatalf("failed to count outbox events: %v", err)
	}
	return count
}

type stubAttemptRepo struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*models.Transaction
}

func newStubAttemptRepo() *stubAttemptRepo {
	return &stubAttemptRepo{attempts: make(map[uuid.UUID]*models.Transaction)}
}

func (s *stubAttemptRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubAttemptRepo) Create(ctx context.Context, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	copied := *txn
	s.attempts[txn.ID] = &copied
	return nil
}

func (s *stubAttemptRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	copied := *txn
	return &copied, nil
}

func (s *stubAttemptRepo) FindByExternalRef(ctx context.Context, externalRef string) (*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, txn := range s.attempts {
		if txn.ExternalRef != nil && *txn.ExternalRef == externalRef {
			copied := *txn
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *stubAttemptRepo) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.attempts[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range updates {
		switch key {
		case "status":
			if v, ok := value.(enums.TransactionStatus); ok {
				txn.Status = v
			}
		case "external_ref":
			if v, ok := value.(string); ok {
				txn.ExternalRef = &v
			}
		case "failure_reason":
			if v, ok := value.(string); ok {
				txn.FailureReason = &v
			}
		case "receipt_number":
			if v, ok := value.(string); ok {
				txn.ReceiptNumber = &v
			}
		case "completed_at":
			if v, ok := value.(time.Time); ok {
				txn.CompletedAt = &v
			}
		}
	}
	return nil
}

func (s *stubAttemptRepo) ListPendingBefore(ctx context.Context, cutoff time.Time) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var rows []models.Transaction
	for _, txn := range s.attempts {
		if txn.Status == enums.TransactionStatusPending && txn.CreatedAt.Before(cutoff) {
			rows = append(rows, *txn)
		}
	}
	return rows, nil
}

type stubOrderRepo struct {
	order *models.Order
}

func (s *stubOrderRepo) WithTx(tx *gorm.DB) orders.Repository { return s }

func (s *stubOrderRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	return order, nil
}

func (s *stubOrderRepo) CreateItems(ctx context.Context, items []models.OrderItem) error { return nil }

func (s *stubOrderRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != id {
		return nil, nil
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrderRepo) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	return nil
}

func (s *stubOrderRepo) List(ctx context.Context, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	return &orders.OrderList{}, nil
}

type paymentStatusWrite struct {
	orderID uuid.UUID
	status  enums.PaymentStatus
}

type stubOrdersService struct {
	order            *models.Order
	completions      []uuid.UUID
	paymentStatusLog []paymentStatusWrite
}

func (s *stubOrdersService) Create(ctx context.Context, input orders.CreateOrderInput) (*orders.Projection, error) {
	panic("not implemented")
}

func (s *stubOrdersService) Get(ctx context.Context, orderID uuid.UUID) (*orders.Projection, error) {
	panic("not implemented")
}

func (s *stubOrdersService) List(ctx context.Context, params pagination.Params, filters orders.ListFilters) (*orders.OrderList, error) {
	panic("not implemented")
}

func (s *stubOrdersService) Transition(ctx context.Context, input orders.TransitionInput) (*orders.Projection, error) {
	panic("not implemented")
}

func (s *stubOrdersService) UpdatePaymentStatus(ctx context.Context, orderID uuid.UUID, status enums.PaymentStatus, actor orders.Actor) (*orders.Projection, error) {
	panic("not implemented")
}

func (s *stubOrdersService) RecordDriverResponse(ctx context.Context, orderID, driverID uuid.UUID, response enums.DriverAcceptance) (*orders.Projection, error) {
	panic("not implemented")
}

func (s *stubOrdersService) ApplyPaymentCompletionTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*orders.Projection, error) {
	s.completions = append(s.completions, orderID)
	if s.order != nil && s.order.ID == orderID {
		s.order.PaymentStatus = enums.PaymentStatusPaid
		projection := orders.ProjectOrder(*s.order)
		return &projection, nil
	}
	return &orders.Projection{ID: orderID, PaymentStatus: enums.PaymentStatusPaid}, nil
}

func (s *stubOrdersService) SetPaymentStatusTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.PaymentStatus) error {
	s.paymentStatusLog = append(s.paymentStatusLog, paymentStatusWrite{orderID: orderID, status: status})
	if s.order != nil && s.order.ID == orderID {
		s.order.PaymentStatus = status
	}
	return nil
}

type stubLedgerService struct {
	alreadyRecorded bool
	recorded        []ledger.RecordPaymentInput
}

func (s *stubLedgerService) RecordOrderPayment(ctx context.Context, tx *gorm.DB, input ledger.RecordPaymentInput) (*models.Transaction, error) {
	if s.alreadyRecorded {
		return nil, nil
	}
	s.recorded = append(s.recorded, input)
	return &models.Transaction{
		ID:            uuid.New(),
		OrderID:       input.OrderID,
		Type:          enums.TransactionTypePayment,
		Amount:        input.Amount,
		Status:        enums.TransactionStatusCompleted,
		PaymentMethod: input.PaymentMethod,
	}, nil
}

func (s *stubLedgerService) SplitDeliveryFee(ctx context.Context, tx *gorm.DB, input ledger.SplitDeliveryFeeInput) (*ledger.DeliveryFeeSplit, error) {
	panic("not implemented")
}

func (s *stubLedgerService) CreditTip(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, amount decimal.Decimal, driverID uuid.UUID) (*models.Transaction, error) {
	panic("not implemented")
}

func (s *stubLedgerService) HasTransaction(ctx context.Context, orderID uuid.UUID, txnType enums.TransactionType, driverWalletID *uuid.UUID) (bool, error) {
	return s.alreadyRecorded, nil
}

func (s *stubLedgerService) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Transaction, error) {
	return nil, nil
}

type walletCredit struct {
	walletID uuid.UUID
	amount   decimal.Decimal
}

type stubWalletsRepo struct {
	merchant models.Wallet
	credits  []walletCredit
}

func (s *stubWalletsRepo) WithTx(tx *gorm.DB) wallets.Repository { return s }

func (s *stubWalletsRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	panic("not implemented")
}

func (s *stubWalletsRepo) FindMerchant(ctx context.Context) (*models.Wallet, error) {
	copied := s.merchant
	return &copied, nil
}

func (s *stubWalletsRepo) FindByDriverID(ctx context.Context, driverID uuid.UUID) (*models.Wallet, error) {
	panic("not implemented")
}

func (s *stubWalletsRepo) List(ctx context.Context) ([]models.Wallet, error) {
	panic("not implemented")
}

func (s *stubWalletsRepo) Credit(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal) error {
	s.credits = append(s.credits, walletCredit{walletID: walletID, amount: amount})
	return nil
}

func (s *stubWalletsRepo) SetBalance(ctx context.Context, walletID uuid.UUID, balance decimal.Decimal) error {
	panic("not implemented")
}

func (s *stubWalletsRepo) SumCompleted(ctx context.Context, wallet models.Wallet) (decimal.Decimal, error) {
	panic("not implemented")
}

type stubPaymentLocker struct {
	lockedOrders []uuid.UUID
}

func (s *stubPaymentLocker) WithOrderLock(ctx context.Context, orderID uuid.UUID, fn func(ctx context.Context) error) error {
	s.lockedOrders = append(s.lockedOrders, orderID)
	return fn(ctx)
}

type stubTracker struct {
	tracked   []uuid.UUID
	cancelled []uuid.UUID
}

func (s *stubTracker) Track(attemptID uuid.UUID)  { s.tracked = append(s.tracked, attemptID) }
func (s *stubTracker) Cancel(attemptID uuid.UUID) { s.cancelled = append(s.cancelled, attemptID) }

type paymentFixture struct {
	svc     *ServiceImpl
	repo    *stubAttemptRepo
	orders  *stubOrdersService
	ordRepo *stubOrderRepo
	ledger  *stubLedgerService
	wallets *stubWalletsRepo
	tracker *stubTracker
	conn    *gorm.DB
}

func newPaymentFixture(t *testing.T, order *models.Order, gatewayURL string) *paymentFixture {
	t.Helper()
	client, conn := newTestClient(t)
	if gatewayURL == "" {
		gatewayURL = "http://gateway.invalid"
	}
	gw, err := gateway.NewClient("test-key", gateway.WithBaseURL(gatewayURL))
	if err != nil {
		t.Fatalf("gateway constructor failed: %v", err)
	}

	repo := newStubAttemptRepo()
	ordSvc := &stubOrdersService{order: order}
	ordRepo := &stubOrderRepo{order: order}
	led := &stubLedgerService{}
	wal := &stubWalletsRepo{merchant: models.Wallet{ID: uuid.New(), Owner: models.WalletOwnerMerchant}}
	tracker := &stubTracker{}

	svc, err := NewService(ServiceParams{
		Repo:      repo,
		Orders:    ordSvc,
		OrderRepo: ordRepo,
		Ledger:    led,
		Wallets:   wal,
		Gateway:   gw,
		Client:    client,
		Lock:      &stubPaymentLocker{},
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("service constructor failed: %v", err)
	}
	svc.Bind(tracker)

	return &paymentFixture{
		svc:     svc,
		repo:    repo,
		orders:  ordSvc,
		ordRepo: ordRepo,
		ledger:  led,
		wallets: wal,
		tracker: tracker,
		conn:    conn,
	}
}

func pendingAttempt(t *testing.T, fix *paymentFixture, orderID uuid.UUID, amount decimal.Decimal, ref string) *models.Transaction {
	t.Helper()
	attempt := &models.Transaction{
		OrderID:       orderID,
		Type:          enums.TransactionTypePayment,
		Amount:        amount,
		Status:        enums.TransactionStatusPending,
		PaymentMethod: enums.PaymentMethodMobileMoney,
		ExternalRef:   &ref,
	}
	if err := fix.repo.Create(context.Background(), attempt); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}
	return attempt
}

func TestInitiatePushCreatesPendingRowBeforeGateway(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusUnpaid,
		PaymentType:   enums.PaymentTypePayNow,
		TotalAmount:   decimal.NewFromInt(25),
	}

	var fix *paymentFixture
	var rowsAtGatewayCall int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fix.repo.mu.Lock()
		rowsAtGatewayCall = len(fix.repo.attempts)
		fix.repo.mu.Unlock()
		_ = json.NewEncoder(w).Encode(gateway.PushResponse{ExternalRef: "MPX123"})
	}))
	defer server.Close()
	fix = newPaymentFixture(t, order, server.URL)

	attempt, err := fix.svc.InitiatePush(context.Background(), InitiatePushInput{
		OrderID:     orderID,
		PhoneNumber: "254700000001",
		Amount:      decimal.NewFromInt(25),
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if rowsAtGatewayCall != 1 {
		t.Fatalf("expected pending row before gateway call, saw %d rows", rowsAtGatewayCall)
	}
	if attempt.ExternalRef == nil || *attempt.ExternalRef != "MPX123" {
		t.Fatalf("expected gateway ref recorded got %v", attempt.ExternalRef)
	}
	if len(fix.orders.paymentStatusLog) != 1 || fix.orders.paymentStatusLog[0].status != enums.PaymentStatusPending {
		t.Fatalf("expected order marked payment-pending got %+v", fix.orders.paymentStatusLog)
	}
	if len(fix.tracker.tracked) != 1 || fix.tracker.tracked[0] != attempt.ID {
		t.Fatalf("expected attempt tracked got %v", fix.tracker.tracked)
	}
}

func TestInitiatePushGatewayRejection(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{
		ID:          orderID,
		Status:      enums.OrderStatusPending,
		PaymentType: enums.PaymentTypePayNow,
		TotalAmount: decimal.NewFromInt(25),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient float", http.StatusBadGateway)
	}))
	defer server.Close()
	fix := newPaymentFixture(t, order, server.URL)

	_, err := fix.svc.InitiatePush(context.Background(), InitiatePushInput{
		OrderID:     orderID,
		PhoneNumber: "254700000001",
		Amount:      decimal.NewFromInt(25),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error got %v", err)
	}

	var failed *models.Transaction
	for _, txn := range fix.repo.attempts {
		failed = txn
	}
	if failed == nil || failed.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected attempt marked failed got %+v", failed)
	}
	if failed.FailureReason == nil {
		t.Fatal("expected failure reason recorded")
	}
	if len(fix.tracker.tracked) != 0 {
		t.Fatal("failed attempt must not be tracked")
	}
}

func TestInitiatePushGuards(t *testing.T) {
	orderID := uuid.New()

	cases := []struct {
		name  string
		order *models.Order
		input InitiatePushInput
		code  pkgerrors.Code
	}{
		{
			name:  "order not found",
			order: nil,
			input: InitiatePushInput{OrderID: orderID, PhoneNumber: "254700000001", Amount: decimal.NewFromInt(10)},
			code:  pkgerrors.CodeNotFound,
		},
		{
			name:  "terminal order",
			order: &models.Order{ID: orderID, Status: enums.OrderStatusCancelled, TotalAmount: decimal.NewFromInt(10)},
			input: InitiatePushInput{OrderID: orderID, PhoneNumber: "254700000001", Amount: decimal.NewFromInt(10)},
			code:  pkgerrors.CodeForbidden,
		},
		{
			name:  "already paid",
			order: &models.Order{ID: orderID, Status: enums.OrderStatusConfirmed, PaymentStatus: enums.PaymentStatusPaid, TotalAmount: decimal.NewFromInt(10)},
			input: InitiatePushInput{OrderID: orderID, PhoneNumber: "254700000001", Amount: decimal.NewFromInt(10)},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "amount mismatch",
			order: &models.Order{ID: orderID, Status: enums.OrderStatusPending, TotalAmount: decimal.NewFromInt(10)},
			input: InitiatePushInput{OrderID: orderID, PhoneNumber: "254700000001", Amount: decimal.NewFromInt(9)},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "missing phone",
			order: &models.Order{ID: orderID, Status: enums.OrderStatusPending, TotalAmount: decimal.NewFromInt(10)},
			input: InitiatePushInput{OrderID: orderID, Amount: decimal.NewFromInt(10)},
			code:  pkgerrors.CodeValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fix := newPaymentFixture(t, tc.order, "")
			_, err := fix.svc.InitiatePush(context.Background(), tc.input)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != tc.code {
				t.Fatalf("expected %s got %v", tc.code, err)
			}
		})
	}
}

func TestHandleCallbackCompletesAttempt(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		PaymentType:   enums.PaymentTypePayNow,
		TotalAmount:   decimal.NewFromInt(25),
		CustomerPhone: "254700000001",
	}
	fix := newPaymentFixture(t, order, "")
	attempt := pendingAttempt(t, fix, orderID, decimal.NewFromInt(25), "MPX456")

	err := fix.svc.HandleCallback(context.Background(), gateway.CallbackPayload{
		ExternalRef:   "MPX456",
		Status:        gateway.AttemptCompleted,
		Amount:        decimal.NewFromInt(25),
		ReceiptNumber: "RCT001",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}

	resolved, _ := fix.repo.FindByID(context.Background(), attempt.ID)
	if resolved.Status != enums.TransactionStatusCompleted {
		t.Fatalf("expected completed got %s", resolved.Status)
	}
	if resolved.ReceiptNumber == nil || *resolved.ReceiptNumber != "RCT001" {
		t.Fatalf("expected receipt recorded got %v", resolved.ReceiptNumber)
	}
	if len(fix.wallets.credits) != 1 || !fix.wallets.credits[0].amount.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected merchant credit got %+v", fix.wallets.credits)
	}
	if len(fix.orders.completions) != 1 || fix.orders.completions[0] != orderID {
		t.Fatalf("expected payment completion applied got %v", fix.orders.completions)
	}
	if got := countEvents(t, fix.conn, attempt.ID, enums.EventPaymentConfirmed); got != 1 {
		t.Fatalf("expected 1 payment-confirmed event got %d", got)
	}
	if len(fix.tracker.cancelled) != 1 || fix.tracker.cancelled[0] != attempt.ID {
		t.Fatalf("expected tracker cancelled got %v", fix.tracker.cancelled)
	}
}

func TestHandleCallbackDuplicateIsNoOp(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{
		ID:          orderID,
		Status:      enums.OrderStatusPending,
		PaymentType: enums.PaymentTypePayNow,
		TotalAmount: decimal.NewFromInt(25),
	}
	fix := newPaymentFixture(t, order, "")
	attempt := pendingAttempt(t, fix, orderID, decimal.NewFromInt(25), "MPX789")

	payload := gateway.CallbackPayload{
		ExternalRef: "MPX789",
		Status:      gateway.AttemptCompleted,
		Amount:      decimal.NewFromInt(25),
	}
	if err := fix.svc.HandleCallback(context.Background(), payload); err != nil {
		t.Fatalf("first callback failed: %v", err)
	}
	if err := fix.svc.HandleCallback(context.Background(), payload); err != nil {
		t.Fatalf("duplicate callback failed: %v", err)
	}

	if len(fix.wallets.credits) != 1 {
		t.Fatalf("duplicate callback must not credit twice, got %d credits", len(fix.wallets.credits))
	}
	if len(fix.orders.completions) != 1 {
		t.Fatalf("duplicate callback must not re-apply completion, got %d", len(fix.orders.completions))
	}
	if got := countEvents(t, fix.conn, attempt.ID, enums.EventPaymentConfirmed); got != 1 {
		t.Fatalf("expected a single payment-confirmed event got %d", got)
	}
}

func TestHandleCallbackDropsNoise(t *testing.T) {
	fix := newPaymentFixture(t, nil, "")

	// Unknown reference: acknowledged and dropped.
	if err := fix.svc.HandleCallback(context.Background(), gateway.CallbackPayload{
		ExternalRef: "UNKNOWN",
		Status:      gateway.AttemptCompleted,
	}); err != nil {
		t.Fatalf("unknown ref should be dropped, got %v", err)
	}

	// Blank reference.
	if err := fix.svc.HandleCallback(context.Background(), gateway.CallbackPayload{
		Status: gateway.AttemptCompleted,
	}); err != nil {
		t.Fatalf("blank ref should be dropped, got %v", err)
	}

	// Non-terminal status.
	orderID := uuid.New()
	fix = newPaymentFixture(t, &models.Order{ID: orderID, TotalAmount: decimal.NewFromInt(5)}, "")
	attempt := pendingAttempt(t, fix, orderID, decimal.NewFromInt(5), "MPX000")
	if err := fix.svc.HandleCallback(context.Background(), gateway.CallbackPayload{
		ExternalRef: "MPX000",
		Status:      gateway.AttemptPending,
	}); err != nil {
		t.Fatalf("non-terminal callback should be dropped, got %v", err)
	}
	current, _ := fix.repo.FindByID(context.Background(), attempt.ID)
	if current.Status != enums.TransactionStatusPending {
		t.Fatalf("non-terminal callback must not resolve the attempt, got %s", current.Status)
	}
}

func TestHandleCallbackFailureMarksOrderUnpaid(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		PaymentType:   enums.PaymentTypePayNow,
		TotalAmount:   decimal.NewFromInt(25),
	}
	fix := newPaymentFixture(t, order, "")
	attempt := pendingAttempt(t, fix, orderID, decimal.NewFromInt(25), "MPX321")

	err := fix.svc.HandleCallback(context.Background(), gateway.CallbackPayload{
		ExternalRef:   "MPX321",
		Status:        gateway.AttemptFailed,
		FailureReason: "customer declined",
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}

	resolved, _ := fix.repo.FindByID(context.Background(), attempt.ID)
	if resolved.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected failed got %s", resolved.Status)
	}
	if resolved.FailureReason == nil || *resolved.FailureReason != "customer declined" {
		t.Fatalf("expected failure reason got %v", resolved.FailureReason)
	}
	if len(fix.orders.paymentStatusLog) != 1 || fix.orders.paymentStatusLog[0].status != enums.PaymentStatusUnpaid {
		t.Fatalf("expected order reset to unpaid got %+v", fix.orders.paymentStatusLog)
	}
	if len(fix.wallets.credits) != 0 {
		t.Fatal("failed attempt must not credit the merchant")
	}
}

func TestPollOnceResolvesFromGateway(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		Status:        enums.OrderStatusPending,
		PaymentType:   enums.PaymentTypePayNow,
		TotalAmount:   decimal.NewFromInt(30),
		CustomerPhone: "254700000002",
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(gateway.StatusResult{
			ExternalRef:   "MPX555",
			Status:        gateway.AttemptCompleted,
			Amount:        decimal.NewFromInt(30),
			ReceiptNumber: "RCT777",
		})
	}))
	defer server.Close()
	fix := newPaymentFixture(t, order, server.URL)
	attempt := pendingAttempt(t, fix, orderID, decimal.NewFromInt(30), "MPX555")

	resolved, err := fix.svc.PollOnce(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if resolved.Status != enums.TransactionStatusCompleted {
		t.Fatalf("expected completed got %s", resolved.Status)
	}
	if len(fix.wallets.credits) != 1 {
		t.Fatalf("expected merchant credit got %d", len(fix.wallets.credits))
	}
}

func TestPollOnceSkipsResolvedAttempt(t *testing.T) {
	orderID := uuid.New()
	var gatewayHits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gatewayHits++
		_ = json.NewEncoder(w).Encode(gateway.StatusResult{Status: gateway.AttemptCompleted})
	}))
	defer server.Close()
	fix := newPaymentFixture(t, &models.Order{ID: orderID, TotalAmount: decimal.NewFromInt(5)}, server.URL)

	ref := "MPX111"
	attempt := &models.Transaction{
		OrderID:       orderID,
		Type:          enums.TransactionTypePayment,
		Amount:        decimal.NewFromInt(5),
		Status:        enums.TransactionStatusCompleted,
		PaymentMethod: enums.PaymentMethodMobileMoney,
		ExternalRef:   &ref,
	}
	if err := fix.repo.Create(context.Background(), attempt); err != nil {
		t.Fatalf("seed attempt: %v", err)
	}

	resolved, err := fix.svc.PollOnce(context.Background(), attempt.ID)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if resolved.Status != enums.TransactionStatusCompleted {
		t.Fatalf("expected completed got %s", resolved.Status)
	}
	if gatewayHits != 0 {
		t.Fatalf("resolved attempt must not hit the gateway, got %d hits", gatewayHits)
	}
	if len(fix.tracker.cancelled) != 1 {
		t.Fatalf("expected tracker cancel got %v", fix.tracker.cancelled)
	}
}

func TestFailTimedOut(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{ID: orderID, Status: enums.OrderStatusPending, PaymentType: enums.PaymentTypePayNow, TotalAmount: decimal.NewFromInt(15)}
	fix := newPaymentFixture(t, order, "")
	attempt := pendingAttempt(t, fix, orderID, decimal.NewFromInt(15), "MPX222")

	if err := fix.svc.FailTimedOut(context.Background(), attempt.ID); err != nil {
		t.Fatalf("expected success got %v", err)
	}
	resolved, _ := fix.repo.FindByID(context.Background(), attempt.ID)
	if resolved.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected failed got %s", resolved.Status)
	}
	if resolved.FailureReason == nil || *resolved.FailureReason != "payment confirmation timed out" {
		t.Fatalf("expected timeout reason got %v", resolved.FailureReason)
	}
}

func TestSweepTimedOutFailsStaleAttempts(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{ID: orderID, Status: enums.OrderStatusPending, PaymentType: enums.PaymentTypePayNow, TotalAmount: decimal.NewFromInt(10)}
	fix := newPaymentFixture(t, order, "")

	stale := pendingAttempt(t, fix, orderID, decimal.NewFromInt(10), "MPX333")
	fix.repo.mu.Lock()
	fix.repo.attempts[stale.ID].CreatedAt = time.Now().Add(-10 * time.Minute)
	fix.repo.mu.Unlock()
	fresh := pendingAttempt(t, fix, orderID, decimal.NewFromInt(10), "MPX444")

	swept, err := fix.svc.SweepTimedOut(context.Background(), 5*time.Minute)
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept attempt got %d", swept)
	}
	staleRow, _ := fix.repo.FindByID(context.Background(), stale.ID)
	if staleRow.Status != enums.TransactionStatusFailed {
		t.Fatalf("expected stale attempt failed got %s", staleRow.Status)
	}
	freshRow, _ := fix.repo.FindByID(context.Background(), fresh.ID)
	if freshRow.Status != enums.TransactionStatusPending {
		t.Fatalf("fresh attempt must stay pending got %s", freshRow.Status)
	}
}

func TestRecordCashPayment(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		Status:        enums.OrderStatusDelivered,
		PaymentStatus: enums.PaymentStatusUnpaid,
		PaymentType:   enums.PaymentTypePayOnDelivery,
		TotalAmount:   decimal.NewFromInt(40),
		CustomerPhone: "254700000003",
	}
	fix := newPaymentFixture(t, order, "")

	projection, err := fix.svc.RecordCashPayment(context.Background(), RecordCashPaymentInput{
		OrderID:        orderID,
		AmountReceived: decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("expected success got %v", err)
	}
	if projection.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("expected paid got %s", projection.PaymentStatus)
	}
	if len(fix.ledger.recorded) != 1 || fix.ledger.recorded[0].PaymentMethod != enums.PaymentMethodCash {
		t.Fatalf("expected cash ledger row got %+v", fix.ledger.recorded)
	}
}

func TestRecordCashPaymentGuards(t *testing.T) {
	orderID := uuid.New()

	fix := newPaymentFixture(t, &models.Order{
		ID:          orderID,
		Status:      enums.OrderStatusCompleted,
		TotalAmount: decimal.NewFromInt(40),
	}, "")
	_, err := fix.svc.RecordCashPayment(context.Background(), RecordCashPaymentInput{
		OrderID:        orderID,
		AmountReceived: decimal.NewFromInt(40),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden got %v", err)
	}

	fix = newPaymentFixture(t, &models.Order{
		ID:          orderID,
		Status:      enums.OrderStatusDelivered,
		TotalAmount: decimal.NewFromInt(40),
	}, "")
	_, err = fix.svc.RecordCashPayment(context.Background(), RecordCashPaymentInput{
		OrderID:        orderID,
		AmountReceived: decimal.NewFromInt(39),
	})
	typed = pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation got %v", err)
	}
}

func TestRecordCashPaymentIdempotent(t *testing.T) {
	orderID := uuid.New()
	order := &models.Order{
		ID:            orderID,
		Status:        enums.OrderStatusDelivered,
		PaymentStatus: enums.PaymentStatusPaid,
		PaymentType:   enums.PaymentTypePayOnDelivery,
		TotalAmount:   decimal.NewFromInt(40),
	}
	fix := newPaymentFixture(t, order, "")
	fix.ledger.alreadyRecorded = true

	projection, err := fix.svc.RecordCashPayment(context.Background(), RecordCashPaymentInput{
		OrderID:        orderID,
		AmountReceived: decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("repeated cash record should succeed got %v", err)
	}
	if projection == nil {
		t.Fatal("expected projection")
	}
	if len(fix.ledger.recorded) != 0 {
		t.Fatalf("repeated cash record must not add a ledger row, got %d", len(fix.ledger.recorded))
	}
}
