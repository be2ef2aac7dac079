package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shopworks/ordersaga/internal/domain"
)

type fakeStore struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{orders: make(map[string]*domain.Order)}
}

func (s *fakeStore) Create(_ context.Context, order *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	order.ID = uuid.New().String()
	cp := *order
	s.orders[order.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	o.Status = status
	cp := *o
	return &cp, nil
}

func (s *fakeStore) UpdateStatusFrom(_ context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	return true, nil
}

func (s *fakeStore) List(_ context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := []domain.Order{}
	for _, o := range s.orders {
		if status == "" || o.Status == status {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (s *fakeStore) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := []domain.Order{}
	for _, o := range s.orders {
		if o.UserID == userID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.orders, id)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
	calls int
}

func (f *fakeUsers) GetUser(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.users[id], nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]*domain.Product

	adjustErr   error // forced failure for every AdjustStock call
	adjustCalls int
}

func (f *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCatalog) AdjustStock(_ context.Context, id string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjustCalls++
	if f.adjustErr != nil {
		return f.adjustErr
	}
	p, ok := f.products[id]
	if !ok {
		return &domain.NotFoundError{Kind: "product", ID: id}
	}
	if p.StockQuantity+delta < 0 {
		return &domain.InsufficientStockError{
			ProductID: id,
			Available: p.StockQuantity,
			Requested: -delta,
		}
	}
	p.StockQuantity += delta
	return nil
}

func (f *fakeCatalog) stock(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[id].StockQuantity
}

func testCoordinator(store *fakeStore, users *fakeUsers, catalog *fakeCatalog) *Coordinator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCoordinator(store, users, catalog, nil, logger)
}

func fixtures() (*fakeStore, *fakeUsers, *fakeCatalog) {
	store := newFakeStore()
	users := &fakeUsers{users: map[string]*domain.User{
		"u1": {ID: "u1", Username: "alice", Email: "alice@example.com"},
	}}
	catalog := &fakeCatalog{products: map[string]*domain.Product{
		"p1": {ID: "p1", Name: "Widget", PriceCents: 1999, StockQuantity: 10},
	}}
	return store, users, catalog
}

func TestCreateOrderSuccess(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, err := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 3,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Order.Status != domain.OrderStatusPending {
		t.Errorf("expected pending status, got %s", result.Order.Status)
	}
	if result.Order.TotalCents != 3*1999 {
		t.Errorf("expected total %d, got %d", 3*1999, result.Order.TotalCents)
	}
	if result.User.ID != "u1" || result.Product.ID != "p1" {
		t.Errorf("expected resolved user and product in result")
	}
	if got := catalog.stock("p1"); got != 7 {
		t.Errorf("expected stock 7 after reservation, got %d", got)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 persisted order, got %d", store.count())
	}
}

func TestCreateOrderValidation(t *testing.T) {
	cases := []struct {
		name  string
		input CreateOrderInput
	}{
		{"missing user id", CreateOrderInput{ProductID: "p1", Quantity: 1}},
		{"missing product id", CreateOrderInput{UserID: "u1", Quantity: 1}},
		{"zero quantity", CreateOrderInput{UserID: "u1", ProductID: "p1", Quantity: 0}},
		{"negative quantity", CreateOrderInput{UserID: "u1", ProductID: "p1", Quantity: -2}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, users, catalog := fixtures()
			coord := testCoordinator(store, users, catalog)

			_, err := coord.CreateOrder(context.Background(), tc.input)

			var validation *domain.ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if users.calls != 0 || catalog.adjustCalls != 0 {
				t.Error("expected no remote calls on validation failure")
			}
			if store.count() != 0 {
				t.Error("expected no persisted orders")
			}
		})
	}
}

func TestCreateOrderUserNotFound(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	_, err := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "missing", ProductID: "p1", Quantity: 1,
	})

	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if notFound.Kind != "user" || notFound.ID != "missing" {
		t.Errorf("expected user id surfaced, got %+v", notFound)
	}
	if catalog.stock("p1") != 10 {
		t.Error("expected no stock change")
	}
	if store.count() != 0 {
		t.Error("expected no persisted orders")
	}
}

func TestCreateOrderProductNotFound(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	_, err := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "missing", Quantity: 1,
	})

	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if store.count() != 0 {
		t.Error("expected no persisted orders")
	}
}

func TestCreateOrderInsufficientStockSnapshot(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	_, err := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 11,
	})

	var insufficient *domain.InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if insufficient.Available != 10 || insufficient.Requested != 11 {
		t.Errorf("expected available/requested 10/11, got %d/%d", insufficient.Available, insufficient.Requested)
	}
	if catalog.adjustCalls != 0 {
		t.Error("expected no adjustment attempt after failed snapshot check")
	}
	if store.count() != 0 {
		t.Error("expected no persisted orders")
	}
}

func TestCreateOrderCompensatesOnReservationFailure(t *testing.T) {
	store, users, catalog := fixtures()
	catalog.adjustErr = errors.New("catalog unreachable")
	coord := testCoordinator(store, users, catalog)

	_, err := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 2,
	})

	var reservation *domain.StockReservationError
	if !errors.As(err, &reservation) {
		t.Fatalf("expected StockReservationError, got %v", err)
	}
	// Compensation property: the persisted row must be gone afterwards.
	if store.count() != 0 {
		t.Errorf("expected order row compensated away, %d rows remain", store.count())
	}
}

func TestCreateOrderConcurrentReservations(t *testing.T) {
	store, users, catalog := fixtures()
	catalog.products["p1"].StockQuantity = 5
	coord := testCoordinator(store, users, catalog)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = coord.CreateOrder(context.Background(), CreateOrderInput{
				UserID: "u1", ProductID: "p1", Quantity: 3,
			})
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		failed++
		var insufficient *domain.InsufficientStockError
		var reservation *domain.StockReservationError
		if !errors.As(err, &insufficient) && !errors.As(err, &reservation) {
			t.Errorf("unexpected failure kind: %v", err)
		}
	}

	if succeeded != 1 || failed != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d failures", succeeded, failed)
	}
	if got := catalog.stock("p1"); got != 2 {
		t.Errorf("expected final stock 2, got %d", got)
	}
	if store.count() != 1 {
		t.Errorf("expected exactly one surviving order, got %d", store.count())
	}
}

func TestCreateOrderRetryAfterFailureIsClean(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	// First attempt fails before any durable write.
	_, err := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "missing", ProductID: "p1", Quantity: 1,
	})
	if err == nil {
		t.Fatal("expected first attempt to fail")
	}

	// Re-issuing the saga with a fixed user id succeeds with no leftovers.
	result, err := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if store.count() != 1 {
		t.Errorf("expected exactly one order after retry, got %d", store.count())
	}
	if result.Order.TotalCents != 1999 {
		t.Errorf("unexpected total: %d", result.Order.TotalCents)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, err := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if catalog.stock("p1") != 6 {
		t.Fatalf("expected stock 6 after reservation, got %d", catalog.stock("p1"))
	}

	order, err := coord.UpdateStatus(context.Background(), result.Order.ID, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled status, got %s", order.Status)
	}
	if catalog.stock("p1") != 10 {
		t.Errorf("expected stock fully restored to 10, got %d", catalog.stock("p1"))
	}
}

func TestCancelTwiceDoesNotDoubleRestore(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, _ := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 4,
	})

	if _, err := coord.UpdateStatus(context.Background(), result.Order.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	if _, err := coord.UpdateStatus(context.Background(), result.Order.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("second cancel failed: %v", err)
	}

	if got := catalog.stock("p1"); got != 10 {
		t.Errorf("expected stock 10 after double cancel, got %d", got)
	}
}

func TestCancelFailsWhenRestorationFails(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, _ := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 2,
	})

	catalog.adjustErr = errors.New("catalog unreachable")

	_, err := coord.UpdateStatus(context.Background(), result.Order.ID, domain.OrderStatusCancelled)

	var restoration *domain.StockRestorationError
	if !errors.As(err, &restoration) {
		t.Fatalf("expected StockRestorationError, got %v", err)
	}

	// Status and stock must not diverge: the order stays pending.
	order, _ := store.GetByID(context.Background(), result.Order.ID)
	if order.Status != domain.OrderStatusPending {
		t.Errorf("expected order to keep pending status, got %s", order.Status)
	}
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	_, err := coord.UpdateStatus(context.Background(), "any", "refunded")

	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestConfirmOnlyFromPending(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, _ := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 1,
	})

	order, err := coord.Confirm(context.Background(), result.Order.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected confirmed, got %s", order.Status)
	}

	// Confirming again must be rejected, status unchanged.
	_, err = coord.Confirm(context.Background(), result.Order.ID)
	var invalid *domain.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}

	got, _ := store.GetByID(context.Background(), result.Order.ID)
	if got.Status != domain.OrderStatusConfirmed {
		t.Errorf("expected status unchanged, got %s", got.Status)
	}
}

func TestConfirmShippedOrderRejected(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, _ := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 1,
	})
	if _, err := coord.UpdateStatus(context.Background(), result.Order.ID, domain.OrderStatusShipped); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := coord.Confirm(context.Background(), result.Order.ID)

	var invalid *domain.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if invalid.Current != domain.OrderStatusShipped {
		t.Errorf("expected current status shipped in error, got %s", invalid.Current)
	}
}

func TestDeletePendingRestoresStock(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, _ := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 5,
	})
	if catalog.stock("p1") != 5 {
		t.Fatalf("expected stock 5, got %d", catalog.stock("p1"))
	}

	if err := coord.Delete(context.Background(), result.Order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if catalog.stock("p1") != 10 {
		t.Errorf("expected stock restored to 10, got %d", catalog.stock("p1"))
	}
	if store.count() != 0 {
		t.Errorf("expected order removed, %d remain", store.count())
	}
}

func TestDeletePendingBlockedOnRestorationFailure(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, _ := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 5,
	})

	catalog.adjustErr = errors.New("catalog unreachable")

	err := coord.Delete(context.Background(), result.Order.ID)

	var restoration *domain.StockRestorationError
	if !errors.As(err, &restoration) {
		t.Fatalf("expected StockRestorationError, got %v", err)
	}
	if store.count() != 1 {
		t.Error("expected order row to survive a failed restoration")
	}
}

func TestDeleteCancelledDoesNotRestoreAgain(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, _ := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 5,
	})
	if _, err := coord.UpdateStatus(context.Background(), result.Order.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	adjustsBefore := catalog.adjustCalls
	if err := coord.Delete(context.Background(), result.Order.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if catalog.adjustCalls != adjustsBefore {
		t.Error("expected no stock adjustment when deleting a cancelled order")
	}
	if got := catalog.stock("p1"); got != 10 {
		t.Errorf("expected stock 10, got %d", got)
	}
}

func TestDeleteConfirmedRejected(t *testing.T) {
	store, users, catalog := fixtures()
	coord := testCoordinator(store, users, catalog)

	result, _ := coord.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ProductID: "p1", Quantity: 1,
	})
	if _, err := coord.Confirm(context.Background(), result.Order.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	err := coord.Delete(context.Background(), result.Order.ID)

	var invalid *domain.InvalidStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if store.count() != 1 {
		t.Error("expected order to survive")
	}
}
