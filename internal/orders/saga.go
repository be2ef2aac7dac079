package orders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopworks/ordersaga/internal/domain"
)

// OrderStore is the slice of the repository the saga needs. *OrderRepository
// satisfies it; tests substitute in-memory fakes.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	UpdateStatusFrom(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error)
	Delete(ctx context.Context, id string) error
}

type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

type InventoryCatalog interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	AdjustStock(ctx context.Context, id string, delta int) error
}

type EventPublisher interface {
	Publish(ctx context.Context, key, eventType string, event any) error
}

// Coordinator owns the order lifecycle: the creation saga and the status
// transitions with their compensating stock adjustments. It never shares
// storage with the registry or the catalog; all cross-service effects go
// through the two clients.
type Coordinator struct {
	store    OrderStore
	users    UserDirectory
	catalog  InventoryCatalog
	producer EventPublisher // optional
	logger   *slog.Logger
}

func NewCoordinator(store OrderStore, users UserDirectory, catalog InventoryCatalog, producer EventPublisher, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:    store,
		users:    users,
		catalog:  catalog,
		producer: producer,
		logger:   logger,
	}
}

type CreateOrderInput struct {
	UserID    string
	ProductID string
	Quantity  int
}

// CreateOrderResult echoes back the resolved collaborator records alongside
// the persisted order, so callers see exactly the user and product (and unit
// price) the saga acted on.
type CreateOrderResult struct {
	Order   *domain.Order   `json:"order"`
	User    *domain.User    `json:"user"`
	Product *domain.Product `json:"product"`
}

// CreateOrder runs the creation saga. Steps are strictly ordered; the order
// row is the first durable side effect and the stock decrement the second.
// If the decrement fails the row is deleted again, so a failed saga leaves
// zero residual state on either side.
func (c *Coordinator) CreateOrder(ctx context.Context, in CreateOrderInput) (*CreateOrderResult, error) {
	if in.UserID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "is required"}
	}
	if in.ProductID == "" {
		return nil, &domain.ValidationError{Field: "product_id", Reason: "is required"}
	}
	if in.Quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be greater than 0"}
	}

	user, err := c.users.GetUser(ctx, in.UserID)
	if err != nil {
		c.logger.Error("user lookup failed", "error", err, "user_id", in.UserID)
	}
	if user == nil {
		return nil, &domain.NotFoundError{Kind: "user", ID: in.UserID}
	}

	product, err := c.catalog.GetProduct(ctx, in.ProductID)
	if err != nil {
		c.logger.Error("product lookup failed", "error", err, "product_id", in.ProductID)
	}
	if product == nil {
		return nil, &domain.NotFoundError{Kind: "product", ID: in.ProductID}
	}

	// Fast-path rejection on the snapshot. The authoritative check happens
	// inside AdjustStock below; between here and there the counter may move.
	if product.StockQuantity < in.Quantity {
		return nil, &domain.InsufficientStockError{
			ProductID: in.ProductID,
			Available: product.StockQuantity,
			Requested: in.Quantity,
		}
	}

	order := &domain.Order{
		UserID:     in.UserID,
		ProductID:  in.ProductID,
		Quantity:   in.Quantity,
		TotalCents: product.PriceCents * int64(in.Quantity),
		Status:     domain.OrderStatusPending,
	}

	if err := c.store.Create(ctx, order); err != nil {
		return nil, err
	}

	if err := c.catalog.AdjustStock(ctx, in.ProductID, -in.Quantity); err != nil {
		// Compensate: the order row is local, so the delete is expected to
		// succeed. If it somehow does not, surface loudly; stock was not
		// reserved, so the row is the only orphan.
		if delErr := c.store.Delete(ctx, order.ID); delErr != nil {
			c.logger.Error("compensation failed, orphaned order row",
				"error", delErr, "order_id", order.ID)
		}

		var insufficient *domain.InsufficientStockError
		if errors.As(err, &insufficient) {
			c.logger.Info("reservation lost the race", "order_id", order.ID,
				"product_id", in.ProductID, "requested", in.Quantity)
		}
		return nil, &domain.StockReservationError{
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			Cause:     err,
		}
	}

	c.publish(ctx, order.ID, domain.EventOrderCreated, domain.OrderCreatedEvent{
		OrderID:    order.ID,
		UserID:     order.UserID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		TotalCents: order.TotalCents,
		Timestamp:  order.CreatedAt,
	})

	c.logger.Info("order created", "order_id", order.ID, "user_id", order.UserID,
		"product_id", order.ProductID, "quantity", order.Quantity, "total_cents", order.TotalCents)

	return &CreateOrderResult{Order: order, User: user, Product: product}, nil
}

// UpdateStatus applies a generic status transition. Moving into cancelled
// from any other status first restores the reserved stock; if restoration
// fails the order keeps its previous status. Cancelling an already cancelled
// order is a no-op for stock.
func (c *Coordinator) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: "must be one of pending, confirmed, shipped, delivered, cancelled"}
	}

	order, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &domain.NotFoundError{Kind: "order", ID: id}
	}

	cancelling := status == domain.OrderStatusCancelled && order.Status != domain.OrderStatusCancelled
	if cancelling {
		if err := c.catalog.AdjustStock(ctx, order.ProductID, order.Quantity); err != nil {
			return nil, &domain.StockRestorationError{
				ProductID: order.ProductID,
				Quantity:  order.Quantity,
				Cause:     err,
			}
		}
	}

	updated, err := c.store.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, &domain.NotFoundError{Kind: "order", ID: id}
	}

	if cancelling {
		c.publish(ctx, updated.ID, domain.EventOrderCancelled, domain.OrderCancelledEvent{
			OrderID:   updated.ID,
			UserID:    updated.UserID,
			ProductID: updated.ProductID,
			Quantity:  updated.Quantity,
			Timestamp: time.Now().UTC(),
		})
	}

	c.logger.Info("order status updated", "order_id", updated.ID, "status", updated.Status)
	return updated, nil
}

// Confirm moves an order from pending to confirmed. Any other current status
// is rejected; the guard is enforced in the UPDATE itself so two concurrent
// confirms cannot both win.
func (c *Coordinator) Confirm(ctx context.Context, id string) (*domain.Order, error) {
	order, err := c.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, &domain.NotFoundError{Kind: "order", ID: id}
	}

	ok, err := c.store.UpdateStatusFrom(ctx, id, domain.OrderStatusPending, domain.OrderStatusConfirmed)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &domain.InvalidStateError{OrderID: id, Current: order.Status, Action: "confirm"}
	}

	c.logger.Info("order confirmed", "order_id", id)
	return c.store.GetByID(ctx, id)
}

// Delete removes an order. Only pending and cancelled orders qualify; a
// pending one still holds a reservation, so its stock is restored first and
// the deletion is blocked if restoration fails. Cancelled orders were already
// restored at cancel time and are not restored again.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	order, err := c.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if order == nil {
		return &domain.NotFoundError{Kind: "order", ID: id}
	}

	if !order.Deletable() {
		return &domain.InvalidStateError{OrderID: id, Current: order.Status, Action: "delete"}
	}

	if order.Status == domain.OrderStatusPending {
		if err := c.catalog.AdjustStock(ctx, order.ProductID, order.Quantity); err != nil {
			return &domain.StockRestorationError{
				ProductID: order.ProductID,
				Quantity:  order.Quantity,
				Cause:     err,
			}
		}
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return err
	}

	c.logger.Info("order deleted", "order_id", id, "status", order.Status)
	return nil
}

func (c *Coordinator) publish(ctx context.Context, key, eventType string, event any) {
	if c.producer == nil {
		return
	}
	if err := c.producer.Publish(ctx, key, eventType, event); err != nil {
		c.logger.Error("failed to publish event", "error", err, "event_type", eventType, "order_id", key)
	}
}
