package domain

import "fmt"

// ValidationError covers malformed input rejected before any remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError is returned when a referenced entity is absent, or its
// owning service is unreachable (the two are indistinguishable to callers).
type NotFoundError struct {
	Kind string // "user", "product", "order"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// InsufficientStockError reports a failed snapshot check before any write.
type InsufficientStockError struct {
	ProductID string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// StockReservationError means the atomic decrement failed after the order row
// was persisted; the row has already been compensated away when this surfaces.
type StockReservationError struct {
	ProductID string
	Quantity  int
	Cause     error
}

func (e *StockReservationError) Error() string {
	return fmt.Sprintf("failed to reserve %d units of product %s: %v", e.Quantity, e.ProductID, e.Cause)
}

func (e *StockReservationError) Unwrap() error { return e.Cause }

// StockRestorationError means a compensating restore failed during cancel or
// delete. The order keeps its pre-transition status so stock and status never
// diverge.
type StockRestorationError struct {
	ProductID string
	Quantity  int
	Cause     error
}

func (e *StockRestorationError) Error() string {
	return fmt.Sprintf("failed to restore %d units of product %s: %v", e.Quantity, e.ProductID, e.Cause)
}

func (e *StockRestorationError) Unwrap() error { return e.Cause }

// InvalidStateError reports an illegal status transition.
type InvalidStateError struct {
	OrderID string
	Current OrderStatus
	Action  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s order %s with status %s", e.Action, e.OrderID, e.Current)
}
