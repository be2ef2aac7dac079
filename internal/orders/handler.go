package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopworks/ordersaga/internal/domain"
)

// OrderReader covers the read-only queries the handler serves directly,
// without going through the coordinator.
type OrderReader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	List(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
}

// Handler exposes the coordinator over HTTP and maps the error taxonomy to
// status codes: validation and state errors -> 400, missing references -> 404,
// reservation/restoration failures -> 500.
type Handler struct {
	coordinator *Coordinator
	repo        OrderReader
	users       UserDirectory
	cache       *OrderCache // optional
	logger      *slog.Logger
}

func NewHandler(coordinator *Coordinator, repo OrderReader, users UserDirectory, cache *OrderCache, logger *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		repo:        repo,
		users:       users,
		cache:       cache,
		logger:      logger,
	}
}

type createOrderRequest struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.coordinator.CreateOrder(r.Context(), CreateOrderInput{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.Set(r.Context(), result.Order)
	}

	h.writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if h.cache != nil {
		if order := h.cache.Get(r.Context(), id); order != nil {
			h.writeJSON(w, http.StatusOK, order)
			return
		}
	}

	order, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get order", "error", err, "order_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if order == nil {
		h.writeError(w, http.StatusNotFound, "order not found")
		return
	}

	if h.cache != nil {
		h.cache.Set(r.Context(), order)
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	orders, err := h.repo.List(r.Context(), status)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	user, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("user lookup failed", "error", err, "user_id", userID)
	}
	if user == nil {
		h.writeError(w, http.StatusNotFound, "user not found")
		return
	}

	orders, err := h.repo.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list orders by user", "error", err, "user_id", userID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"orders":  orders,
	})
}

type updateOrderRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.coordinator.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(r.Context(), id)
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.coordinator.Confirm(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(r.Context(), id)
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	if err := h.coordinator.Delete(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(r.Context(), id)
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"message": "order deleted"})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "orders",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		validation   *domain.ValidationError
		notFound     *domain.NotFoundError
		insufficient *domain.InsufficientStockError
		reservation  *domain.StockReservationError
		restoration  *domain.StockRestorationError
		invalidState *domain.InvalidStateError
	)

	switch {
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &notFound):
		h.writeError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &insufficient):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "insufficient stock",
			"available": insufficient.Available,
			"requested": insufficient.Requested,
		})
	case errors.As(err, &reservation):
		h.logger.Error("stock reservation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to reserve product stock")
	case errors.As(err, &restoration):
		h.logger.Error("stock restoration failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to restore product stock")
	case errors.As(err, &invalidState):
		h.writeError(w, http.StatusBadRequest, invalidState.Error())
	default:
		h.logger.Error("internal error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
