package catalog

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopworks/ordersaga/internal/domain"
)

type Handler struct {
	repo   *ProductRepository
	logger *slog.Logger
}

func NewHandler(repo *ProductRepository, logger *slog.Logger) *Handler {
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

type createProductRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	PriceCents    int64  `json:"price_cents"`
	StockQuantity int    `json:"stock_quantity"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Name) < 3 {
		h.writeError(w, http.StatusBadRequest, "product name must be at least 3 characters")
		return
	}
	if req.PriceCents <= 0 {
		h.writeError(w, http.StatusBadRequest, "product price must be greater than 0")
		return
	}
	if req.StockQuantity < 0 {
		h.writeError(w, http.StatusBadRequest, "stock quantity cannot be negative")
		return
	}

	product := &domain.Product{
		Name:          req.Name,
		Description:   req.Description,
		PriceCents:    req.PriceCents,
		StockQuantity: req.StockQuantity,
	}

	if err := h.repo.Create(r.Context(), product); err != nil {
		h.logger.Error("failed to create product", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("product created", "product_id", product.ID, "name", product.Name)
	h.writeJSON(w, http.StatusCreated, product)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get product", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	products, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, products)
}

type adjustStockRequest struct {
	QuantityChange *int `json:"quantity_change"`
}

// HandleAdjustStock applies a signed stock delta: negative reserves, positive
// restores. A rejected adjustment leaves the counter untouched and reports
// 409 so saga callers can tell "lost the race" from "product gone".
func (h *Handler) HandleAdjustStock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing product id")
		return
	}

	var req adjustStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuantityChange == nil {
		h.writeError(w, http.StatusBadRequest, "quantity_change is required")
		return
	}
	if *req.QuantityChange == 0 {
		h.writeError(w, http.StatusBadRequest, "quantity_change cannot be zero")
		return
	}

	product, err := h.repo.AdjustStock(r.Context(), id, *req.QuantityChange)
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			h.logger.Info("stock adjustment rejected",
				"product_id", id, "quantity_change", *req.QuantityChange, "available", product.StockQuantity)
			h.writeJSON(w, http.StatusConflict, map[string]any{
				"error":     "insufficient stock",
				"available": product.StockQuantity,
				"requested": -*req.QuantityChange,
			})
			return
		}
		h.logger.Error("failed to adjust stock", "error", err, "product_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if product == nil {
		h.writeError(w, http.StatusNotFound, "product not found")
		return
	}

	h.logger.Info("stock adjusted", "product_id", id, "quantity_change", *req.QuantityChange, "stock_quantity", product.StockQuantity)
	h.writeJSON(w, http.StatusOK, product)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "catalog",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
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
