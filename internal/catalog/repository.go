package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shopworks/ordersaga/internal/domain"
)

var ErrInsufficientStock = errors.New("insufficient stock")

type ProductRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) Create(ctx context.Context, product *domain.Product) error {
	product.ID = uuid.New().String()
	product.CreatedAt = time.Now().UTC()
	product.UpdatedAt = product.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, description, price_cents, stock_quantity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, product.ID, product.Name, product.Description, product.PriceCents, product.StockQuantity, product.CreatedAt)
	return err
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	product := &domain.Product{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, price_cents, stock_quantity, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&product.ID, &product.Name, &product.Description, &product.PriceCents,
		&product.StockQuantity, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return product, nil
}

func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, price_cents, stock_quantity, created_at, updated_at
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents,
			&p.StockQuantity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

// AdjustStock applies a signed delta to a product's stock counter in a single
// conditional UPDATE. The WHERE clause re-validates that the counter cannot
// go negative, atomically with respect to concurrent adjustments; callers
// must never pre-compute the new value themselves.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity + $2, updated_at = NOW()
		WHERE id = $1 AND stock_quantity + $2 >= 0
	`, id, delta)
	if err != nil {
		return nil, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}

	if rowsAffected == 0 {
		// Distinguish a missing product from a rejected adjustment.
		product, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, nil
		}
		return product, ErrInsufficientStock
	}

	return r.GetByID(ctx, id)
}
