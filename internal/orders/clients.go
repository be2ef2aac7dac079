package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopworks/ordersaga/internal/domain"
)

// UserClient resolves user records from the registry service. Any non-200
// response is reported as absence; transport failures bubble up as errors and
// are treated the same way by the saga.
type UserClient struct {
	baseURL string
	client  *http.Client
}

func NewUserClient(baseURL string, client *http.Client) *UserClient {
	return &UserClient{baseURL: baseURL, client: client}
}

func (c *UserClient) GetUser(ctx context.Context, id string) (*domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var user domain.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}

	return &user, nil
}

// CatalogClient talks to the product catalog: lookups plus the signed
// adjust-by-delta stock operation the saga and compensations rely on.
type CatalogClient struct {
	baseURL string
	client  *http.Client
}

func NewCatalogClient(baseURL string, client *http.Client) *CatalogClient {
	return &CatalogClient{baseURL: baseURL, client: client}
}

func (c *CatalogClient) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+id, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var product domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}

	return &product, nil
}

// AdjustStock issues the atomic quantity adjustment. Negative delta reserves,
// positive restores. The catalog re-validates the counter inside the call, so
// a rejected reservation comes back as *domain.InsufficientStockError even if
// an earlier snapshot check passed.
func (c *CatalogClient) AdjustStock(ctx context.Context, id string, delta int) error {
	body, err := json.Marshal(map[string]int{"quantity_change": delta})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/products/%s/stock", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("adjust stock for product %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusConflict:
		var payload struct {
			Available int `json:"available"`
			Requested int `json:"requested"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		return &domain.InsufficientStockError{
			ProductID: id,
			Available: payload.Available,
			Requested: payload.Requested,
		}
	case http.StatusNotFound:
		return &domain.NotFoundError{Kind: "product", ID: id}
	default:
		return fmt.Errorf("catalog returned status %d for product %s", resp.StatusCode, id)
	}
}
