package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func unusedProxy() *ServiceProxy {
	return NewServiceProxy("http://unused", http.DefaultClient)
}

func TestHandlerProxiesOrders(t *testing.T) {
	t.Run("forwards POST /orders with body", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/orders" {
				t.Errorf("expected /orders, got %s", r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"user_id":"u1","product_id":"p1","quantity":1}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"order":{"id":"o1"}}`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(unusedProxy(), unusedProxy(),
			NewServiceProxy(ordersServer.URL, ordersServer.Client()), discardLogger())

		req := httptest.NewRequest(http.MethodPost, "/orders",
			strings.NewReader(`{"user_id":"u1","product_id":"p1","quantity":1}`))
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected 201, got %d", rec.Code)
		}
	})

	t.Run("preserves downstream error status", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"order not found"}`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(unusedProxy(), unusedProxy(),
			NewServiceProxy(ordersServer.URL, ordersServer.Client()), discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/orders/nope", nil)
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when service unavailable", func(t *testing.T) {
		handler := NewHandler(unusedProxy(), unusedProxy(),
			NewServiceProxy("http://localhost:1", &http.Client{}), discardLogger())

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandlerProxiesUsersAndCatalog(t *testing.T) {
	usersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/u1" {
			t.Errorf("expected /users/u1, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"u1"}`))
	}))
	defer usersServer.Close()

	catalogServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/products/p1/stock" {
			t.Errorf("expected /products/p1/stock, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer catalogServer.Close()

	handler := NewHandler(
		NewServiceProxy(usersServer.URL, usersServer.Client()),
		NewServiceProxy(catalogServer.URL, catalogServer.Client()),
		unusedProxy(),
		discardLogger(),
	)

	req := httptest.NewRequest(http.MethodGet, "/users/u1", nil)
	rec := httptest.NewRecorder()
	handler.HandleUsers(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from users proxy, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPatch, "/products/p1/stock", strings.NewReader(`{"quantity_change":-1}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	handler.HandleCatalog(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from catalog proxy, got %d", rec.Code)
	}
}

func TestServiceProxyForwardsQueryString(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.RawQuery != "status=pending" {
			t.Errorf("expected query forwarded, got %q", r.URL.RawQuery)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	proxy := NewServiceProxy(server.URL, server.Client())
	req := httptest.NewRequest(http.MethodGet, "/orders?status=pending", nil)
	resp, err := proxy.ForwardRequest(req.Context(), req, "/orders")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
