package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopworks/ordersaga/internal/domain"
)

// NotificationHandler turns order lifecycle events into emails. Stock is
// handled synchronously inside the creation saga, so this consumer only
// notifies; a failed email returns an error and the message is redelivered.
type NotificationHandler struct {
	emailServiceURL string
	userServiceURL  string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL, userServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		userServiceURL:  userServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

func (h *NotificationHandler) Handle(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case domain.EventOrderCreated:
		return h.handleCreated(ctx, payload)
	case domain.EventOrderCancelled:
		return h.handleCancelled(ctx, payload)
	default:
		h.logger.Warn("skipping unknown event type", "event_type", eventType)
		return nil
	}
}

func (h *NotificationHandler) handleCreated(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	h.logger.Info("processing order created event", "order_id", event.OrderID, "user_id", event.UserID)

	to, err := h.resolveEmail(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient for order %s: %w", event.OrderID, err)
	}

	body := map[string]string{
		"to":      to,
		"subject": "Order received: " + event.OrderID,
		"body": fmt.Sprintf("Your order %s for %d units has been placed. Total: %d.%02d.",
			event.OrderID, event.Quantity, event.TotalCents/100, event.TotalCents%100),
	}

	if err := h.sendEmail(ctx, body); err != nil {
		return fmt.Errorf("send order placed email: %w", err)
	}

	h.logger.Info("order notification sent", "order_id", event.OrderID, "to", to)
	return nil
}

func (h *NotificationHandler) handleCancelled(ctx context.Context, payload []byte) error {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order cancelled event: %w", err)
	}

	h.logger.Info("processing order cancelled event", "order_id", event.OrderID, "user_id", event.UserID)

	to, err := h.resolveEmail(ctx, event.UserID)
	if err != nil {
		return fmt.Errorf("resolve recipient for order %s: %w", event.OrderID, err)
	}

	body := map[string]string{
		"to":      to,
		"subject": "Order cancelled: " + event.OrderID,
		"body": fmt.Sprintf("Your order %s has been cancelled and the reserved %d units were returned to stock.",
			event.OrderID, event.Quantity),
	}

	if err := h.sendEmail(ctx, body); err != nil {
		return fmt.Errorf("send cancellation email: %w", err)
	}

	h.logger.Info("cancellation notification sent", "order_id", event.OrderID, "to", to)
	return nil
}

func (h *NotificationHandler) resolveEmail(ctx context.Context, userID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userServiceURL+"/users/"+userID, nil)
	if err != nil {
		return "", err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user service returned status %d for user %s", resp.StatusCode, userID)
	}

	var user domain.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return "", err
	}

	return user.Email, nil
}

func (h *NotificationHandler) sendEmail(ctx context.Context, body map[string]string) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}

	return nil
}
