package entitlement

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/danandika/civic-report/internal/core/events"
)

// EventHandler turns entitlement events into notification side effects. Today
// that is structured audit logging; a mailer or push channel would subscribe
// the same way.
type EventHandler struct {
	logger *slog.Logger
}

func NewEventHandler(logger *slog.Logger) *EventHandler {
	return &EventHandler{logger: logger}
}

func (h *EventHandler) HandlePaymentVerified(ctx context.Context, event events.Event) error {
	verified, ok := event.(*events.PaymentVerifiedEvent)
	if !ok {
		h.logger.Error("invalid event type for payment verified handler", "event_type", event.EventType())
		return fmt.Errorf("expected PaymentVerifiedEvent, got %T", event)
	}

	h.logger.Info("payment verified",
		"payment_id", verified.PaymentID,
		"session_id", verified.StripeSessionID,
		"user_email", verified.UserEmail,
		"payment_type", verified.PaymentType,
		"amount", verified.Amount,
		"currency", verified.Currency,
		"event_id", verified.EventID())

	return nil
}

func (h *EventHandler) HandlePremiumActivated(ctx context.Context, event events.Event) error {
	activated, ok := event.(*events.PremiumActivatedEvent)
	if !ok {
		h.logger.Error("invalid event type for premium activated handler", "event_type", event.EventType())
		return fmt.Errorf("expected PremiumActivatedEvent, got %T", event)
	}

	h.logger.Info("premium activated",
		"user_email", activated.UserEmail,
		"plan", activated.Plan,
		"expires_at", activated.ExpiresAt,
		"payment_id", activated.PaymentID,
		"event_id", activated.EventID())

	return nil
}

func (h *EventHandler) HandleIssueBoosted(ctx context.Context, event events.Event) error {
	boosted, ok := event.(*events.IssueBoostedEvent)
	if !ok {
		h.logger.Error("invalid event type for issue boosted handler", "event_type", event.EventType())
		return fmt.Errorf("expected IssueBoostedEvent, got %T", event)
	}

	h.logger.Info("issue boosted",
		"issue_id", boosted.IssueID,
		"user_email", boosted.UserEmail,
		"payment_id", boosted.PaymentID,
		"event_id", boosted.EventID())

	return nil
}

func (h *EventHandler) RegisterEventHandlers(eventBus *events.EventBus) {
	eventBus.Subscribe(events.EventTypePaymentVerified, h.HandlePaymentVerified)
	eventBus.Subscribe(events.EventTypePremiumActivated, h.HandlePremiumActivated)
	eventBus.Subscribe(events.EventTypeIssueBoosted, h.HandleIssueBoosted)

	h.logger.Info("entitlement event handlers registered",
		"handlers", []string{
			events.EventTypePaymentVerified,
			events.EventTypePremiumActivated,
			events.EventTypeIssueBoosted,
		})
}
