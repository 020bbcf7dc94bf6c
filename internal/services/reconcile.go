package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"Key2PayBridge/internal/key2pay"
	"Key2PayBridge/internal/models"
	"Key2PayBridge/internal/store"

	"go.uber.org/zap"
)

// StatusPublisher receives order status transitions as they are applied.
type StatusPublisher interface {
	Publish(orderID string, status models.OrderStatus)
}

// ReconcileService applies processor notifications to the order lifecycle.
// Both ingress paths (webhook and return-URL fallback) converge here.
type ReconcileService struct {
	Store  OrderStore
	Events StatusPublisher
	Log    *zap.Logger
}

// OrderIDFromTrackID resolves the order id from a correlation token of the
// form {order_id}_{unix_timestamp}. Tokens without the separator do not
// resolve.
func OrderIDFromTrackID(trackID string) (string, bool) {
	id, _, found := strings.Cut(trackID, "_")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

// HandleNotification classifies the notification and applies the result to
// the order. Terminal orders are left untouched regardless of what arrives;
// the conditional status update in the store is the only guard, and it is
// sufficient because both paths go through it.
func (s *ReconcileService) HandleNotification(ctx context.Context, n models.Notification, source models.NotificationSource) (key2pay.Outcome, error) {
	orderID, ok := OrderIDFromTrackID(n.TrackID)
	if !ok {
		s.Log.Warn("notification with malformed trackid",
			zap.String("trackid", n.TrackID),
			zap.String("source", string(source)))
		return "", ErrOrderNotFound
	}

	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Log.Warn("notification for unknown order",
				zap.String("order_id", orderID),
				zap.String("source", string(source)))
			return "", ErrOrderNotFound
		}
		return "", err
	}

	outcome, code := key2pay.ClassifyNotification(n)
	observeNotification(outcome, source)

	if outcome == key2pay.OutcomeUnknownApproved {
		s.Log.Warn("undocumented response code treated as approved",
			zap.String("order_id", orderID),
			zap.String("code", code))
	}

	// The fallback path only ever acts on a still-pending order; a decision
	// the webhook already made must not be revisited.
	if source == models.SourceReturnURL && order.Status != models.OrderPending {
		s.Log.Debug("fallback notification ignored, order not pending",
			zap.String("order_id", orderID),
			zap.String("status", string(order.Status)))
		return outcome, nil
	}

	if outcome.Approved() {
		return outcome, s.applyApproved(ctx, orderID, n, code)
	}
	return outcome, s.applyFailed(ctx, orderID, n, outcome, code)
}

func (s *ReconcileService) applyApproved(ctx context.Context, orderID string, n models.Notification, code string) error {
	updated, err := s.Store.MarkPaid(ctx, orderID, n.TransactionID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !updated {
		// Duplicate or late notification; the first decision stands.
		s.Log.Debug("approved notification for already finalized order",
			zap.String("order_id", orderID))
		return nil
	}

	note := fmt.Sprintf("Key2Pay payment completed. Transaction ID: %s (code %s).", n.TransactionID, code)
	if err := s.Store.AddNote(ctx, orderID, note); err != nil {
		s.Log.Warn("order note write failed", zap.String("order_id", orderID), zap.Error(err))
	}
	s.publish(orderID, models.OrderProcessing)
	s.Log.Info("order marked paid",
		zap.String("order_id", orderID),
		zap.String("transaction_id", n.TransactionID),
		zap.String("code", code))
	return nil
}

func (s *ReconcileService) applyFailed(ctx context.Context, orderID string, n models.Notification, outcome key2pay.Outcome, code string) error {
	updated, err := s.Store.MarkFailed(ctx, orderID)
	if err != nil {
		return err
	}
	if !updated {
		s.Log.Debug("failure notification for already finalized order",
			zap.String("order_id", orderID))
		return nil
	}

	note := fmt.Sprintf("Key2Pay payment failed: %s (code %s).", outcome.Description(), code)
	if n.ErrorText != "" {
		note += " " + n.ErrorText
	}
	if err := s.Store.AddNote(ctx, orderID, note); err != nil {
		s.Log.Warn("order note write failed", zap.String("order_id", orderID), zap.Error(err))
	}
	s.publish(orderID, models.OrderFailed)
	s.Log.Info("order marked failed",
		zap.String("order_id", orderID),
		zap.String("outcome", string(outcome)),
		zap.String("code", code))
	return nil
}

func (s *ReconcileService) publish(orderID string, status models.OrderStatus) {
	if s.Events != nil {
		s.Events.Publish(orderID, status)
	}
}
