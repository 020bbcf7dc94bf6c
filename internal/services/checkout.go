package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"Key2PayBridge/internal/key2pay"
	"Key2PayBridge/internal/models"
	"Key2PayBridge/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderFinalized = errors.New("order already finalized")
	ErrInvalidAmount  = errors.New("amount must be a positive decimal")
	ErrInvalidCurrency = errors.New("currency must be a 3-letter code")
)

// OrderStore is the slice of the persistence layer the payment flow needs.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	SetPaymentSession(ctx context.Context, orderID, trackID, transactionID string) error
	MarkPaid(ctx context.Context, orderID, transactionID string, paidAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, orderID string) (bool, error)
	AddNote(ctx context.Context, orderID, note string) error
}

// SessionCreator opens a hosted-redirect payment session with the processor.
type SessionCreator interface {
	CreateSession(ctx context.Context, p key2pay.SessionParams) (*key2pay.SessionResult, error)
}

type CheckoutConfig struct {
	PublicBaseURL   string
	StoreName       string
	BillingDefaults models.Billing
}

type CheckoutService struct {
	Store   OrderStore
	Client  SessionCreator
	Config  CheckoutConfig
	Log     *zap.Logger
}

type CreateOrderInput struct {
	Amount   string
	Currency string
	Billing  models.Billing
}

func (s *CheckoutService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	amount, err := strconv.ParseFloat(in.Amount, 64)
	if err != nil || amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(in.Currency) != 3 {
		return nil, ErrInvalidCurrency
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderID:   uuid.NewString(),
		Amount:    in.Amount,
		Currency:  strings.ToUpper(in.Currency),
		Billing:   in.Billing,
		Status:    models.OrderCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *CheckoutService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// InitiatePayment opens a payment session for the order and returns the
// hosted page URL to redirect the shopper to. The correlation token embeds
// the order id plus a timestamp, so a resubmitted checkout mints a fresh
// token for the same order.
func (s *CheckoutService) InitiatePayment(ctx context.Context, orderID string) (string, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if order.Status.Terminal() {
		return "", ErrOrderFinalized
	}

	amount, err := strconv.ParseFloat(order.Amount, 64)
	if err != nil {
		return "", fmt.Errorf("stored amount %q is not a decimal: %w", order.Amount, err)
	}

	trackID := fmt.Sprintf("%s_%d", order.OrderID, time.Now().Unix())
	base := strings.TrimRight(s.Config.PublicBaseURL, "/")

	result, err := s.Client.CreateSession(ctx, key2pay.SessionParams{
		TrackID:     trackID,
		Amount:      amount,
		Currency:    order.Currency,
		ReturnURL:   base + "/payments/return",
		FailureURL:  base + "/payments/orders/" + order.OrderID,
		ServerURL:   base + "/payments/webhook/key2pay",
		ProductDesc: fmt.Sprintf("Order %s from %s", order.OrderID, s.Config.StoreName),
		Billing:     s.fillBillingDefaults(order.Billing),
	})
	if err != nil {
		s.Log.Error("payment session creation failed",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
		return "", err
	}

	if err := s.Store.SetPaymentSession(ctx, order.OrderID, trackID, result.TransactionID); err != nil {
		return "", err
	}
	if err := s.Store.AddNote(ctx, order.OrderID, "Awaiting Key2Pay payment confirmation."); err != nil {
		s.Log.Warn("order note write failed", zap.String("order_id", order.OrderID), zap.Error(err))
	}

	s.Log.Info("payment session created",
		zap.String("order_id", order.OrderID),
		zap.String("trackid", trackID))
	return result.RedirectURL, nil
}

func (s *CheckoutService) fillBillingDefaults(b models.Billing) models.Billing {
	d := s.Config.BillingDefaults
	if b.Phone == "" {
		b.Phone = d.Phone
	}
	if b.Country == "" {
		b.Country = d.Country
	}
	if b.City == "" {
		b.City = d.City
	}
	if b.State == "" {
		b.State = d.State
	}
	if b.Address == "" {
		b.Address = d.Address
	}
	return b
}
