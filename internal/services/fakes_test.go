package services

import (
	"context"
	"time"

	"Key2PayBridge/internal/key2pay"
	"Key2PayBridge/internal/models"
	"Key2PayBridge/internal/store"
)

type fakeStore struct {
	orders      map[string]*models.Order
	notes       map[string][]string
	paidCalls   int
	failedCalls int
}

func newFakeStore(orders ...*models.Order) *fakeStore {
	f := &fakeStore{orders: map[string]*models.Order{}, notes: map[string][]string{}}
	for _, o := range orders {
		f.orders[o.OrderID] = o
	}
	return f
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	f.orders[order.OrderID] = order
	return nil
}

func (f *fakeStore) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeStore) SetPaymentSession(ctx context.Context, orderID, trackID, transactionID string) error {
	order, ok := f.orders[orderID]
	if !ok || order.Status.Terminal() {
		return store.ErrNotFound
	}
	order.Status = models.OrderPending
	order.TrackID = &trackID
	if transactionID != "" {
		order.TransactionID = &transactionID
	}
	return nil
}

func (f *fakeStore) MarkPaid(ctx context.Context, orderID, transactionID string, paidAt time.Time) (bool, error) {
	f.paidCalls++
	order, ok := f.orders[orderID]
	if !ok || order.Status != models.OrderPending {
		return false, nil
	}
	order.Status = models.OrderProcessing
	if transactionID != "" {
		order.TransactionID = &transactionID
	}
	order.PaidAt = &paidAt
	return true, nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	f.failedCalls++
	order, ok := f.orders[orderID]
	if !ok || order.Status != models.OrderPending {
		return false, nil
	}
	order.Status = models.OrderFailed
	return true, nil
}

func (f *fakeStore) AddNote(ctx context.Context, orderID, note string) error {
	f.notes[orderID] = append(f.notes[orderID], note)
	return nil
}

type fakeSessionCreator struct {
	lastParams key2pay.SessionParams
	result     *key2pay.SessionResult
	err        error
}

func (f *fakeSessionCreator) CreateSession(ctx context.Context, p key2pay.SessionParams) (*key2pay.SessionResult, error) {
	f.lastParams = p
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakePublisher struct {
	events []string
}

func (f *fakePublisher) Publish(orderID string, status models.OrderStatus) {
	f.events = append(f.events, orderID+":"+string(status))
}

func pendingOrder(id string) *models.Order {
	track := id + "_1699999999"
	return &models.Order{
		OrderID:  id,
		Amount:   "49.99",
		Currency: "EGP",
		Status:   models.OrderPending,
		TrackID:  &track,
	}
}
