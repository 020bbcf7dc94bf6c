package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"Key2PayBridge/internal/key2pay"
	"Key2PayBridge/internal/models"

	"go.uber.org/zap/zaptest"
)

func newReconcile(t *testing.T, st *fakeStore) (*ReconcileService, *fakePublisher) {
	t.Helper()
	pub := &fakePublisher{}
	return &ReconcileService{Store: st, Events: pub, Log: zaptest.NewLogger(t)}, pub
}

func TestOrderIDFromTrackID(t *testing.T) {
	cases := []struct {
		in     string
		wantID string
		wantOK bool
	}{
		{"482_1699999999", "482", true},
		{"482_1699999999_retry", "482", true}, // split on the first separator
		{"482", "", false},
		{"_1699999999", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		id, ok := OrderIDFromTrackID(c.in)
		if id != c.wantID || ok != c.wantOK {
			t.Errorf("OrderIDFromTrackID(%q) = (%q, %v), want (%q, %v)", c.in, id, ok, c.wantID, c.wantOK)
		}
	}
}

func TestHandleNotificationApproved(t *testing.T) {
	st := newFakeStore(pendingOrder("o1"))
	svc, pub := newReconcile(t, st)

	outcome, err := svc.HandleNotification(context.Background(), models.Notification{
		TrackID:       "o1_1699999999",
		TransactionID: "T1",
		ResponseCode:  "0",
	}, models.SourceWebhook)
	if err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}
	if outcome != key2pay.OutcomeApproved {
		t.Errorf("outcome = %q", outcome)
	}
	if st.orders["o1"].Status != models.OrderProcessing {
		t.Errorf("status = %q, want processing", st.orders["o1"].Status)
	}
	if got := *st.orders["o1"].TransactionID; got != "T1" {
		t.Errorf("transaction id = %q", got)
	}
	notes := st.notes["o1"]
	if len(notes) != 1 || !strings.Contains(notes[0], "T1") || !strings.Contains(notes[0], "code 0") {
		t.Errorf("notes = %v", notes)
	}
	if len(pub.events) != 1 || pub.events[0] != "o1:processing" {
		t.Errorf("published events = %v", pub.events)
	}
}

func TestHandleNotificationIdempotent(t *testing.T) {
	st := newFakeStore(pendingOrder("o1"))
	svc, pub := newReconcile(t, st)

	n := models.Notification{TrackID: "o1_1699999999", TransactionID: "T1", ResponseCode: "0"}
	for i := 0; i < 3; i++ {
		if _, err := svc.HandleNotification(context.Background(), n, models.SourceWebhook); err != nil {
			t.Fatalf("notification %d failed: %v", i, err)
		}
	}

	if st.orders["o1"].Status != models.OrderProcessing {
		t.Errorf("status = %q", st.orders["o1"].Status)
	}
	if len(st.notes["o1"]) != 1 {
		t.Errorf("duplicate notifications produced %d notes, want 1", len(st.notes["o1"]))
	}
	if len(pub.events) != 1 {
		t.Errorf("duplicate notifications produced %d events, want 1", len(pub.events))
	}
}

func TestHandleNotificationFailure(t *testing.T) {
	st := newFakeStore(pendingOrder("o1"))
	svc, _ := newReconcile(t, st)

	outcome, err := svc.HandleNotification(context.Background(), models.Notification{
		TrackID:      "o1_1699999999",
		ResponseCode: "EGP51",
		ErrorText:    "balance too low",
	}, models.SourceWebhook)
	if err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}
	if outcome != key2pay.OutcomeInsufficientFunds {
		t.Errorf("outcome = %q", outcome)
	}
	if st.orders["o1"].Status != models.OrderFailed {
		t.Errorf("status = %q, want failed", st.orders["o1"].Status)
	}
	notes := st.notes["o1"]
	if len(notes) != 1 || !strings.Contains(notes[0], "Insufficient funds") || !strings.Contains(notes[0], "balance too low") {
		t.Errorf("notes = %v", notes)
	}
}

func TestHandleNotificationUnknownCodeApproves(t *testing.T) {
	st := newFakeStore(pendingOrder("o1"))
	svc, _ := newReconcile(t, st)

	outcome, err := svc.HandleNotification(context.Background(), models.Notification{
		TrackID:      "o1_1699999999",
		ResponseCode: "424242",
	}, models.SourceWebhook)
	if err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}
	if outcome != key2pay.OutcomeUnknownApproved {
		t.Errorf("outcome = %q", outcome)
	}
	if st.orders["o1"].Status != models.OrderProcessing {
		t.Errorf("status = %q, want processing", st.orders["o1"].Status)
	}
}

func TestHandleNotificationMalformedTrackID(t *testing.T) {
	st := newFakeStore(pendingOrder("o1"))
	svc, _ := newReconcile(t, st)

	_, err := svc.HandleNotification(context.Background(), models.Notification{
		TrackID:      "no-separator",
		ResponseCode: "0",
	}, models.SourceWebhook)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("want ErrOrderNotFound, got %v", err)
	}
	if st.orders["o1"].Status != models.OrderPending {
		t.Error("order must not be touched for a malformed trackid")
	}
}

func TestHandleNotificationUnknownOrder(t *testing.T) {
	svc, _ := newReconcile(t, newFakeStore())

	_, err := svc.HandleNotification(context.Background(), models.Notification{
		TrackID:      "ghost_1699999999",
		ResponseCode: "0",
	}, models.SourceWebhook)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("want ErrOrderNotFound, got %v", err)
	}
}

func TestFallbackGuardLeavesTerminalOrderAlone(t *testing.T) {
	order := pendingOrder("o1")
	order.Status = models.OrderProcessing
	txn := "T-original"
	order.TransactionID = &txn
	st := newFakeStore(order)
	svc, pub := newReconcile(t, st)

	_, err := svc.HandleNotification(context.Background(), models.Notification{
		TrackID:       "o1_1699999999",
		TransactionID: "T-stale",
		ResponseCode:  "51",
	}, models.SourceReturnURL)
	if err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}

	if st.orders["o1"].Status != models.OrderProcessing {
		t.Errorf("status changed to %q", st.orders["o1"].Status)
	}
	if *st.orders["o1"].TransactionID != "T-original" {
		t.Error("metadata overwritten by stale fallback notification")
	}
	if st.paidCalls != 0 || st.failedCalls != 0 {
		t.Error("fallback on a terminal order must not attempt a transition")
	}
	if len(st.notes["o1"]) != 0 || len(pub.events) != 0 {
		t.Error("fallback on a terminal order must produce no side effects")
	}
}

func TestFallbackProcessesPendingOrder(t *testing.T) {
	st := newFakeStore(pendingOrder("o1"))
	svc, _ := newReconcile(t, st)

	_, err := svc.HandleNotification(context.Background(), models.Notification{
		TrackID:      "o1_1699999999",
		Result:       "CAPTURED",
	}, models.SourceReturnURL)
	if err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}
	if st.orders["o1"].Status != models.OrderProcessing {
		t.Errorf("status = %q, want processing", st.orders["o1"].Status)
	}
}

func TestWebhookOnTerminalOrderIsAcceptedButInert(t *testing.T) {
	order := pendingOrder("o1")
	order.Status = models.OrderFailed
	st := newFakeStore(order)
	svc, _ := newReconcile(t, st)

	// Webhook retries for a decided order are acknowledged, not re-applied.
	_, err := svc.HandleNotification(context.Background(), models.Notification{
		TrackID:      "o1_1699999999",
		ResponseCode: "0",
	}, models.SourceWebhook)
	if err != nil {
		t.Fatalf("HandleNotification failed: %v", err)
	}
	if st.orders["o1"].Status != models.OrderFailed {
		t.Errorf("terminal status overwritten: %q", st.orders["o1"].Status)
	}
	if len(st.notes["o1"]) != 0 {
		t.Errorf("notes = %v", st.notes["o1"])
	}
}
