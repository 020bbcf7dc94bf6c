package models

import "time"

type OrderStatus string

const (
	OrderCreated    OrderStatus = "created"
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderFailed     OrderStatus = "failed"
)

// Terminal reports whether a status may no longer be changed by a
// payment notification.
func (s OrderStatus) Terminal() bool {
	return s == OrderProcessing || s == OrderFailed
}

// Billing is the snapshot of shopper data sent with a payment session.
// Every field is optional; placeholders are substituted at request build.
type Billing struct {
	Email      string
	Phone      string
	Country    string
	City       string
	State      string
	Address    string
	Zip        string
	CustomerIP string
}

type Order struct {
	OrderID       string
	Amount        string
	Currency      string
	Billing       Billing
	Status        OrderStatus
	TrackID       *string
	TransactionID *string
	PaidAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type NotificationSource string

const (
	SourceWebhook   NotificationSource = "webhook"
	SourceReturnURL NotificationSource = "return_url"
)

// Notification is the normalized form of a processor callback, whether it
// arrived as a webhook body or as return-URL query parameters.
type Notification struct {
	TrackID       string
	TransactionID string
	Result        string // legacy word status, e.g. CAPTURED
	ResponseCode  string // numeric or currency-prefixed code
	ErrorText     string
}

type OrderNote struct {
	OrderID   string
	Note      string
	CreatedAt time.Time
}
