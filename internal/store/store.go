package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"Key2PayBridge/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, amount, currency, status,
			bill_email, bill_phone, bill_country, bill_city,
			bill_state, bill_address, bill_zip, bill_customer_ip
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		order.OrderID,
		order.Amount,
		order.Currency,
		order.Status,
		order.Billing.Email,
		order.Billing.Phone,
		order.Billing.Country,
		order.Billing.City,
		order.Billing.State,
		order.Billing.Address,
		order.Billing.Zip,
		order.Billing.CustomerIP,
	)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT order_id, amount, currency, status,
			bill_email, bill_phone, bill_country, bill_city,
			bill_state, bill_address, bill_zip, bill_customer_ip,
			track_id, transaction_id, paid_at, created_at, updated_at
		FROM orders WHERE order_id=$1
	`, orderID)

	var order models.Order
	var trackID, transactionID sql.NullString
	var paidAt sql.NullTime

	err := row.Scan(
		&order.OrderID,
		&order.Amount,
		&order.Currency,
		&order.Status,
		&order.Billing.Email,
		&order.Billing.Phone,
		&order.Billing.Country,
		&order.Billing.City,
		&order.Billing.State,
		&order.Billing.Address,
		&order.Billing.Zip,
		&order.Billing.CustomerIP,
		&trackID,
		&transactionID,
		&paidAt,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if trackID.Valid {
		order.TrackID = &trackID.String
	}
	if transactionID.Valid {
		order.TransactionID = &transactionID.String
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	return &order, nil
}

// SetPaymentSession records the correlation token and transaction id handed
// back by the processor and moves the order to pending. Re-initiating a
// checkout for a still-unpaid order overwrites the previous session.
func (s *Store) SetPaymentSession(ctx context.Context, orderID, trackID, transactionID string) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status='pending', track_id=$2, transaction_id=NULLIF($3,''), updated_at=now()
		WHERE order_id=$1 AND status IN ('created','pending')
	`, orderID, trackID, transactionID)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaid transitions pending -> processing. The status predicate makes the
// transition a compare-and-swap: a zero rows-affected result means some
// earlier notification already finalized the order.
func (s *Store) MarkPaid(ctx context.Context, orderID, transactionID string, paidAt time.Time) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status='processing', transaction_id=COALESCE(NULLIF($2,''), transaction_id),
			paid_at=$3, updated_at=now()
		WHERE order_id=$1 AND status='pending'
	`, orderID, transactionID, paidAt)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// MarkFailed transitions pending -> failed under the same predicate.
func (s *Store) MarkFailed(ctx context.Context, orderID string) (bool, error) {
	res, err := s.Pool.Exec(ctx, `
		UPDATE orders
		SET status='failed', updated_at=now()
		WHERE order_id=$1 AND status='pending'
	`, orderID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

func (s *Store) AddNote(ctx context.Context, orderID, note string) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO order_notes (order_id, note) VALUES ($1,$2)
	`, orderID, note)
	return err
}

func (s *Store) ListNotes(ctx context.Context, orderID string) ([]models.OrderNote, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT order_id, note, created_at
		FROM order_notes WHERE order_id=$1 ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.OrderNote
	for rows.Next() {
		var n models.OrderNote
		if err := rows.Scan(&n.OrderID, &n.Note, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
