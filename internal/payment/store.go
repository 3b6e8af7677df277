package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/UnifiedPaymentSolutions/applepay-bridge/internal/common/database"
)

// Attempt is an audit record of one payment orchestration. It is write-only
// from the orchestrator's point of view; nothing in the payment flow ever
// reads it back.
type Attempt struct {
	ID               string    `json:"id"`
	Mode             string    `json:"mode"`
	AccountName      string    `json:"account_name,omitempty"`
	PaymentReference string    `json:"payment_reference,omitempty"`
	OrderReference   string    `json:"order_reference,omitempty"`
	Amount           float64   `json:"amount"`
	Currency         string    `json:"currency,omitempty"`
	State            string    `json:"state,omitempty"`
	Outcome          string    `json:"outcome"`
	ErrorCode        string    `json:"error_code,omitempty"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      time.Time `json:"completed_at"`
}

// AttemptStore persists payment attempt audit records.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt *Attempt) error
	GetByReference(ctx context.Context, paymentReference string) (*Attempt, error)
}

// PostgresStore implements AttemptStore using PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// RecordAttempt inserts an attempt record, minting an ID when missing.
func (s *PostgresStore) RecordAttempt(ctx context.Context, attempt *Attempt) error {
	if attempt.ID == "" {
		attempt.ID = ulid.Make().String()
	}

	query := `
		INSERT INTO payment_attempts (
			id, mode, account_name, payment_reference, order_reference,
			amount, currency, state, outcome, error_code, error_message,
			started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := s.pool.Exec(ctx, query,
		attempt.ID, attempt.Mode, nullStr(attempt.AccountName),
		nullStr(attempt.PaymentReference), nullStr(attempt.OrderReference),
		attempt.Amount, nullStr(attempt.Currency), nullStr(attempt.State),
		attempt.Outcome, nullStr(attempt.ErrorCode), nullStr(attempt.ErrorMessage),
		attempt.StartedAt, attempt.CompletedAt,
	)
	return err
}

// GetByReference retrieves the most recent attempt for a payment reference.
func (s *PostgresStore) GetByReference(ctx context.Context, paymentReference string) (*Attempt, error) {
	query := `
		SELECT id, mode, account_name, payment_reference, order_reference,
			   amount, currency, state, outcome, error_code, error_message,
			   started_at, completed_at
		FROM payment_attempts
		WHERE payment_reference = $1
		ORDER BY completed_at DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, paymentReference)

	var a Attempt
	var accountName, payRef, orderRef, currency, state, errorCode, errorMsg *string

	err := row.Scan(
		&a.ID, &a.Mode, &accountName, &payRef, &orderRef,
		&a.Amount, &currency, &state, &a.Outcome, &errorCode, &errorMsg,
		&a.StartedAt, &a.CompletedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("attempt not found %s: %w", paymentReference, database.ErrNotFound)
		}
		return nil, err
	}

	if accountName != nil {
		a.AccountName = *accountName
	}
	if payRef != nil {
		a.PaymentReference = *payRef
	}
	if orderRef != nil {
		a.OrderReference = *orderRef
	}
	if currency != nil {
		a.Currency = *currency
	}
	if state != nil {
		a.State = *state
	}
	if errorCode != nil {
		a.ErrorCode = *errorCode
	}
	if errorMsg != nil {
		a.ErrorMessage = *errorMsg
	}

	return &a, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
