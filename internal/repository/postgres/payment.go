package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/muhsiltomsher-cloud/asl-storefront/internal/domain"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/database"
	apperrors "github.com/muhsiltomsher-cloud/asl-storefront/pkg/errors"
)

// PaymentAttemptRepository implements repository.PaymentAttemptRepository using PostgreSQL.
type PaymentAttemptRepository struct {
	db  database.DBTX
	now func() time.Time
}

// NewPaymentAttemptRepository creates a new PostgreSQL-backed payment attempt repository.
func NewPaymentAttemptRepository(db database.DBTX) *PaymentAttemptRepository {
	return &PaymentAttemptRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts a payment attempt.
func (r *PaymentAttemptRepository) Create(ctx context.Context, a *domain.PaymentAttempt) (err error) {
	query := `
		INSERT INTO payment_attempts (id, order_id, order_key, cart_key, gateway, payment_method, amount, currency, status, provider_ref, redirect_url, failure_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	ctx, end := database.TraceQuery(ctx, "CreatePaymentAttempt", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query,
		a.ID,
		a.OrderID,
		a.OrderKey,
		a.CartKey,
		string(a.Gateway),
		a.PaymentMethod,
		a.Amount,
		a.Currency,
		a.Status,
		a.ProviderRef,
		a.RedirectURL,
		a.FailureReason,
		a.CreatedAt,
		a.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

// UpdateStatus sets the status and failure reason of an attempt.
func (r *PaymentAttemptRepository) UpdateStatus(ctx context.Context, id, status, failureReason string) (err error) {
	query := `UPDATE payment_attempts SET status = $1, failure_reason = $2, updated_at = $3 WHERE id = $4`

	ctx, end := database.TraceQuery(ctx, "UpdatePaymentAttemptStatus", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, status, failureReason, r.now(), id)
	if err != nil {
		return fmt.Errorf("update payment attempt: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("payment attempt", id)
	}
	return nil
}

// LatestForOrder returns the most recent attempt for an order.
func (r *PaymentAttemptRepository) LatestForOrder(ctx context.Context, orderID int) (a *domain.PaymentAttempt, err error) {
	query := `
		SELECT id, order_id, order_key, cart_key, gateway, payment_method, amount, currency, status, provider_ref, redirect_url, failure_reason, created_at, updated_at
		FROM payment_attempts
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	ctx, end := database.TraceQuery(ctx, "LatestPaymentAttempt", query)
	defer func() { end(err) }()

	var (
		out     domain.PaymentAttempt
		gateway string
	)
	err = r.db.QueryRow(ctx, query, orderID).Scan(
		&out.ID,
		&out.OrderID,
		&out.OrderKey,
		&out.CartKey,
		&gateway,
		&out.PaymentMethod,
		&out.Amount,
		&out.Currency,
		&out.Status,
		&out.ProviderRef,
		&out.RedirectURL,
		&out.FailureReason,
		&out.CreatedAt,
		&out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment attempt for order", strconv.Itoa(orderID))
		}
		return nil, fmt.Errorf("get latest payment attempt: %w", err)
	}
	out.Gateway = domain.Gateway(gateway)
	return &out, nil
}
