package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dishpatch/api/internal/enum"
)

const paymentColumns = `id, order_id, payment_method, amount, processor_intent_id,
status, refund_amount, refund_reason, created_at, updated_at`

func scanPayment(row interface{ Scan(dest ...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.OrderID, &p.PaymentMethod, &p.Amount, &p.ProcessorIntentID,
		&p.Status, &p.RefundAmount, &p.RefundReason, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const createPayment = `
INSERT INTO payments (order_id, payment_method, amount, processor_intent_id, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	OrderID           uuid.UUID
	PaymentMethod     enum.PaymentMethod
	Amount            pgtype.Numeric
	ProcessorIntentID pgtype.Text
	Status            enum.PaymentStatus
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, createPayment, arg.OrderID, arg.PaymentMethod, arg.Amount,
		arg.ProcessorIntentID, arg.Status)
	return scanPayment(row)
}

const listPaymentsByOrder = `
SELECT ` + paymentColumns + `
FROM payments
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPaymentsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const getCompletedPaymentByOrder = `
SELECT ` + paymentColumns + `
FROM payments
WHERE order_id = $1 AND status = 'completed'
LIMIT 1
`

func (q *Queries) GetCompletedPaymentByOrder(ctx context.Context, orderID uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getCompletedPaymentByOrder, orderID))
}

const getPaymentByIntentID = `
SELECT ` + paymentColumns + `
FROM payments
WHERE processor_intent_id = $1
`

func (q *Queries) GetPaymentByIntentID(ctx context.Context, intentID string) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByIntentID, intentID))
}

const updatePaymentForIntent = `
UPDATE payments
SET amount = $2, processor_intent_id = $3, status = $4, updated_at = now()
WHERE id = $1
RETURNING ` + paymentColumns

type UpdatePaymentForIntentParams struct {
	ID                uuid.UUID
	Amount            pgtype.Numeric
	ProcessorIntentID pgtype.Text
	Status            enum.PaymentStatus
}

func (q *Queries) UpdatePaymentForIntent(ctx context.Context, arg UpdatePaymentForIntentParams) (Payment, error) {
	row := q.db.QueryRow(ctx, updatePaymentForIntent, arg.ID, arg.Amount, arg.ProcessorIntentID, arg.Status)
	return scanPayment(row)
}

const updatePaymentStatus = `
UPDATE payments
SET status = $2, updated_at = now()
WHERE id = $1
RETURNING ` + paymentColumns

type UpdatePaymentStatusParams struct {
	ID     uuid.UUID
	Status enum.PaymentStatus
}

func (q *Queries) UpdatePaymentStatus(ctx context.Context, arg UpdatePaymentStatusParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, updatePaymentStatus, arg.ID, arg.Status))
}

const setPaymentRefund = `
UPDATE payments
SET status = $2, refund_amount = $3, refund_reason = $4, updated_at = now()
WHERE id = $1
RETURNING ` + paymentColumns

type SetPaymentRefundParams struct {
	ID           uuid.UUID
	Status       enum.PaymentStatus
	RefundAmount pgtype.Numeric
	RefundReason pgtype.Text
}

func (q *Queries) SetPaymentRefund(ctx context.Context, arg SetPaymentRefundParams) (Payment, error) {
	row := q.db.QueryRow(ctx, setPaymentRefund, arg.ID, arg.Status, arg.RefundAmount, arg.RefundReason)
	return scanPayment(row)
}

const listPayments = `
SELECT ` + paymentColumns + `
FROM payments
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR payment_method = $2)
ORDER BY created_at DESC
LIMIT $3 OFFSET $4
`

type ListPaymentsParams struct {
	Status        pgtype.Text
	PaymentMethod pgtype.Text
	Limit         int32
	Offset        int32
}

func (q *Queries) ListPayments(ctx context.Context, arg ListPaymentsParams) ([]Payment, error) {
	rows, err := q.db.Query(ctx, listPayments, arg.Status, arg.PaymentMethod, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

const countPayments = `
SELECT count(*)
FROM payments
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR payment_method = $2)
`

type CountPaymentsParams struct {
	Status        pgtype.Text
	PaymentMethod pgtype.Text
}

func (q *Queries) CountPayments(ctx context.Context, arg CountPaymentsParams) (int64, error) {
	row := q.db.QueryRow(ctx, countPayments, arg.Status, arg.PaymentMethod)
	var n int64
	err := row.Scan(&n)
	return n, err
}
