package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dishpatch/api/internal/database"
	"github.com/dishpatch/api/internal/enum"
	"github.com/dishpatch/api/internal/processor"
)

// Errors returned by the payment service.
var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrAlreadyPaid          = errors.New("order already has a completed payment")
	ErrOrderNotPayable      = errors.New("order is not in a payable status")
	ErrPaymentNotRefundable = errors.New("no completed payment to refund")
	ErrInvalidRefundAmount  = errors.New("invalid refund amount")
	ErrPaymentDeclined      = errors.New("payment was declined")
)

// ProcessorError wraps a failure talking to the payment processor so the
// handler can map it to 502 instead of 500.
type ProcessorError struct {
	Err error
}

func (e *ProcessorError) Error() string { return "payment processor: " + e.Err.Error() }
func (e *ProcessorError) Unwrap() error { return e.Err }

// PaymentStore defines the DB methods the payment service needs.
// Satisfied by *database.Queries (and its WithTx variant).
type PaymentStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetCompletedPaymentByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	GetPaymentByIntentID(ctx context.Context, intentID string) (database.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.Payment, error)
	UpdatePaymentForIntent(ctx context.Context, arg database.UpdatePaymentForIntentParams) (database.Payment, error)
	UpdatePaymentStatus(ctx context.Context, arg database.UpdatePaymentStatusParams) (database.Payment, error)
	SetPaymentRefund(ctx context.Context, arg database.SetPaymentRefundParams) (database.Payment, error)
	ListPayments(ctx context.Context, arg database.ListPaymentsParams) ([]database.Payment, error)
	CountPayments(ctx context.Context, arg database.CountPaymentsParams) (int64, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// CreateIntentRequest starts an online payment for an order.
type CreateIntentRequest struct {
	OrderID         uuid.UUID
	PaymentMethodID string
}

// IntentResult is what the client needs to finish an online payment.
type IntentResult struct {
	Payment      database.Payment
	IntentStatus string
	ClientSecret string
}

// RefundRequest refunds a completed payment, fully or partially.
type RefundRequest struct {
	OrderID uuid.UUID
	Amount  string
	Reason  string
}

// ListPaymentsRequest carries the optional admin list filters.
type ListPaymentsRequest struct {
	Status string
	Method string
	Page   int32
	Limit  int32
}

// PaymentService coordinates order state, payment records, and the external
// processor.
type PaymentService struct {
	store     PaymentStore
	pool      TxBeginner
	newStore  NewPaymentStore
	processor processor.Client
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(store PaymentStore, pool TxBeginner, newStore NewPaymentStore, proc processor.Client) *PaymentService {
	return &PaymentService{store: store, pool: pool, newStore: newStore, processor: proc}
}

// CreateIntent charges the order total through the processor and records the
// outcome. The order row is locked for the whole transaction so two
// concurrent attempts against the same order serialize, and the
// completed-payment check inside the lock guarantees at most one completed
// payment per order.
func (s *PaymentService) CreateIntent(ctx context.Context, actor Actor, req CreateIntentRequest) (*IntentResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !CanAccessOrder(actor, order) {
		return nil, ErrForbidden
	}
	if order.Status != enum.OrderStatusPending && order.Status != enum.OrderStatusApproved {
		return nil, ErrOrderNotPayable
	}

	if _, err := store.GetCompletedPaymentByOrder(ctx, req.OrderID); err == nil {
		return nil, ErrAlreadyPaid
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("check completed payment: %w", err)
	}

	amount := numericToDecimal(order.TotalPrice)
	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:       req.OrderID,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.TotalPrice,
		Status:        enum.PaymentStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	intent, err := s.processor.CreateIntent(ctx, toMinorUnits(amount), "usd", req.PaymentMethodID, map[string]string{
		"order_id": req.OrderID.String(),
	})
	if err != nil {
		// Roll back the lock and pending row, then record the failed
		// attempt on its own so the order is untouched.
		_ = tx.Rollback(ctx)
		if _, rerr := s.store.CreatePayment(ctx, database.CreatePaymentParams{
			OrderID:       req.OrderID,
			PaymentMethod: order.PaymentMethod,
			Amount:        order.TotalPrice,
			Status:        enum.PaymentStatusFailed,
		}); rerr != nil {
			log.Printf("ERROR: record failed payment for order %s: %v", req.OrderID, rerr)
		}
		return nil, &ProcessorError{Err: err}
	}

	status := enum.PaymentStatusFailed
	switch intent.Status {
	case processor.IntentStatusSucceeded:
		status = enum.PaymentStatusCompleted
	case processor.IntentStatusRequiresAction:
		status = enum.PaymentStatusPending
	}

	payment, err = store.UpdatePaymentForIntent(ctx, database.UpdatePaymentForIntentParams{
		ID:                payment.ID,
		Amount:            order.TotalPrice,
		ProcessorIntentID: pgtype.Text{String: intent.ID, Valid: true},
		Status:            status,
	})
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}

	// A successful charge approves a pending order, in the same transaction
	// as the payment record.
	if status == enum.PaymentStatusCompleted && order.Status == enum.OrderStatusPending {
		if _, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
			ID:         order.ID,
			Status:     enum.OrderStatusApproved,
			FromStatus: enum.OrderStatusPending,
		}); err != nil {
			return nil, fmt.Errorf("approve order: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if status == enum.PaymentStatusFailed {
		return &IntentResult{Payment: payment, IntentStatus: intent.Status}, ErrPaymentDeclined
	}
	return &IntentResult{
		Payment:      payment,
		IntentStatus: intent.Status,
		ClientSecret: intent.ClientSecret,
	}, nil
}

// ConfirmIntent re-checks an intent with the processor and settles the local
// payment record. Safe to call repeatedly: a payment that is already
// completed is returned as is.
func (s *PaymentService) ConfirmIntent(ctx context.Context, actor Actor, intentID string) (*database.Payment, error) {
	payment, err := s.store.GetPaymentByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}

	order, err := s.store.GetOrder(ctx, payment.OrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !CanAccessOrder(actor, order) {
		return nil, ErrForbidden
	}

	if payment.Status == enum.PaymentStatusCompleted || payment.Status == enum.PaymentStatusRefunded {
		return &payment, nil
	}

	intent, err := s.processor.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, &ProcessorError{Err: err}
	}

	switch intent.Status {
	case processor.IntentStatusSucceeded:
		updated, err := s.store.UpdatePaymentStatus(ctx, database.UpdatePaymentStatusParams{
			ID:     payment.ID,
			Status: enum.PaymentStatusCompleted,
		})
		if err != nil {
			return nil, fmt.Errorf("update payment: %w", err)
		}
		// Settling the payment approves a pending order. The update is
		// conditional, so a concurrent transition just means nothing to do.
		if order.Status == enum.OrderStatusPending {
			if _, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
				ID:         order.ID,
				Status:     enum.OrderStatusApproved,
				FromStatus: enum.OrderStatusPending,
			}); err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("approve order: %w", err)
			}
		}
		return &updated, nil
	case processor.IntentStatusRequiresAction:
		// Still waiting on the customer, nothing to settle yet.
		return &payment, nil
	default:
		updated, err := s.store.UpdatePaymentStatus(ctx, database.UpdatePaymentStatusParams{
			ID:     payment.ID,
			Status: enum.PaymentStatusFailed,
		})
		if err != nil {
			return nil, fmt.Errorf("update payment: %w", err)
		}
		return &updated, ErrPaymentDeclined
	}
}

// Refund refunds the order's completed payment. The refunded amount is
// capped at what was actually paid. A full refund marks the payment refunded
// and cancels the order; a partial refund only records the refunded amount.
func (s *PaymentService) Refund(ctx context.Context, actor Actor, req RefundRequest) (*database.Payment, error) {
	order, err := s.store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !CanAccessOrder(actor, order) {
		return nil, ErrForbidden
	}

	payment, err := s.store.GetCompletedPaymentByOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotRefundable
		}
		return nil, fmt.Errorf("get completed payment: %w", err)
	}

	paid := numericToDecimal(payment.Amount)
	amount := paid
	if req.Amount != "" {
		requested, err := decimal.NewFromString(req.Amount)
		if err != nil || requested.LessThanOrEqual(decimal.Zero) {
			return nil, ErrInvalidRefundAmount
		}
		if requested.LessThan(paid) {
			amount = requested
		}
	}

	// Card and online payments go back through the processor; cash and
	// wallet refunds are recorded locally only.
	if payment.ProcessorIntentID.Valid {
		if _, err := s.processor.CreateRefund(ctx, payment.ProcessorIntentID.String, toMinorUnits(amount), req.Reason); err != nil {
			return nil, &ProcessorError{Err: err}
		}
	}

	full := amount.Equal(paid)
	status := payment.Status
	if full {
		status = enum.PaymentStatusRefunded
	}

	reason := pgtype.Text{}
	if req.Reason != "" {
		reason = pgtype.Text{String: req.Reason, Valid: true}
	}
	updated, err := s.store.SetPaymentRefund(ctx, database.SetPaymentRefundParams{
		ID:           payment.ID,
		Status:       status,
		RefundAmount: decimalToNumeric(amount),
		RefundReason: reason,
	})
	if err != nil {
		return nil, fmt.Errorf("set payment refund: %w", err)
	}

	if full && !order.Status.Terminal() {
		if _, err := s.store.CancelOrder(ctx, req.OrderID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			log.Printf("ERROR: cancel order %s after full refund: %v", req.OrderID, err)
		}
	}

	return &updated, nil
}

// GetByOrder returns all payment attempts for an order the actor may see.
func (s *PaymentService) GetByOrder(ctx context.Context, actor Actor, orderID uuid.UUID) ([]database.Payment, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !CanAccessOrder(actor, order) {
		return nil, ErrForbidden
	}
	payments, err := s.store.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// List returns a filtered page of all payments, for admins.
func (s *PaymentService) List(ctx context.Context, req ListPaymentsRequest) ([]database.Payment, int64, error) {
	status := pgtype.Text{}
	if req.Status != "" {
		if !enum.PaymentStatus(req.Status).Valid() {
			return nil, 0, ErrInvalidStatusFilter
		}
		status = pgtype.Text{String: req.Status, Valid: true}
	}
	method := pgtype.Text{}
	if req.Method != "" {
		if !enum.PaymentMethod(req.Method).Valid() {
			return nil, 0, ErrInvalidPaymentMethod
		}
		method = pgtype.Text{String: req.Method, Valid: true}
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 10
	} else if limit > maxPageLimit {
		limit = maxPageLimit
	}

	payments, err := s.store.ListPayments(ctx, database.ListPaymentsParams{
		Status:        status,
		PaymentMethod: method,
		Limit:         limit,
		Offset:        (page - 1) * limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	total, err := s.store.CountPayments(ctx, database.CountPaymentsParams{
		Status:        status,
		PaymentMethod: method,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// toMinorUnits converts a decimal money amount to integer cents for the
// processor API.
func toMinorUnits(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
