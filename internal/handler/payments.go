package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dishpatch/api/internal/database"
	"github.com/dishpatch/api/internal/service"
	"github.com/dishpatch/api/internal/ws"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService; narrow interface for testability.
type PaymentServicer interface {
	CreateIntent(ctx context.Context, actor service.Actor, req service.CreateIntentRequest) (*service.IntentResult, error)
	ConfirmIntent(ctx context.Context, actor service.Actor, intentID string) (*database.Payment, error)
	Refund(ctx context.Context, actor service.Actor, req service.RefundRequest) (*database.Payment, error)
	GetByOrder(ctx context.Context, actor service.Actor, orderID uuid.UUID) ([]database.Payment, error)
	List(ctx context.Context, req service.ListPaymentsRequest) ([]database.Payment, int64, error)
}

// PaymentOrderStore resolves the order behind a payment so events can be
// routed to the right restaurant room.
type PaymentOrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc      PaymentServicer
	store    PaymentOrderStore
	notifier Notifier
	dev      bool
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer, store PaymentOrderStore, notifier Notifier, dev bool) *PaymentHandler {
	return &PaymentHandler{svc: svc, store: store, notifier: notifier, dev: dev}
}

// --- Request / Response types ---

type createIntentRequest struct {
	OrderID         string `json:"order_id"`
	PaymentMethodID string `json:"payment_method_id"`
}

type confirmIntentRequest struct {
	IntentID string `json:"intent_id"`
}

type refundRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

// envelope is the payment API response shape.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type intentResponse struct {
	Payment      paymentResponse `json:"payment"`
	IntentStatus string          `json:"intent_status"`
	ClientSecret string          `json:"client_secret,omitempty"`
}

type paymentResponse struct {
	ID                uuid.UUID `json:"id"`
	OrderID           uuid.UUID `json:"order_id"`
	PaymentMethod     string    `json:"payment_method"`
	Amount            string    `json:"amount"`
	ProcessorIntentID *string   `json:"processor_intent_id"`
	Status            string    `json:"status"`
	RefundAmount      *string   `json:"refund_amount"`
	RefundReason      *string   `json:"refund_reason"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// --- Handlers ---

// CreateIntent handles POST /payments/create-intent.
func (h *PaymentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req createIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "invalid request body", nil)
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "invalid order_id", nil)
		return
	}

	result, err := h.svc.CreateIntent(r.Context(), actor, service.CreateIntentRequest{
		OrderID:         orderID,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil && !errors.Is(err, service.ErrPaymentDeclined) {
		h.respondPaymentError(w, "create intent", err)
		return
	}

	h.broadcastPayment(r.Context(), result.Payment)

	if errors.Is(err, service.ErrPaymentDeclined) {
		writeEnvelope(w, http.StatusPaymentRequired, false, "payment was declined", intentResponse{
			Payment:      toPaymentResponse(result.Payment),
			IntentStatus: result.IntentStatus,
		})
		return
	}
	writeEnvelope(w, http.StatusCreated, true, "payment intent created", intentResponse{
		Payment:      toPaymentResponse(result.Payment),
		IntentStatus: result.IntentStatus,
		ClientSecret: result.ClientSecret,
	})
}

// ConfirmIntent handles POST /payments/confirm-intent.
func (h *PaymentHandler) ConfirmIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req confirmIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "invalid request body", nil)
		return
	}
	if req.IntentID == "" {
		writeEnvelope(w, http.StatusBadRequest, false, "intent_id is required", nil)
		return
	}

	payment, err := h.svc.ConfirmIntent(r.Context(), actor, req.IntentID)
	if err != nil && !errors.Is(err, service.ErrPaymentDeclined) {
		h.respondPaymentError(w, "confirm intent", err)
		return
	}

	h.broadcastPayment(r.Context(), *payment)

	if errors.Is(err, service.ErrPaymentDeclined) {
		writeEnvelope(w, http.StatusPaymentRequired, false, "payment was declined", toPaymentResponse(*payment))
		return
	}
	writeEnvelope(w, http.StatusOK, true, "payment confirmed", toPaymentResponse(*payment))
}

// GetByOrder handles GET /payments/order/{orderId}.
func (h *PaymentHandler) GetByOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "invalid order ID", nil)
		return
	}

	payments, err := h.svc.GetByOrder(r.Context(), actor, orderID)
	if err != nil {
		h.respondPaymentError(w, "get payments by order", err)
		return
	}

	data := make([]paymentResponse, len(payments))
	for i, p := range payments {
		data[i] = toPaymentResponse(p)
	}
	writeEnvelope(w, http.StatusOK, true, "payments retrieved", data)
}

// List handles GET /payments, admin only.
func (h *PaymentHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit := parsePagination(r)
	payments, total, err := h.svc.List(r.Context(), service.ListPaymentsRequest{
		Status: r.URL.Query().Get("status"),
		Method: r.URL.Query().Get("method"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.respondPaymentError(w, "list payments", err)
		return
	}

	data := make([]paymentResponse, len(payments))
	for i, p := range payments {
		data[i] = toPaymentResponse(p)
	}
	writeEnvelope(w, http.StatusOK, true, "payments retrieved", pageResponse{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
		Data:       data,
	})
}

// Refund handles POST /payments/refund/{orderId}.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "invalid order ID", nil)
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeEnvelope(w, http.StatusBadRequest, false, "invalid request body", nil)
		return
	}

	payment, err := h.svc.Refund(r.Context(), actor, service.RefundRequest{
		OrderID: orderID,
		Amount:  req.Amount,
		Reason:  req.Reason,
	})
	if err != nil {
		h.respondPaymentError(w, "refund payment", err)
		return
	}

	h.broadcastPayment(r.Context(), *payment)

	writeEnvelope(w, http.StatusOK, true, "refund processed", toPaymentResponse(*payment))
}

// --- Helpers ---

func (h *PaymentHandler) respondPaymentError(w http.ResponseWriter, op string, err error) {
	var procErr *service.ProcessorError
	switch {
	case errors.Is(err, service.ErrInvalidRefundAmount),
		errors.Is(err, service.ErrInvalidStatusFilter),
		errors.Is(err, service.ErrInvalidPaymentMethod):
		writeEnvelope(w, http.StatusBadRequest, false, err.Error(), nil)
	case errors.Is(err, service.ErrForbidden):
		writeEnvelope(w, http.StatusForbidden, false, err.Error(), nil)
	case errors.Is(err, service.ErrOrderNotFound),
		errors.Is(err, service.ErrPaymentNotFound):
		writeEnvelope(w, http.StatusNotFound, false, err.Error(), nil)
	case errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrOrderNotPayable),
		errors.Is(err, service.ErrPaymentNotRefundable):
		writeEnvelope(w, http.StatusConflict, false, err.Error(), nil)
	case errors.As(err, &procErr):
		log.Printf("ERROR: %s: %v", op, err)
		writeEnvelope(w, http.StatusBadGateway, false, "payment processor unavailable", nil)
	default:
		log.Printf("ERROR: %s: %v", op, err)
		msg := "internal server error"
		if h.dev {
			msg = err.Error()
		}
		writeEnvelope(w, http.StatusInternalServerError, false, msg, nil)
	}
}

// broadcastPayment notifies the restaurant's dashboard that a payment record
// changed. The restaurant is not on the payment row, so it is resolved
// through the order. A failed lookup only costs the notification.
func (h *PaymentHandler) broadcastPayment(ctx context.Context, p database.Payment) {
	order, err := h.store.GetOrder(ctx, p.OrderID)
	if err != nil {
		log.Printf("ERROR: resolve order %s for payment event: %v", p.OrderID, err)
		return
	}
	h.notifier.BroadcastToRestaurant(order.RestaurantID, ws.NewEvent(ws.EventPaymentUpdated, toPaymentResponse(p)))
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, message string, data any) {
	writeJSON(w, status, envelope{Success: success, Message: message, Data: data})
}

func toPaymentResponse(p database.Payment) paymentResponse {
	var refundAmount *string
	if p.RefundAmount.Valid {
		s := numericString(p.RefundAmount)
		refundAmount = &s
	}
	return paymentResponse{
		ID:                p.ID,
		OrderID:           p.OrderID,
		PaymentMethod:     string(p.PaymentMethod),
		Amount:            numericString(p.Amount),
		ProcessorIntentID: textPtr(p.ProcessorIntentID),
		Status:            string(p.Status),
		RefundAmount:      refundAmount,
		RefundReason:      textPtr(p.RefundReason),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
