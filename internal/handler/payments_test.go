package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dishpatch/api/internal/database"
	"github.com/dishpatch/api/internal/enum"
	"github.com/dishpatch/api/internal/handler"
	"github.com/dishpatch/api/internal/middleware"
	"github.com/dishpatch/api/internal/processor"
	"github.com/dishpatch/api/internal/service"
	"github.com/dishpatch/api/internal/ws"
)

// --- Mock PaymentServicer ---

type mockPaymentService struct {
	createIntentFn  func(ctx context.Context, actor service.Actor, req service.CreateIntentRequest) (*service.IntentResult, error)
	confirmIntentFn func(ctx context.Context, actor service.Actor, intentID string) (*database.Payment, error)
	refundFn        func(ctx context.Context, actor service.Actor, req service.RefundRequest) (*database.Payment, error)
	getByOrderFn    func(ctx context.Context, actor service.Actor, orderID uuid.UUID) ([]database.Payment, error)
	listFn          func(ctx context.Context, req service.ListPaymentsRequest) ([]database.Payment, int64, error)
}

func (m *mockPaymentService) CreateIntent(ctx context.Context, actor service.Actor, req service.CreateIntentRequest) (*service.IntentResult, error) {
	return m.createIntentFn(ctx, actor, req)
}
func (m *mockPaymentService) ConfirmIntent(ctx context.Context, actor service.Actor, intentID string) (*database.Payment, error) {
	return m.confirmIntentFn(ctx, actor, intentID)
}
func (m *mockPaymentService) Refund(ctx context.Context, actor service.Actor, req service.RefundRequest) (*database.Payment, error) {
	return m.refundFn(ctx, actor, req)
}
func (m *mockPaymentService) GetByOrder(ctx context.Context, actor service.Actor, orderID uuid.UUID) ([]database.Payment, error) {
	return m.getByOrderFn(ctx, actor, orderID)
}
func (m *mockPaymentService) List(ctx context.Context, req service.ListPaymentsRequest) ([]database.Payment, int64, error) {
	return m.listFn(ctx, req)
}

// --- Mock PaymentOrderStore ---

type mockPaymentOrderStore struct {
	getOrderFn func(ctx context.Context, id uuid.UUID) (database.Order, error)
}

func (m *mockPaymentOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.getOrderFn(ctx, id)
}

// --- Test helpers ---

func setupPaymentRouter(svc *mockPaymentService, store *mockPaymentOrderStore, notifier *mockNotifier) *chi.Mux {
	h := handler.NewPaymentHandler(svc, store, notifier, false)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(testJWTSecret))
		r.Route("/payments", func(r chi.Router) {
			r.Post("/create-intent", h.CreateIntent)
			r.Post("/confirm-intent", h.ConfirmIntent)
			r.Get("/order/{orderId}", h.GetByOrder)
			r.Post("/refund/{orderId}", h.Refund)
			r.Get("/", h.List)
		})
	})
	return r
}

func completedPayment(orderID uuid.UUID) database.Payment {
	return database.Payment{
		ID:                uuid.New(),
		OrderID:           orderID,
		PaymentMethod:     enum.PaymentMethodOnline,
		Amount:            testNumeric("28.50"),
		ProcessorIntentID: pgtype.Text{String: "pi_123", Valid: true},
		Status:            enum.PaymentStatusCompleted,
	}
}

func knownOrderStore(orderID, restaurantID uuid.UUID) *mockPaymentOrderStore {
	return &mockPaymentOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return database.Order{ID: orderID, RestaurantID: restaurantID}, nil
		},
	}
}

// --- Tests ---

func TestPaymentCreateIntent_HappyPath(t *testing.T) {
	claims := customerClaims()
	orderID := uuid.New()
	restaurantID := uuid.New()
	payment := completedPayment(orderID)

	svc := &mockPaymentService{
		createIntentFn: func(ctx context.Context, actor service.Actor, req service.CreateIntentRequest) (*service.IntentResult, error) {
			if req.OrderID != orderID {
				t.Errorf("order_id: got %v, want %v", req.OrderID, orderID)
			}
			if req.PaymentMethodID != "pm_card" {
				t.Errorf("payment_method_id: got %q", req.PaymentMethodID)
			}
			return &service.IntentResult{
				Payment:      payment,
				IntentStatus: processor.IntentStatusSucceeded,
				ClientSecret: "pi_123_secret",
			}, nil
		},
	}
	notifier := &mockNotifier{}
	router := setupPaymentRouter(svc, knownOrderStore(orderID, restaurantID), notifier)

	rr := doAuthRequest(t, router, "POST", "/payments/create-intent", map[string]string{
		"order_id":          orderID.String(),
		"payment_method_id": "pm_card",
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["success"] != true {
		t.Errorf("success: got %v, want true", resp["success"])
	}
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data: got %v", resp["data"])
	}
	if data["intent_status"] != "succeeded" {
		t.Errorf("intent_status: got %v", data["intent_status"])
	}
	if data["client_secret"] != "pi_123_secret" {
		t.Errorf("client_secret: got %v", data["client_secret"])
	}
	pay := data["payment"].(map[string]interface{})
	if pay["amount"] != "28.50" || pay["status"] != "completed" {
		t.Errorf("payment: got %v", pay)
	}

	if len(notifier.events) != 1 || notifier.events[0].event.Type != ws.EventPaymentUpdated {
		t.Fatalf("expected one payment event, got %+v", notifier.events)
	}
	if notifier.events[0].restaurantID != restaurantID {
		t.Errorf("event restaurant: got %v, want %v", notifier.events[0].restaurantID, restaurantID)
	}
}

func TestPaymentCreateIntent_Declined(t *testing.T) {
	orderID := uuid.New()
	payment := completedPayment(orderID)
	payment.Status = enum.PaymentStatusFailed

	svc := &mockPaymentService{
		createIntentFn: func(ctx context.Context, actor service.Actor, req service.CreateIntentRequest) (*service.IntentResult, error) {
			return &service.IntentResult{Payment: payment, IntentStatus: "canceled"}, service.ErrPaymentDeclined
		},
	}
	router := setupPaymentRouter(svc, knownOrderStore(orderID, uuid.New()), &mockNotifier{})

	rr := doAuthRequest(t, router, "POST", "/payments/create-intent", map[string]string{
		"order_id": orderID.String(),
	}, customerClaims())

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusPaymentRequired, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["success"] != false {
		t.Errorf("success: got %v, want false", resp["success"])
	}
	if resp["message"] != "payment was declined" {
		t.Errorf("message: got %v", resp["message"])
	}
}

func TestPaymentCreateIntent_ProcessorDown(t *testing.T) {
	orderID := uuid.New()
	svc := &mockPaymentService{
		createIntentFn: func(ctx context.Context, actor service.Actor, req service.CreateIntentRequest) (*service.IntentResult, error) {
			return nil, &service.ProcessorError{Err: context.DeadlineExceeded}
		},
	}
	router := setupPaymentRouter(svc, knownOrderStore(orderID, uuid.New()), &mockNotifier{})

	rr := doAuthRequest(t, router, "POST", "/payments/create-intent", map[string]string{
		"order_id": orderID.String(),
	}, customerClaims())

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadGateway)
	}
	resp := decodeBody(t, rr)
	if resp["message"] != "payment processor unavailable" {
		t.Errorf("message: got %v", resp["message"])
	}
}

func TestPaymentCreateIntent_AlreadyPaid(t *testing.T) {
	orderID := uuid.New()
	svc := &mockPaymentService{
		createIntentFn: func(ctx context.Context, actor service.Actor, req service.CreateIntentRequest) (*service.IntentResult, error) {
			return nil, service.ErrAlreadyPaid
		},
	}
	router := setupPaymentRouter(svc, knownOrderStore(orderID, uuid.New()), &mockNotifier{})

	rr := doAuthRequest(t, router, "POST", "/payments/create-intent", map[string]string{
		"order_id": orderID.String(),
	}, customerClaims())

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestPaymentConfirmIntent_MissingIntentID(t *testing.T) {
	router := setupPaymentRouter(&mockPaymentService{}, &mockPaymentOrderStore{}, &mockNotifier{})

	rr := doAuthRequest(t, router, "POST", "/payments/confirm-intent", map[string]string{}, customerClaims())
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestPaymentGetByOrder_Envelope(t *testing.T) {
	orderID := uuid.New()
	svc := &mockPaymentService{
		getByOrderFn: func(ctx context.Context, actor service.Actor, id uuid.UUID) ([]database.Payment, error) {
			return []database.Payment{completedPayment(orderID)}, nil
		},
	}
	router := setupPaymentRouter(svc, &mockPaymentOrderStore{}, &mockNotifier{})

	rr := doAuthRequest(t, router, "GET", "/payments/order/"+orderID.String(), nil, customerClaims())
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["success"] != true {
		t.Errorf("success: got %v", resp["success"])
	}
	data, ok := resp["data"].([]interface{})
	if !ok || len(data) != 1 {
		t.Fatalf("data: got %v", resp["data"])
	}
}

func TestPaymentRefund_NotRefundable(t *testing.T) {
	orderID := uuid.New()
	svc := &mockPaymentService{
		refundFn: func(ctx context.Context, actor service.Actor, req service.RefundRequest) (*database.Payment, error) {
			return nil, service.ErrPaymentNotRefundable
		},
	}
	router := setupPaymentRouter(svc, &mockPaymentOrderStore{}, &mockNotifier{})

	admin := customerClaims()
	admin.Role = enum.RoleAdmin
	rr := doAuthRequest(t, router, "POST", "/payments/refund/"+orderID.String(), map[string]string{}, admin)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestPaymentRefund_PassesAmountAndReason(t *testing.T) {
	orderID := uuid.New()
	payment := completedPayment(orderID)
	payment.Status = enum.PaymentStatusRefunded
	payment.RefundAmount = testNumeric("28.50")
	payment.RefundReason = pgtype.Text{String: "customer request", Valid: true}

	svc := &mockPaymentService{
		refundFn: func(ctx context.Context, actor service.Actor, req service.RefundRequest) (*database.Payment, error) {
			if req.OrderID != orderID || req.Amount != "28.50" || req.Reason != "customer request" {
				t.Errorf("refund request: got %+v", req)
			}
			return &payment, nil
		},
	}
	router := setupPaymentRouter(svc, knownOrderStore(orderID, uuid.New()), &mockNotifier{})

	admin := customerClaims()
	admin.Role = enum.RoleAdmin
	rr := doAuthRequest(t, router, "POST", "/payments/refund/"+orderID.String(), map[string]string{
		"amount": "28.50",
		"reason": "customer request",
	}, admin)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	data := resp["data"].(map[string]interface{})
	if data["status"] != "refunded" || data["refund_amount"] != "28.50" {
		t.Errorf("data: got %v", data)
	}
}

func TestPaymentList_PaginationEnvelope(t *testing.T) {
	svc := &mockPaymentService{
		listFn: func(ctx context.Context, req service.ListPaymentsRequest) ([]database.Payment, int64, error) {
			if req.Status != "completed" {
				t.Errorf("status filter: got %q", req.Status)
			}
			return []database.Payment{completedPayment(uuid.New())}, 1, nil
		},
	}
	router := setupPaymentRouter(svc, &mockPaymentOrderStore{}, &mockNotifier{})

	admin := customerClaims()
	admin.Role = enum.RoleAdmin
	rr := doAuthRequest(t, router, "GET", "/payments/?status=completed", nil, admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	data, ok := resp["data"].(map[string]interface{})
	if !ok {
		t.Fatalf("data: got %v", resp["data"])
	}
	if data["total"] != float64(1) || data["totalPages"] != float64(1) {
		t.Errorf("pagination: got %v", data)
	}
}
