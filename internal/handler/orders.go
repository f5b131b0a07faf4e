package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dishpatch/api/internal/database"
	"github.com/dishpatch/api/internal/enum"
	"github.com/dishpatch/api/internal/middleware"
	"github.com/dishpatch/api/internal/service"
	"github.com/dishpatch/api/internal/ws"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	PlaceOrder(ctx context.Context, actor service.Actor, req service.PlaceOrderRequest) (*service.PlaceOrderResult, error)
	Get(ctx context.Context, actor service.Actor, orderID uuid.UUID) (*service.OrderDetail, error)
	List(ctx context.Context, actor service.Actor, req service.ListOrdersRequest) ([]database.Order, int64, error)
	UpdateStatus(ctx context.Context, actor service.Actor, orderID uuid.UUID, next enum.OrderStatus) (*database.Order, error)
	Cancel(ctx context.Context, actor service.Actor, orderID uuid.UUID) (*database.Order, error)
	AddItem(ctx context.Context, actor service.Actor, orderID uuid.UUID, req service.AddItemRequest) (*service.OrderDetail, error)
}

// Notifier pushes live events to restaurant dashboards.
// Satisfied by *ws.Hub.
type Notifier interface {
	BroadcastToRestaurant(restaurantID uuid.UUID, event ws.Event)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc      OrderServicer
	notifier Notifier
	dev      bool
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, notifier Notifier, dev bool) *OrderHandler {
	return &OrderHandler{svc: svc, notifier: notifier, dev: dev}
}

// RegisterRoutes registers order endpoints on the given Chi router.
// Expected to be mounted at /orders behind the auth middleware.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/items", h.AddItem)
	r.Delete("/{id}", h.Cancel)
}

// --- Request / Response types ---

type createOrderRequest struct {
	DeliveryAddress string                   `json:"delivery_address"`
	PaymentMethod   string                   `json:"payment_method"`
	DeliveryFee     string                   `json:"delivery_fee"`
	Items           []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ItemID              string `json:"item_id"`
	Variation           string `json:"variation"`
	Quantity            int32  `json:"quantity"`
	SpecialInstructions string `json:"special_instructions"`
}

type addOrderItemRequest struct {
	ItemID              string `json:"item_id"`
	Variation           string `json:"variation"`
	Quantity            int32  `json:"quantity"`
	SpecialInstructions string `json:"special_instructions"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type createOrderResponse struct {
	OrderID    uuid.UUID `json:"orderId"`
	TotalPrice string    `json:"totalPrice"`
}

type orderResponse struct {
	ID              uuid.UUID           `json:"id"`
	CustomerID      uuid.UUID           `json:"customer_id"`
	RestaurantID    uuid.UUID           `json:"restaurant_id"`
	DeliveryAddress string              `json:"delivery_address"`
	PaymentMethod   string              `json:"payment_method"`
	DeliveryFee     string              `json:"delivery_fee"`
	TotalPrice      string              `json:"total_price"`
	Status          string              `json:"status"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Items           []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID                  uuid.UUID `json:"id"`
	ItemID              uuid.UUID `json:"item_id"`
	Variation           *string   `json:"variation"`
	Quantity            int32     `json:"quantity"`
	UnitPrice           string    `json:"unit_price"`
	SpecialInstructions *string   `json:"special_instructions"`
}

// pageResponse wraps a list with pagination metadata.
type pageResponse struct {
	Total      int64 `json:"total"`
	Page       int32 `json:"page"`
	Limit      int32 `json:"limit"`
	TotalPages int64 `json:"totalPages"`
	Data       any   `json:"data"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	items := make([]service.PlaceOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.PlaceOrderItemRequest{
			ItemID:              item.ItemID,
			Variation:           item.Variation,
			Quantity:            item.Quantity,
			SpecialInstructions: item.SpecialInstructions,
		}
	}

	result, err := h.svc.PlaceOrder(r.Context(), actor, service.PlaceOrderRequest{
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
		DeliveryFee:     req.DeliveryFee,
		Items:           items,
	})
	if err != nil {
		h.respondOrderError(w, "create order", err)
		return
	}

	h.notifier.BroadcastToRestaurant(result.Order.RestaurantID,
		ws.NewEvent(ws.EventOrderPlaced, toOrderResponse(result.Order, result.Items)))

	writeJSON(w, http.StatusCreated, createOrderResponse{
		OrderID:    result.Order.ID,
		TotalPrice: numericString(result.Order.TotalPrice),
	})
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}

	page, limit := parsePagination(r)
	orders, total, err := h.svc.List(r.Context(), actor, service.ListOrdersRequest{
		Status: r.URL.Query().Get("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.respondOrderError(w, "list orders", err)
		return
	}

	data := make([]orderResponse, len(orders))
	for i, o := range orders {
		data[i] = toOrderResponse(o, nil)
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
		Data:       data,
	})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	detail, err := h.svc.Get(r.Context(), actor, orderID)
	if err != nil {
		h.respondOrderError(w, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(detail.Order, detail.Items))
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}

	order, err := h.svc.UpdateStatus(r.Context(), actor, orderID, enum.OrderStatus(req.Status))
	if err != nil {
		h.respondOrderError(w, "update order status", err)
		return
	}

	eventType := ws.EventOrderStatus
	if order.Status == enum.OrderStatusCancelled {
		eventType = ws.EventOrderCancelled
	}
	h.notifier.BroadcastToRestaurant(order.RestaurantID, ws.NewEvent(eventType, toOrderResponse(*order, nil)))

	writeJSON(w, http.StatusOK, toOrderResponse(*order, nil))
}

// AddItem handles POST /orders/{id}/items.
func (h *OrderHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req addOrderItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	detail, err := h.svc.AddItem(r.Context(), actor, orderID, service.AddItemRequest{
		ItemID:              req.ItemID,
		Variation:           req.Variation,
		Quantity:            req.Quantity,
		SpecialInstructions: req.SpecialInstructions,
	})
	if err != nil {
		h.respondOrderError(w, "add order item", err)
		return
	}

	h.notifier.BroadcastToRestaurant(detail.Order.RestaurantID,
		ws.NewEvent(ws.EventOrderStatus, toOrderResponse(detail.Order, detail.Items)))

	writeJSON(w, http.StatusOK, toOrderResponse(detail.Order, detail.Items))
}

// Cancel handles DELETE /orders/{id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromRequest(w, r)
	if !ok {
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.svc.Cancel(r.Context(), actor, orderID)
	if err != nil {
		h.respondOrderError(w, "cancel order", err)
		return
	}

	h.notifier.BroadcastToRestaurant(order.RestaurantID,
		ws.NewEvent(ws.EventOrderCancelled, toOrderResponse(*order, nil)))

	writeJSON(w, http.StatusOK, toOrderResponse(*order, nil))
}

// --- Helpers ---

// respondOrderError maps service errors to HTTP statuses. Validation problems
// are 400, authz 403, missing orders 404, state races 409. Anything unknown
// is logged and hidden behind a 500 unless running in development.
func (h *OrderHandler) respondOrderError(w http.ResponseWriter, op string, err error) {
	var unavailable *service.UnavailableItemsError
	switch {
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "some items cannot be ordered",
			"unavailable_items": unavailable.Lines,
		})
	case errors.Is(err, service.ErrEmptyItems),
		errors.Is(err, service.ErrEmptyAddress),
		errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidItemID),
		errors.Is(err, service.ErrInvalidDeliveryFee),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrInvalidStatusFilter),
		errors.Is(err, service.ErrMixedRestaurants),
		errors.Is(err, service.ErrInvalidTransition):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrOrderFinalized),
		errors.Is(err, service.ErrOrderNotEditable),
		errors.Is(err, service.ErrOrderStateChanged):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		log.Printf("ERROR: %s: %v", op, err)
		msg := "internal server error"
		if h.dev {
			msg = err.Error()
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
	}
}

// actorFromRequest builds the service actor from JWT claims, writing a 401 if
// the request somehow got here unauthenticated.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "you have to login first"})
		return service.Actor{}, false
	}
	return service.Actor{
		ID:           claims.UserID,
		Role:         claims.Role,
		RestaurantID: claims.RestaurantID,
	}, true
}

func parsePagination(r *http.Request) (page, limit int32) {
	page, limit = 1, 10
	if s := r.URL.Query().Get("page"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			page = int32(v)
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = int32(v)
		}
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}

func totalPages(total int64, limit int32) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + int64(limit) - 1) / int64(limit)
}

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		CustomerID:      o.CustomerID,
		RestaurantID:    o.RestaurantID,
		DeliveryAddress: o.DeliveryAddress,
		PaymentMethod:   string(o.PaymentMethod),
		DeliveryFee:     numericString(o.DeliveryFee),
		TotalPrice:      numericString(o.TotalPrice),
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
	for _, item := range items {
		resp.Items = append(resp.Items, toOrderItemResponse(item))
	}
	return resp
}

func toOrderItemResponse(oi database.OrderItem) orderItemResponse {
	return orderItemResponse{
		ID:                  oi.ID,
		ItemID:              oi.ItemID,
		Variation:           textPtr(oi.Variation),
		Quantity:            oi.Quantity,
		UnitPrice:           numericString(oi.UnitPrice),
		SpecialInstructions: textPtr(oi.SpecialInstructions),
	}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func numericString(n pgtype.Numeric) string {
	if !n.Valid {
		return "0.00"
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return "0.00"
	}
	return val.(string)
}
