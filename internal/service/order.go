package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/dishpatch/api/internal/database"
	"github.com/dishpatch/api/internal/enum"
)

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrEmptyAddress         = errors.New("delivery_address is required")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidQuantity      = errors.New("quantity must be > 0")
	ErrInvalidItemID        = errors.New("invalid item_id")
	ErrInvalidDeliveryFee   = errors.New("invalid delivery_fee")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidStatusFilter  = errors.New("invalid status filter")
	ErrMixedRestaurants     = errors.New("all items must belong to the same restaurant")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderFinalized       = errors.New("order is already completed or cancelled")
	ErrOrderNotEditable     = errors.New("items can only be added while the order is pending")
	ErrInvalidTransition    = errors.New("status transition not allowed")
	ErrOrderStateChanged    = errors.New("order status changed, retry the operation")
)

// RejectedLine describes one requested item the catalog could not serve.
type RejectedLine struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// UnavailableItemsError reports every rejected line at once so the client can
// fix the whole cart in one round trip.
type UnavailableItemsError struct {
	Lines []RejectedLine
}

func (e *UnavailableItemsError) Error() string {
	reasons := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		reasons[i] = fmt.Sprintf("%s: %s", l.ItemID, l.Reason)
	}
	return "some items cannot be ordered: " + strings.Join(reasons, "; ")
}

// maxPageLimit bounds the page size of list operations.
const maxPageLimit = 100

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods the order service needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (database.GetMenuItemForOrderRow, error)
	GetItemVariation(ctx context.Context, arg database.GetItemVariationParams) (database.ItemVariation, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderTotal(ctx context.Context, arg database.UpdateOrderTotalParams) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	CountOrders(ctx context.Context, arg database.CountOrdersParams) (int64, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// PlaceOrderItemRequest is a single line in the cart.
type PlaceOrderItemRequest struct {
	ItemID              string
	Variation           string
	Quantity            int32
	SpecialInstructions string
}

// PlaceOrderRequest is the validated input for placing an order.
type PlaceOrderRequest struct {
	DeliveryAddress string
	PaymentMethod   string
	DeliveryFee     string
	Items           []PlaceOrderItemRequest
}

// PlaceOrderResult is the created order with its priced items.
type PlaceOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderDetail is an order with its items, for reads.
type OrderDetail struct {
	Order database.Order
	Items []database.OrderItem
}

// ListOrdersRequest carries the optional filters for listing orders.
type ListOrdersRequest struct {
	Status string
	Page   int32
	Limit  int32
}

// AddItemRequest appends one line to a pending order.
type AddItemRequest struct {
	ItemID              string
	Variation           string
	Quantity            int32
	SpecialInstructions string
}

// allowedTransitions maps each order status to the statuses a restaurant or
// admin may move it to. Cancellation is handled separately since customers
// may cancel too.
var allowedTransitions = map[enum.OrderStatus][]enum.OrderStatus{
	enum.OrderStatusPending:   {enum.OrderStatusApproved},
	enum.OrderStatusApproved:  {enum.OrderStatusPreparing},
	enum.OrderStatusPreparing: {enum.OrderStatusReady},
	enum.OrderStatusReady:     {enum.OrderStatusCompleted},
}

// OrderService handles order business logic. store is backed by the pool for
// single-statement reads; multi-statement work goes through pool + newStore.
type OrderService struct {
	store    OrderStore
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(store OrderStore, pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{store: store, pool: pool, newStore: newStore}
}

// pricedLine holds a resolved cart line ready for insertion.
type pricedLine struct {
	params database.CreateOrderItemParams
}

// PlaceOrder validates the cart against the live catalog, snapshots prices,
// and creates the order atomically. Every line is checked before anything is
// written: if any line is rejected the whole order is rejected and the
// caller gets an *UnavailableItemsError listing all failures.
func (s *OrderService) PlaceOrder(ctx context.Context, actor Actor, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if strings.TrimSpace(req.DeliveryAddress) == "" {
		return nil, ErrEmptyAddress
	}
	method := enum.PaymentMethod(req.PaymentMethod)
	if !method.Valid() {
		return nil, ErrInvalidPaymentMethod
	}
	deliveryFee := decimal.Zero
	if req.DeliveryFee != "" {
		fee, err := decimal.NewFromString(req.DeliveryFee)
		if err != nil || fee.IsNegative() {
			return nil, ErrInvalidDeliveryFee
		}
		deliveryFee = fee
	}
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if _, err := uuid.Parse(item.ItemID); err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidItemID)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// --- Resolve and price every line, collecting all rejections ---
	var (
		restaurantID uuid.UUID
		rejected     []RejectedLine
		lines        []pricedLine
		itemsTotal   = decimal.Zero
	)

	for _, item := range req.Items {
		itemID, _ := uuid.Parse(item.ItemID)

		row, err := store.GetMenuItemForOrder(ctx, itemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				rejected = append(rejected, RejectedLine{ItemID: item.ItemID, Reason: "item not found"})
				continue
			}
			return nil, fmt.Errorf("get menu item: %w", err)
		}

		// The order's restaurant comes from the first resolvable item;
		// every other item must match it.
		if restaurantID == uuid.Nil {
			restaurantID = row.RestaurantID
		} else if row.RestaurantID != restaurantID {
			return nil, ErrMixedRestaurants
		}

		if !row.IsAvailable {
			rejected = append(rejected, RejectedLine{ItemID: item.ItemID, Name: row.Name, Reason: "item is unavailable"})
			continue
		}

		// Snapshot the price at order time: variation price when one is
		// chosen, base item price otherwise.
		unitPrice := numericToDecimal(row.Price)
		variation := pgtype.Text{}
		if item.Variation != "" {
			v, err := store.GetItemVariation(ctx, database.GetItemVariationParams{
				MenuItemID: itemID,
				Name:       item.Variation,
			})
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					rejected = append(rejected, RejectedLine{ItemID: item.ItemID, Name: row.Name, Reason: "variation not found"})
					continue
				}
				return nil, fmt.Errorf("get item variation: %w", err)
			}
			if !v.IsAvailable {
				rejected = append(rejected, RejectedLine{ItemID: item.ItemID, Name: row.Name, Reason: "variation is unavailable"})
				continue
			}
			unitPrice = numericToDecimal(v.Price)
			variation = pgtype.Text{String: v.Name, Valid: true}
		}

		itemsTotal = itemsTotal.Add(unitPrice.Mul(decimal.NewFromInt32(item.Quantity)))

		instructions := pgtype.Text{}
		if item.SpecialInstructions != "" {
			instructions = pgtype.Text{String: item.SpecialInstructions, Valid: true}
		}
		lines = append(lines, pricedLine{params: database.CreateOrderItemParams{
			ItemID:              itemID,
			Variation:           variation,
			Quantity:            item.Quantity,
			UnitPrice:           decimalToNumeric(unitPrice),
			SpecialInstructions: instructions,
		}})
	}

	if len(rejected) > 0 {
		return nil, &UnavailableItemsError{Lines: rejected}
	}

	totalPrice := itemsTotal.Add(deliveryFee)

	// When an admin places the order on a customer's behalf, keep a
	// reference to who did it.
	adminID := pgtype.UUID{}
	if actor.Role == enum.RoleAdmin {
		adminID = pgtype.UUID{Bytes: actor.ID, Valid: true}
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		CustomerID:      actor.ID,
		AdminID:         adminID,
		RestaurantID:    restaurantID,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   method,
		DeliveryFee:     decimalToNumeric(deliveryFee),
		TotalPrice:      decimalToNumeric(totalPrice),
		Status:          enum.OrderStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var created []database.OrderItem
	for _, line := range lines {
		line.params.OrderID = order.ID
		oi, err := store.CreateOrderItem(ctx, line.params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		created = append(created, oi)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &PlaceOrderResult{Order: order, Items: created}, nil
}

// Get returns an order with its items if the actor may see it.
func (s *OrderService) Get(ctx context.Context, actor Actor, orderID uuid.UUID) (*OrderDetail, error) {
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
	items, err := s.store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &OrderDetail{Order: order, Items: items}, nil
}

// List returns the actor's slice of orders plus the total count for
// pagination. Customers see their own orders, restaurants the orders placed
// against them, admins everything.
func (s *OrderService) List(ctx context.Context, actor Actor, req ListOrdersRequest) ([]database.Order, int64, error) {
	status := pgtype.Text{}
	if req.Status != "" {
		if !enum.OrderStatus(req.Status).Valid() {
			return nil, 0, ErrInvalidStatusFilter
		}
		status = pgtype.Text{String: req.Status, Valid: true}
	}

	customerID := pgtype.UUID{}
	restaurantID := pgtype.UUID{}
	switch actor.Role {
	case enum.RoleCustomer:
		customerID = pgtype.UUID{Bytes: actor.ID, Valid: true}
	case enum.RoleRestaurant:
		restaurantID = pgtype.UUID{Bytes: actor.RestaurantID, Valid: true}
	case enum.RoleAdmin:
		// no scoping
	default:
		return nil, 0, ErrForbidden
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

	orders, err := s.store.ListOrders(ctx, database.ListOrdersParams{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Status:       status,
		Limit:        limit,
		Offset:       (page - 1) * limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	total, err := s.store.CountOrders(ctx, database.CountOrdersParams{
		CustomerID:   customerID,
		RestaurantID: restaurantID,
		Status:       status,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	return orders, total, nil
}

// UpdateStatus advances the order along the status machine. The update is
// conditional on the status the caller saw, so two concurrent transitions
// cannot both win.
func (s *OrderService) UpdateStatus(ctx context.Context, actor Actor, orderID uuid.UUID, next enum.OrderStatus) (*database.Order, error) {
	if !next.Valid() {
		return nil, ErrInvalidStatus
	}
	if next == enum.OrderStatusCancelled {
		return s.Cancel(ctx, actor, orderID)
	}

	// Only the restaurant handling the order (or an admin) works the
	// fulfillment pipeline. Customers can only cancel.
	if actor.Role != enum.RoleRestaurant && actor.Role != enum.RoleAdmin {
		return nil, ErrForbidden
	}

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

	allowed := false
	for _, to := range allowedTransitions[order.Status] {
		if to == next {
			allowed = true
			break
		}
	}
	if !allowed {
		if order.Status.Terminal() {
			return nil, ErrOrderFinalized
		}
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, next)
	}

	updated, err := s.store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         orderID,
		Status:     next,
		FromStatus: order.Status,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderStateChanged
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}
	return &updated, nil
}

// Cancel moves the order to cancelled unless it already reached a terminal
// status. The DB-side condition makes a double cancel lose cleanly.
func (s *OrderService) Cancel(ctx context.Context, actor Actor, orderID uuid.UUID) (*database.Order, error) {
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
	if order.Status.Terminal() {
		return nil, ErrOrderFinalized
	}

	cancelled, err := s.store.CancelOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderFinalized
		}
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	return &cancelled, nil
}

// AddItem appends a line to an order that is still pending, snapshotting the
// item's current price and bumping the order total. Runs in a transaction
// with the order row locked so a concurrent approval or cancel cannot slip
// between the status check and the insert.
func (s *OrderService) AddItem(ctx context.Context, actor Actor, orderID uuid.UUID, req AddItemRequest) (*OrderDetail, error) {
	if req.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	itemID, err := uuid.Parse(req.ItemID)
	if err != nil {
		return nil, ErrInvalidItemID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if !CanAccessOrder(actor, order) {
		return nil, ErrForbidden
	}
	if order.Status != enum.OrderStatusPending {
		return nil, ErrOrderNotEditable
	}

	row, err := store.GetMenuItemForOrder(ctx, itemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &UnavailableItemsError{Lines: []RejectedLine{{ItemID: req.ItemID, Reason: "item not found"}}}
		}
		return nil, fmt.Errorf("get menu item: %w", err)
	}
	if row.RestaurantID != order.RestaurantID {
		return nil, ErrMixedRestaurants
	}
	if !row.IsAvailable {
		return nil, &UnavailableItemsError{Lines: []RejectedLine{{ItemID: req.ItemID, Name: row.Name, Reason: "item is unavailable"}}}
	}

	unitPrice := numericToDecimal(row.Price)
	variation := pgtype.Text{}
	if req.Variation != "" {
		v, err := store.GetItemVariation(ctx, database.GetItemVariationParams{
			MenuItemID: itemID,
			Name:       req.Variation,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, &UnavailableItemsError{Lines: []RejectedLine{{ItemID: req.ItemID, Name: row.Name, Reason: "variation not found"}}}
			}
			return nil, fmt.Errorf("get item variation: %w", err)
		}
		if !v.IsAvailable {
			return nil, &UnavailableItemsError{Lines: []RejectedLine{{ItemID: req.ItemID, Name: row.Name, Reason: "variation is unavailable"}}}
		}
		unitPrice = numericToDecimal(v.Price)
		variation = pgtype.Text{String: v.Name, Valid: true}
	}

	instructions := pgtype.Text{}
	if req.SpecialInstructions != "" {
		instructions = pgtype.Text{String: req.SpecialInstructions, Valid: true}
	}
	if _, err := store.CreateOrderItem(ctx, database.CreateOrderItemParams{
		OrderID:             orderID,
		ItemID:              itemID,
		Variation:           variation,
		Quantity:            req.Quantity,
		UnitPrice:           decimalToNumeric(unitPrice),
		SpecialInstructions: instructions,
	}); err != nil {
		return nil, fmt.Errorf("create order item: %w", err)
	}

	newTotal := numericToDecimal(order.TotalPrice).Add(unitPrice.Mul(decimal.NewFromInt32(req.Quantity)))
	updated, err := store.UpdateOrderTotal(ctx, database.UpdateOrderTotalParams{
		ID:         orderID,
		TotalPrice: decimalToNumeric(newTotal),
	})
	if err != nil {
		return nil, fmt.Errorf("update order total: %w", err)
	}

	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderDetail{Order: updated, Items: items}, nil
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
