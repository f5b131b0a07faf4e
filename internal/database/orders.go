package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dishpatch/api/internal/enum"
)

const orderColumns = `id, customer_id, admin_id, restaurant_id, delivery_address,
payment_method, delivery_fee, total_price, status, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.AdminID, &o.RestaurantID, &o.DeliveryAddress,
		&o.PaymentMethod, &o.DeliveryFee, &o.TotalPrice, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const createOrder = `
INSERT INTO orders (customer_id, admin_id, restaurant_id, delivery_address,
	payment_method, delivery_fee, total_price, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	CustomerID      uuid.UUID
	AdminID         pgtype.UUID
	RestaurantID    uuid.UUID
	DeliveryAddress string
	PaymentMethod   enum.PaymentMethod
	DeliveryFee     pgtype.Numeric
	TotalPrice      pgtype.Numeric
	Status          enum.OrderStatus
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder, arg.CustomerID, arg.AdminID, arg.RestaurantID,
		arg.DeliveryAddress, arg.PaymentMethod, arg.DeliveryFee, arg.TotalPrice, arg.Status)
	return scanOrder(row)
}

const createOrderItem = `
INSERT INTO order_items (order_id, item_id, variation, quantity, unit_price, special_instructions)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, item_id, variation, quantity, unit_price, special_instructions, created_at
`

type CreateOrderItemParams struct {
	OrderID             uuid.UUID
	ItemID              uuid.UUID
	Variation           pgtype.Text
	Quantity            int32
	UnitPrice           pgtype.Numeric
	SpecialInstructions pgtype.Text
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem, arg.OrderID, arg.ItemID, arg.Variation,
		arg.Quantity, arg.UnitPrice, arg.SpecialInstructions)
	var oi OrderItem
	err := row.Scan(&oi.ID, &oi.OrderID, &oi.ItemID, &oi.Variation, &oi.Quantity,
		&oi.UnitPrice, &oi.SpecialInstructions, &oi.CreatedAt)
	return oi, err
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

// getOrderForUpdate locks the order row so concurrent payment and mutation
// attempts against the same order serialize on it.
const getOrderForUpdate = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR NO KEY UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::uuid IS NULL OR customer_id = $1)
  AND ($2::uuid IS NULL OR restaurant_id = $2)
  AND ($3::text IS NULL OR status = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`

type ListOrdersParams struct {
	CustomerID   pgtype.UUID
	RestaurantID pgtype.UUID
	Status       pgtype.Text
	Limit        int32
	Offset       int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.CustomerID, arg.RestaurantID, arg.Status, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const countOrders = `
SELECT count(*)
FROM orders
WHERE ($1::uuid IS NULL OR customer_id = $1)
  AND ($2::uuid IS NULL OR restaurant_id = $2)
  AND ($3::text IS NULL OR status = $3)
`

type CountOrdersParams struct {
	CustomerID   pgtype.UUID
	RestaurantID pgtype.UUID
	Status       pgtype.Text
}

func (q *Queries) CountOrders(ctx context.Context, arg CountOrdersParams) (int64, error) {
	row := q.db.QueryRow(ctx, countOrders, arg.CustomerID, arg.RestaurantID, arg.Status)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const listOrderItemsByOrder = `
SELECT id, order_id, item_id, variation, quantity, unit_price, special_instructions, created_at
FROM order_items
WHERE order_id = $1
ORDER BY created_at
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var oi OrderItem
		if err := rows.Scan(&oi.ID, &oi.OrderID, &oi.ItemID, &oi.Variation, &oi.Quantity,
			&oi.UnitPrice, &oi.SpecialInstructions, &oi.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, oi)
	}
	return items, rows.Err()
}

// updateOrderStatus is a conditional update: it only fires when the order is
// still in the status the caller validated against, so a concurrent
// transition surfaces as pgx.ErrNoRows instead of a silent overwrite.
const updateOrderStatus = `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
RETURNING ` + orderColumns

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	Status     enum.OrderStatus
	FromStatus enum.OrderStatus
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.FromStatus))
}

const cancelOrder = `
UPDATE orders
SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status NOT IN ('completed', 'cancelled')
RETURNING ` + orderColumns

func (q *Queries) CancelOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, cancelOrder, id))
}

const updateOrderTotal = `
UPDATE orders
SET total_price = $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderTotalParams struct {
	ID         uuid.UUID
	TotalPrice pgtype.Numeric
}

func (q *Queries) UpdateOrderTotal(ctx context.Context, arg UpdateOrderTotalParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderTotal, arg.ID, arg.TotalPrice))
}
