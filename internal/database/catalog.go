package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createMenu = `
INSERT INTO menus (restaurant_id, name)
VALUES ($1, $2)
RETURNING id, restaurant_id, name, created_at
`

type CreateMenuParams struct {
	RestaurantID uuid.UUID
	Name         string
}

func (q *Queries) CreateMenu(ctx context.Context, arg CreateMenuParams) (Menu, error) {
	row := q.db.QueryRow(ctx, createMenu, arg.RestaurantID, arg.Name)
	var m Menu
	err := row.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.CreatedAt)
	return m, err
}

const createMenuItem = `
INSERT INTO menu_items (menu_id, sub_menu_id, name, description, price, is_available)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, menu_id, sub_menu_id, name, description, price, is_available, created_at, updated_at
`

type CreateMenuItemParams struct {
	MenuID      uuid.UUID
	SubMenuID   pgtype.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	IsAvailable bool
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem, arg.MenuID, arg.SubMenuID, arg.Name,
		arg.Description, arg.Price, arg.IsAvailable)
	var mi MenuItem
	err := row.Scan(&mi.ID, &mi.MenuID, &mi.SubMenuID, &mi.Name, &mi.Description,
		&mi.Price, &mi.IsAvailable, &mi.CreatedAt, &mi.UpdatedAt)
	return mi, err
}

const createItemVariation = `
INSERT INTO item_variations (menu_item_id, name, price, is_available)
VALUES ($1, $2, $3, $4)
RETURNING id, menu_item_id, name, price, is_available
`

type CreateItemVariationParams struct {
	MenuItemID  uuid.UUID
	Name        string
	Price       pgtype.Numeric
	IsAvailable bool
}

func (q *Queries) CreateItemVariation(ctx context.Context, arg CreateItemVariationParams) (ItemVariation, error) {
	row := q.db.QueryRow(ctx, createItemVariation, arg.MenuItemID, arg.Name, arg.Price, arg.IsAvailable)
	var v ItemVariation
	err := row.Scan(&v.ID, &v.MenuItemID, &v.Name, &v.Price, &v.IsAvailable)
	return v, err
}

const getMenuItemForOrder = `
SELECT mi.id, mi.name, mi.price, mi.is_available, m.restaurant_id
FROM menu_items mi
JOIN menus m ON m.id = mi.menu_id
WHERE mi.id = $1
`

// GetMenuItemForOrderRow carries the catalog fields the pricing engine needs,
// including the restaurant derived from the item's parent menu.
type GetMenuItemForOrderRow struct {
	ID           uuid.UUID
	Name         string
	Price        pgtype.Numeric
	IsAvailable  bool
	RestaurantID uuid.UUID
}

func (q *Queries) GetMenuItemForOrder(ctx context.Context, id uuid.UUID) (GetMenuItemForOrderRow, error) {
	row := q.db.QueryRow(ctx, getMenuItemForOrder, id)
	var r GetMenuItemForOrderRow
	err := row.Scan(&r.ID, &r.Name, &r.Price, &r.IsAvailable, &r.RestaurantID)
	return r, err
}

const getItemVariation = `
SELECT id, menu_item_id, name, price, is_available
FROM item_variations
WHERE menu_item_id = $1 AND name = $2
`

type GetItemVariationParams struct {
	MenuItemID uuid.UUID
	Name       string
}

func (q *Queries) GetItemVariation(ctx context.Context, arg GetItemVariationParams) (ItemVariation, error) {
	row := q.db.QueryRow(ctx, getItemVariation, arg.MenuItemID, arg.Name)
	var v ItemVariation
	err := row.Scan(&v.ID, &v.MenuItemID, &v.Name, &v.Price, &v.IsAvailable)
	return v, err
}

const getMenuItem = `
SELECT id, menu_id, sub_menu_id, name, description, price, is_available, created_at, updated_at
FROM menu_items
WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	row := q.db.QueryRow(ctx, getMenuItem, id)
	var mi MenuItem
	err := row.Scan(&mi.ID, &mi.MenuID, &mi.SubMenuID, &mi.Name, &mi.Description,
		&mi.Price, &mi.IsAvailable, &mi.CreatedAt, &mi.UpdatedAt)
	return mi, err
}

const listMenuItems = `
SELECT id, menu_id, sub_menu_id, name, description, price, is_available, created_at, updated_at
FROM menu_items
WHERE ($1::uuid IS NULL OR menu_id = $1)
ORDER BY name
LIMIT $2 OFFSET $3
`

type ListMenuItemsParams struct {
	MenuID pgtype.UUID
	Limit  int32
	Offset int32
}

func (q *Queries) ListMenuItems(ctx context.Context, arg ListMenuItemsParams) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems, arg.MenuID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		var mi MenuItem
		if err := rows.Scan(&mi.ID, &mi.MenuID, &mi.SubMenuID, &mi.Name, &mi.Description,
			&mi.Price, &mi.IsAvailable, &mi.CreatedAt, &mi.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, mi)
	}
	return items, rows.Err()
}

const countMenuItems = `
SELECT count(*) FROM menu_items
WHERE ($1::uuid IS NULL OR menu_id = $1)
`

func (q *Queries) CountMenuItems(ctx context.Context, menuID pgtype.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countMenuItems, menuID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const listItemVariations = `
SELECT id, menu_item_id, name, price, is_available
FROM item_variations
WHERE menu_item_id = $1
ORDER BY name
`

func (q *Queries) ListItemVariations(ctx context.Context, menuItemID uuid.UUID) ([]ItemVariation, error) {
	rows, err := q.db.Query(ctx, listItemVariations, menuItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vars []ItemVariation
	for rows.Next() {
		var v ItemVariation
		if err := rows.Scan(&v.ID, &v.MenuItemID, &v.Name, &v.Price, &v.IsAvailable); err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}
	return vars, rows.Err()
}
