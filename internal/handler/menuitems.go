package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dishpatch/api/internal/database"
)

// MenuItemStore defines the database methods needed by catalog read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type MenuItemStore interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	ListMenuItems(ctx context.Context, arg database.ListMenuItemsParams) ([]database.MenuItem, error)
	CountMenuItems(ctx context.Context, menuID pgtype.UUID) (int64, error)
	ListItemVariations(ctx context.Context, menuItemID uuid.UUID) ([]database.ItemVariation, error)
}

// MenuItemHandler serves the public, read-only menu catalog.
type MenuItemHandler struct {
	store MenuItemStore
}

// NewMenuItemHandler creates a new MenuItemHandler.
func NewMenuItemHandler(store MenuItemStore) *MenuItemHandler {
	return &MenuItemHandler{store: store}
}

// RegisterRoutes registers catalog endpoints on the given Chi router.
// These routes are public: browsing a menu requires no account.
func (h *MenuItemHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// --- Response types ---

type menuItemResponse struct {
	ID          uuid.UUID           `json:"id"`
	MenuID      uuid.UUID           `json:"menu_id"`
	SubMenuID   *uuid.UUID          `json:"sub_menu_id"`
	Name        string              `json:"name"`
	Description *string             `json:"description"`
	Price       string              `json:"price"`
	IsAvailable bool                `json:"is_available"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Variations  []variationResponse `json:"variations,omitempty"`
}

type variationResponse struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	IsAvailable bool   `json:"is_available"`
}

// --- Handlers ---

// List handles GET /menu-items.
func (h *MenuItemHandler) List(w http.ResponseWriter, r *http.Request) {
	menuID := pgtype.UUID{}
	if s := r.URL.Query().Get("menu_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu_id"})
			return
		}
		menuID = pgtype.UUID{Bytes: id, Valid: true}
	}

	page, limit := parsePagination(r)
	items, err := h.store.ListMenuItems(r.Context(), database.ListMenuItemsParams{
		MenuID: menuID,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		log.Printf("ERROR: list menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	total, err := h.store.CountMenuItems(r.Context(), menuID)
	if err != nil {
		log.Printf("ERROR: count menu items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	data := make([]menuItemResponse, len(items))
	for i, item := range items {
		data[i] = toMenuItemResponse(item, nil)
	}
	writeJSON(w, http.StatusOK, pageResponse{
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: totalPages(total, limit),
		Data:       data,
	})
}

// Get handles GET /menu-items/{id}, returning the item with its variations.
func (h *MenuItemHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid menu item ID"})
		return
	}

	item, err := h.store.GetMenuItem(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "menu item not found"})
			return
		}
		log.Printf("ERROR: get menu item: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	variations, err := h.store.ListItemVariations(r.Context(), id)
	if err != nil {
		log.Printf("ERROR: list item variations: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	writeJSON(w, http.StatusOK, toMenuItemResponse(item, variations))
}

// --- Helpers ---

func toMenuItemResponse(item database.MenuItem, variations []database.ItemVariation) menuItemResponse {
	resp := menuItemResponse{
		ID:          item.ID,
		MenuID:      item.MenuID,
		Name:        item.Name,
		Description: textPtr(item.Description),
		Price:       numericString(item.Price),
		IsAvailable: item.IsAvailable,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	if item.SubMenuID.Valid {
		id := uuid.UUID(item.SubMenuID.Bytes)
		resp.SubMenuID = &id
	}
	for _, v := range variations {
		resp.Variations = append(resp.Variations, variationResponse{
			Name:        v.Name,
			Price:       numericString(v.Price),
			IsAvailable: v.IsAvailable,
		})
	}
	return resp
}
