package service

import (
	"errors"

	"github.com/google/uuid"

	"github.com/dishpatch/api/internal/database"
	"github.com/dishpatch/api/internal/enum"
)

// ErrForbidden is returned when an authenticated actor tries to reach an
// order outside their scope.
var ErrForbidden = errors.New("you do not have permission to access this resource")

// Actor is the authenticated principal, built from JWT claims.
// RestaurantID is the zero UUID for customers and admins.
type Actor struct {
	ID           uuid.UUID
	Role         enum.Role
	RestaurantID uuid.UUID
}

// CanAccessOrder reports whether the actor may read or act on the order.
// Admins see everything, restaurants see orders placed against them, and
// customers see their own orders. Unknown roles see nothing.
func CanAccessOrder(actor Actor, order database.Order) bool {
	switch actor.Role {
	case enum.RoleAdmin:
		return true
	case enum.RoleRestaurant:
		return actor.RestaurantID != uuid.Nil && actor.RestaurantID == order.RestaurantID
	case enum.RoleCustomer:
		return actor.ID == order.CustomerID
	}
	return false
}
