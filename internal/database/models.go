package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/dishpatch/api/internal/enum"
)

type User struct {
	ID             uuid.UUID
	Name           string
	Email          string
	HashedPassword string
	Role           enum.Role
	CreatedAt      time.Time
}

type Restaurant struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	CreatedAt time.Time
}

type Menu struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	CreatedAt    time.Time
}

type SubMenu struct {
	ID        uuid.UUID
	MenuID    uuid.UUID
	Name      string
	CreatedAt time.Time
}

type MenuItem struct {
	ID          uuid.UUID
	MenuID      uuid.UUID
	SubMenuID   pgtype.UUID
	Name        string
	Description pgtype.Text
	Price       pgtype.Numeric
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ItemVariation struct {
	ID          uuid.UUID
	MenuItemID  uuid.UUID
	Name        string
	Price       pgtype.Numeric
	IsAvailable bool
}

type Order struct {
	ID              uuid.UUID
	CustomerID      uuid.UUID
	AdminID         pgtype.UUID
	RestaurantID    uuid.UUID
	DeliveryAddress string
	PaymentMethod   enum.PaymentMethod
	DeliveryFee     pgtype.Numeric
	TotalPrice      pgtype.Numeric
	Status          enum.OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	ID                  uuid.UUID
	OrderID             uuid.UUID
	ItemID              uuid.UUID
	Variation           pgtype.Text
	Quantity            int32
	UnitPrice           pgtype.Numeric
	SpecialInstructions pgtype.Text
	CreatedAt           time.Time
}

type Payment struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	PaymentMethod     enum.PaymentMethod
	Amount            pgtype.Numeric
	ProcessorIntentID pgtype.Text
	Status            enum.PaymentStatus
	RefundAmount      pgtype.Numeric
	RefundReason      pgtype.Text
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
