package database

import (
	"context"

	"github.com/google/uuid"

	"github.com/dishpatch/api/internal/enum"
)

const createUser = `
INSERT INTO users (name, email, hashed_password, role)
VALUES ($1, $2, $3, $4)
RETURNING id, name, email, hashed_password, role, created_at
`

type CreateUserParams struct {
	Name           string
	Email          string
	HashedPassword string
	Role           enum.Role
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.Name, arg.Email, arg.HashedPassword, arg.Role)
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, name, email, hashed_password, role, created_at
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt)
	return u, err
}

const getUserByID = `
SELECT id, name, email, hashed_password, role, created_at
FROM users
WHERE id = $1
`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.HashedPassword, &u.Role, &u.CreatedAt)
	return u, err
}

const createRestaurant = `
INSERT INTO restaurants (user_id, name)
VALUES ($1, $2)
RETURNING id, user_id, name, created_at
`

type CreateRestaurantParams struct {
	UserID uuid.UUID
	Name   string
}

func (q *Queries) CreateRestaurant(ctx context.Context, arg CreateRestaurantParams) (Restaurant, error) {
	row := q.db.QueryRow(ctx, createRestaurant, arg.UserID, arg.Name)
	var r Restaurant
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.CreatedAt)
	return r, err
}

const getRestaurantByUserID = `
SELECT id, user_id, name, created_at
FROM restaurants
WHERE user_id = $1
`

func (q *Queries) GetRestaurantByUserID(ctx context.Context, userID uuid.UUID) (Restaurant, error) {
	row := q.db.QueryRow(ctx, getRestaurantByUserID, userID)
	var r Restaurant
	err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.CreatedAt)
	return r, err
}
