package handler_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"

	"github.com/dishpatch/api/internal/auth"
	"github.com/dishpatch/api/internal/database"
	"github.com/dishpatch/api/internal/enum"
	"github.com/dishpatch/api/internal/handler"
)

// --- Mock AuthStore ---

type mockAuthStore struct {
	createUserFn            func(ctx context.Context, arg database.CreateUserParams) (database.User, error)
	getUserByEmailFn        func(ctx context.Context, email string) (database.User, error)
	getUserByIDFn           func(ctx context.Context, id uuid.UUID) (database.User, error)
	createRestaurantFn      func(ctx context.Context, arg database.CreateRestaurantParams) (database.Restaurant, error)
	getRestaurantByUserIDFn func(ctx context.Context, userID uuid.UUID) (database.Restaurant, error)
}

func (m *mockAuthStore) CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
	if m.createUserFn != nil {
		return m.createUserFn(ctx, arg)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockAuthStore) GetUserByEmail(ctx context.Context, email string) (database.User, error) {
	if m.getUserByEmailFn != nil {
		return m.getUserByEmailFn(ctx, email)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockAuthStore) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	if m.getUserByIDFn != nil {
		return m.getUserByIDFn(ctx, id)
	}
	return database.User{}, pgx.ErrNoRows
}

func (m *mockAuthStore) CreateRestaurant(ctx context.Context, arg database.CreateRestaurantParams) (database.Restaurant, error) {
	if m.createRestaurantFn != nil {
		return m.createRestaurantFn(ctx, arg)
	}
	return database.Restaurant{}, pgx.ErrNoRows
}

func (m *mockAuthStore) GetRestaurantByUserID(ctx context.Context, userID uuid.UUID) (database.Restaurant, error) {
	if m.getRestaurantByUserIDFn != nil {
		return m.getRestaurantByUserIDFn(ctx, userID)
	}
	return database.Restaurant{}, pgx.ErrNoRows
}

// --- Mock TxBeginner ---

// mockTx is a no-op pgx.Tx for handlers that just need Begin/Commit/Rollback.
type mockTx struct{}

func (m *mockTx) Commit(ctx context.Context) error   { return nil }
func (m *mockTx) Rollback(ctx context.Context) error { return nil }
func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, nil
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return nil
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *mockTx) Conn() *pgx.Conn { return nil }

type mockPool struct{}

func (m *mockPool) Begin(ctx context.Context) (pgx.Tx, error) {
	return &mockTx{}, nil
}

// --- Test helpers ---

func setupAuthRouter(store *mockAuthStore) *chi.Mux {
	newStore := func(db database.DBTX) handler.AuthStore { return store }
	h := handler.NewAuthHandler(store, &mockPool{}, newStore, testJWTSecret)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return string(hashed)
}

// --- Tests ---

func TestRegister_Customer(t *testing.T) {
	store := &mockAuthStore{
		createUserFn: func(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
			if arg.Role != enum.RoleCustomer {
				t.Errorf("role: got %v, want customer", arg.Role)
			}
			if arg.HashedPassword == "password123" {
				t.Error("password stored in plain text")
			}
			return database.User{ID: uuid.New(), Name: arg.Name, Email: arg.Email, Role: arg.Role}, nil
		},
	}
	router := setupAuthRouter(store)

	rr := doAuthRequest(t, router, "POST", "/auth/register", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "password123",
	}, nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	accessToken, _ := resp["access_token"].(string)
	if accessToken == "" {
		t.Fatal("missing access_token")
	}
	if resp["refresh_token"] == "" {
		t.Fatal("missing refresh_token")
	}

	claims, err := auth.ValidateToken(testJWTSecret, accessToken)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.Role != enum.RoleCustomer {
		t.Errorf("token role: got %v, want customer", claims.Role)
	}
	if claims.RestaurantID != uuid.Nil {
		t.Errorf("customer token must not carry a restaurant, got %v", claims.RestaurantID)
	}
}

func TestRegister_RestaurantGetsRestaurantClaim(t *testing.T) {
	restaurantID := uuid.New()
	store := &mockAuthStore{
		createUserFn: func(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
			return database.User{ID: uuid.New(), Name: arg.Name, Email: arg.Email, Role: arg.Role}, nil
		},
		createRestaurantFn: func(ctx context.Context, arg database.CreateRestaurantParams) (database.Restaurant, error) {
			if arg.Name != "Demo Kitchen" {
				t.Errorf("restaurant name: got %q", arg.Name)
			}
			return database.Restaurant{ID: restaurantID, UserID: arg.UserID, Name: arg.Name}, nil
		},
	}
	router := setupAuthRouter(store)

	rr := doAuthRequest(t, router, "POST", "/auth/register", map[string]string{
		"name":            "Bob",
		"email":           "bob@example.com",
		"password":        "password123",
		"role":            "restaurant",
		"restaurant_name": "Demo Kitchen",
	}, nil)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	claims, err := auth.ValidateToken(testJWTSecret, resp["access_token"].(string))
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.RestaurantID != restaurantID {
		t.Errorf("token restaurant: got %v, want %v", claims.RestaurantID, restaurantID)
	}
}

func TestRegister_RestaurantWithoutName(t *testing.T) {
	router := setupAuthRouter(&mockAuthStore{})

	rr := doAuthRequest(t, router, "POST", "/auth/register", map[string]string{
		"name":     "Bob",
		"email":    "bob@example.com",
		"password": "password123",
		"role":     "restaurant",
	}, nil)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegister_AdminRoleRejected(t *testing.T) {
	router := setupAuthRouter(&mockAuthStore{})

	rr := doAuthRequest(t, router, "POST", "/auth/register", map[string]string{
		"name":     "Eve",
		"email":    "eve@example.com",
		"password": "password123",
		"role":     "admin",
	}, nil)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegister_ShortPassword(t *testing.T) {
	router := setupAuthRouter(&mockAuthStore{})

	rr := doAuthRequest(t, router, "POST", "/auth/register", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "short",
	}, nil)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	store := &mockAuthStore{
		createUserFn: func(ctx context.Context, arg database.CreateUserParams) (database.User, error) {
			return database.User{}, &pgconn.PgError{Code: "23505"}
		},
	}
	router := setupAuthRouter(store)

	rr := doAuthRequest(t, router, "POST", "/auth/register", map[string]string{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "password123",
	}, nil)

	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusConflict)
	}
}

func TestLogin_HappyPath(t *testing.T) {
	password := "password123"
	user := database.User{
		ID:             uuid.New(),
		Name:           "Alice",
		Email:          "alice@example.com",
		HashedPassword: "",
		Role:           enum.RoleCustomer,
	}

	store := &mockAuthStore{
		getUserByEmailFn: func(ctx context.Context, email string) (database.User, error) {
			if email != user.Email {
				return database.User{}, pgx.ErrNoRows
			}
			return user, nil
		},
	}
	user.HashedPassword = hashPassword(t, password)
	router := setupAuthRouter(store)

	rr := doAuthRequest(t, router, "POST", "/auth/login", map[string]string{
		"email":    user.Email,
		"password": password,
	}, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	u := resp["user"].(map[string]interface{})
	if u["email"] != user.Email || u["role"] != "customer" {
		t.Errorf("user: got %v", u)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	user := database.User{
		ID:             uuid.New(),
		Email:          "alice@example.com",
		HashedPassword: "",
		Role:           enum.RoleCustomer,
	}
	store := &mockAuthStore{
		getUserByEmailFn: func(ctx context.Context, email string) (database.User, error) {
			return user, nil
		},
	}
	user.HashedPassword = hashPassword(t, "password123")
	router := setupAuthRouter(store)

	rr := doAuthRequest(t, router, "POST", "/auth/login", map[string]string{
		"email":    user.Email,
		"password": "wrong-password",
	}, nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestLogin_UnknownEmail(t *testing.T) {
	router := setupAuthRouter(&mockAuthStore{})

	rr := doAuthRequest(t, router, "POST", "/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "password123",
	}, nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRefresh_HappyPath(t *testing.T) {
	user := database.User{ID: uuid.New(), Name: "Alice", Email: "alice@example.com", Role: enum.RoleCustomer}
	store := &mockAuthStore{
		getUserByIDFn: func(ctx context.Context, id uuid.UUID) (database.User, error) {
			if id != user.ID {
				return database.User{}, pgx.ErrNoRows
			}
			return user, nil
		},
	}
	router := setupAuthRouter(store)

	refreshToken, err := auth.GenerateRefreshToken(testJWTSecret, user.ID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	rr := doAuthRequest(t, router, "POST", "/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	}, nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	resp := decodeBody(t, rr)
	if resp["access_token"] == "" || resp["refresh_token"] == "" {
		t.Fatal("expected a fresh token pair")
	}
}

func TestRefresh_InvalidToken(t *testing.T) {
	router := setupAuthRouter(&mockAuthStore{})

	rr := doAuthRequest(t, router, "POST", "/auth/refresh", map[string]string{
		"refresh_token": "not-a-token",
	}, nil)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
