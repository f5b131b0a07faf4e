package auth_test

import (
	"testing"

	"github.com/google/uuid"

	"github.com/dishpatch/api/internal/auth"
	"github.com/dishpatch/api/internal/enum"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()
	restaurantID := uuid.New()

	token, err := auth.GenerateToken(secret, userID, restaurantID, enum.RoleRestaurant)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	claims, err := auth.ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("user ID: got %v, want %v", claims.UserID, userID)
	}
	if claims.RestaurantID != restaurantID {
		t.Errorf("restaurant ID: got %v, want %v", claims.RestaurantID, restaurantID)
	}
	if claims.Role != enum.RoleRestaurant {
		t.Errorf("role: got %v, want %v", claims.Role, enum.RoleRestaurant)
	}
}

func TestValidateTokenWithWrongSecret(t *testing.T) {
	token, err := auth.GenerateToken("secret-a", uuid.New(), uuid.Nil, enum.RoleCustomer)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	_, err = auth.ValidateToken("secret-b", token)
	if err == nil {
		t.Fatal("expected error validating with wrong secret")
	}
}

func TestValidateTokenWithInvalidString(t *testing.T) {
	_, err := auth.ValidateToken("secret", "not-a-jwt")
	if err == nil {
		t.Fatal("expected error validating invalid token string")
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()

	token, err := auth.GenerateRefreshToken(secret, userID)
	if err != nil {
		t.Fatalf("generate refresh token: %v", err)
	}

	got, err := auth.ValidateRefreshToken(secret, token)
	if err != nil {
		t.Fatalf("validate refresh token: %v", err)
	}
	if got != userID {
		t.Errorf("user ID: got %v, want %v", got, userID)
	}
}

func TestRefreshTokenRejectsAccessToken(t *testing.T) {
	secret := "test-secret"
	userID := uuid.New()

	// An access token is not an acceptable refresh token: it carries
	// different claims and must not mint new token pairs.
	access, err := auth.GenerateToken(secret, userID, uuid.Nil, enum.RoleCustomer)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	if _, err := auth.ValidateRefreshToken(secret, access); err == nil {
		t.Fatal("expected access token to be rejected as refresh token")
	}
}
