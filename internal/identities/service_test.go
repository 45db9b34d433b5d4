package identities_test

import (
	"context"
	"testing"
	"time"

	"github.com/Aidin1998/investex/internal/identities"
	"github.com/Aidin1998/investex/pkg/errors"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/Aidin1998/investex/testutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const secret = "test-secret"

func newService(t *testing.T) *identities.Service {
	return identities.NewService(zap.NewNop(), testutil.NewDB(t), secret, 1, time.Second)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	req := &models.RegisterRequest{
		Name:     "Test User",
		Email:    "Test@Example.com",
		Password: "password123",
	}
	registered, err := svc.Register(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "test@example.com", registered.User.Email)
	assert.Equal(t, models.RoleUser, registered.Role)
	assert.NotEmpty(t, registered.Token)

	resp, err := svc.Login(ctx, &models.LoginRequest{Email: "test@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	identity, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, identity.UserID)
	assert.Equal(t, models.RoleUser, identity.Role)
	assert.False(t, identity.Role.Can(models.CapDecideDeposits))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	req := &models.RegisterRequest{Name: "A", Email: "a@example.com", Password: "password123"}
	_, err := svc.Register(ctx, req)
	require.NoError(t, err)

	_, err = svc.Register(ctx, req)
	assert.True(t, errors.Is(err, errors.Conflict))
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, &models.RegisterRequest{Name: "A", Email: "a@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, &models.LoginRequest{Email: "a@example.com", Password: "wrong-password"})
	assert.True(t, errors.Is(err, errors.Unauthorized))

	_, err = svc.Login(ctx, &models.LoginRequest{Email: "nobody@example.com", Password: "password123"})
	assert.True(t, errors.Is(err, errors.Unauthorized))
}

func TestValidateTokenRejectsForgedAndExpired(t *testing.T) {
	svc := newService(t)

	_, err := svc.ValidateToken("not-a-token")
	assert.True(t, errors.Is(err, errors.Unauthorized))

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, identities.Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7f1d7d6e-4a4e-4bde-9f76-5f6f0e8a1c11",
			Issuer:    "investex",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.True(t, errors.Is(err, errors.Unauthorized))

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, identities.Claims{
		Role: "user",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7f1d7d6e-4a4e-4bde-9f76-5f6f0e8a1c11",
			Issuer:    "investex",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err = expired.SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.True(t, errors.Is(err, errors.Unauthorized))
}

func TestValidateTokenRejectsUnknownRole(t *testing.T) {
	svc := newService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identities.Claims{
		Role: "superuser",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7f1d7d6e-4a4e-4bde-9f76-5f6f0e8a1c11",
			Issuer:    "investex",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = svc.ValidateToken(signed)
	assert.True(t, errors.Is(err, errors.Unauthorized))
}

func TestEnsureAdmin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	admin, err := svc.EnsureAdmin(ctx, "Admin", "admin@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, admin.Role)

	again, err := svc.EnsureAdmin(ctx, "Admin", "admin@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, again.ID)

	_, err = svc.EnsureAdmin(ctx, "Admin", "admin@example.com", "wrong-password")
	assert.True(t, errors.Is(err, errors.Unauthorized))

	_, err = svc.Register(ctx, &models.RegisterRequest{Name: "U", Email: "u@example.com", Password: "password123"})
	require.NoError(t, err)
	promoted, err := svc.EnsureAdmin(ctx, "U", "u@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, promoted.Role)

	resp, err := svc.Login(ctx, &models.LoginRequest{Email: "u@example.com", Password: "password123"})
	require.NoError(t, err)
	identity, err := svc.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.True(t, identity.Role.Can(models.CapDecideDeposits))
}
