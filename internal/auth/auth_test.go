package auth

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"Guardian/internal/models"
	"Guardian/internal/otp"
	"Guardian/pkg/cache"
	"Guardian/pkg/errors"
	"Guardian/pkg/notification"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService("", time.Hour)
	assert.True(t, errors.IsValidation(err))

	s, err := NewTokenService(secret, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, s.TTL())
}

func TestTokenRoundTrip(t *testing.T) {
	s, err := NewTokenService(secret, time.Hour)
	require.NoError(t, err)

	token, err := s.IssueToken(Identity{ID: "officer-1", Name: "Officer One", Role: models.RoleOfficer})
	require.NoError(t, err)

	id, err := s.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: "officer-1", Name: "Officer One", Role: models.RoleOfficer}, id)
	assert.True(t, id.IsOfficer())

	_, err = s.IssueToken(Identity{})
	assert.True(t, errors.IsValidation(err))
}

func TestValidateTokenRejects(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := now
	s, err := NewTokenService(secret, time.Hour, WithTokenClock(func() time.Time { return clock }))
	require.NoError(t, err)
	token, err := s.IssueToken(Identity{ID: "u1", Role: models.RoleUser})
	require.NoError(t, err)

	other, err := NewTokenService("another-secret", time.Hour, WithTokenClock(func() time.Time { return clock }))
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	assert.True(t, errors.IsUnauthorized(err), "wrong secret")

	_, err = s.ValidateToken("")
	assert.True(t, errors.IsUnauthorized(err))
	_, err = s.ValidateToken("not.a.token")
	assert.True(t, errors.IsUnauthorized(err))

	parts := strings.Split(token, ".")
	_, err = s.ValidateToken(parts[0] + "." + parts[1] + ".tampered")
	assert.True(t, errors.IsUnauthorized(err))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = s.ValidateToken(unsigned)
	assert.True(t, errors.IsUnauthorized(err), "alg none")

	clock = now.Add(2 * time.Hour)
	_, err = s.ValidateToken(token)
	assert.True(t, errors.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "expired")
}

type users map[string]*models.User

func (u users) FindByNationalID(ctx context.Context, nationalID string) (*models.User, error) {
	if user, ok := u[nationalID]; ok {
		return user, nil
	}
	return nil, errors.NotFound("user not found")
}

type failingUsers struct{}

func (failingUsers) FindByNationalID(context.Context, string) (*models.User, error) {
	return nil, errors.Transient(fmt.Errorf("connection refused"), "load user")
}

const registered = "234567890123"

func newLogin(t *testing.T) (*LoginService, *notification.MemorySMS, *TokenService) {
	t.Helper()
	c := cache.NewGoCache(cache.LocalConfig{})
	t.Cleanup(func() { _ = c.Close() })
	tokens, err := NewTokenService(secret, time.Hour)
	require.NoError(t, err)
	sms := &notification.MemorySMS{}
	u := users{registered: {ID: "officer-7", Name: "Officer Seven", Phone: "+919876543210", Role: models.RoleOfficer, NationalID: registered}}
	return NewLoginService(u, otp.NewStore(c), sms, tokens), sms, tokens
}

func TestOTPLogin(t *testing.T) {
	login, sms, tokens := newLogin(t)
	ctx := context.Background()

	require.NoError(t, login.RequestOTP(ctx, registered))
	sent := sms.Last()
	assert.Equal(t, "+919876543210", sent.Phone)
	assert.Len(t, sent.Code, otp.CodeLength)

	token, id, err := login.VerifyOTP(ctx, registered, sent.Code)
	require.NoError(t, err)
	assert.Equal(t, "officer-7", id.ID)
	assert.Equal(t, models.RoleOfficer, id.Role)

	parsed, err := tokens.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	// single use
	_, _, err = login.VerifyOTP(ctx, registered, sent.Code)
	assert.True(t, errors.Is(err, otp.ErrNotFound))
}

func TestOTPLoginFailures(t *testing.T) {
	login, sms, _ := newLogin(t)
	ctx := context.Background()

	for _, bad := range []string{"", "123456789012", "034567890123", "23456789012", "2345678901234", "23456789012a"} {
		err := login.RequestOTP(ctx, bad)
		assert.True(t, errors.IsValidation(err), bad)
	}

	err := login.RequestOTP(ctx, "987654321098")
	assert.True(t, errors.IsUnauthorized(err))
	assert.Empty(t, sms.Sent())

	_, _, err = login.VerifyOTP(ctx, registered, "123456")
	assert.True(t, errors.Is(err, otp.ErrNotFound))

	require.NoError(t, login.RequestOTP(ctx, registered))
	code := sms.Last().Code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, _, err = login.VerifyOTP(ctx, registered, wrong)
	assert.True(t, errors.Is(err, otp.ErrMismatch))
	_, _, err = login.VerifyOTP(ctx, registered, code)
	assert.NoError(t, err, "mismatch keeps the code")
}

func TestRequestOTPDeliveryFailure(t *testing.T) {
	login, sms, _ := newLogin(t)
	sms.Err = fmt.Errorf("gateway down")
	err := login.RequestOTP(context.Background(), registered)
	assert.True(t, errors.IsTransient(err))

	login.users = failingUsers{}
	err = login.RequestOTP(context.Background(), registered)
	assert.True(t, errors.IsTransient(err))
}
