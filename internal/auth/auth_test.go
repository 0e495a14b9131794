package auth

import (
	"context"
	"testing"
	"time"

	"github.com/RichardoC/orion/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-0123456789"

func newTestService(opts ...Option) *Service {
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return NewService(db.NewMemoryStorage(), testSecret, time.Hour, opts...)
}

func TestSignupThenLogin(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	tok, user, err := s.Signup(ctx, "  Ada@Example.com ", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "hunter22", user.PasswordHash)

	claims, err := s.ParseToken(tok)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "ada@example.com", claims.Email)

	loginTok, loginUser, err := s.Login(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loginUser.ID)

	claims, err = s.ParseToken(loginTok)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	me, err := s.Me(ctx, claims.UserID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", me.Email)
}

func TestSignupValidation(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, _, err := s.Signup(ctx, "", "hunter22")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, _, err = s.Signup(ctx, "a@b.c", "")
	assert.ErrorIs(t, err, ErrMissingCredentials)
	_, _, err = s.Signup(ctx, "a@b.c", "short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, _, err = s.Signup(ctx, "a@b.c", "longenough")
	require.NoError(t, err)
	_, _, err = s.Signup(ctx, "A@B.C", "longenough")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginFailuresAreAuthorizationErrors(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	_, _, err := s.Signup(ctx, "ada@example.com", "hunter22")
	require.NoError(t, err)

	for _, pw := range []string{"hunter23", "HUNTER22", "hunter2", "x"} {
		_, _, err := s.Login(ctx, "ada@example.com", pw)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "password %q", pw)
	}

	_, _, err = s.Login(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseToken_Rejects(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	s := newTestService(WithClock(clock))

	tok, _, err := s.Signup(context.Background(), "ada@example.com", "hunter22")
	require.NoError(t, err)

	_, err = s.ParseToken(tok)
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, err = s.ParseToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken, "expired token")

	other := NewService(db.NewMemoryStorage(), "a-different-secret-xyz", time.Hour, WithClock(clock))
	otherTok, err := other.signToken("someone", "s@example.com")
	require.NoError(t, err)
	_, err = s.ParseToken(otherTok)
	assert.ErrorIs(t, err, ErrInvalidToken, "foreign signature")

	_, err = s.ParseToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
