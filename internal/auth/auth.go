// Package auth issues and verifies bearer tokens and manages account credentials.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RichardoC/orion/internal/db"
	"github.com/RichardoC/orion/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const MinPasswordLength = 6

var (
	ErrMissingCredentials = errors.New("email and password required")
	ErrPasswordTooShort   = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

type Service struct {
	store  db.Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

type Option func(*Service)

// WithBcryptCost overrides the hashing cost; tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the time source used for token issue and expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store db.Store, secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		store:  store,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates an account and returns a token for it.
func (s *Service) Signup(ctx context.Context, email, password string) (string, *models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, ErrMissingCredentials
	}
	if len(password) < MinPasswordLength {
		return "", nil, ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{Email: email, PasswordHash: string(hash)}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicateEmail) {
			return "", nil, ErrEmailTaken
		}
		return "", nil, err
	}

	tok, err := s.signToken(user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return tok, user, nil
}

// Login checks credentials. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", nil, ErrMissingCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrInvalidCredentials
	}

	tok, err := s.signToken(user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return tok, user, nil
}

// Me returns the account behind a verified token.
func (s *Service) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.store.GetUser(ctx, userID)
}
