// Package service contains application services for authentication and notes.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	pkgcrypto "github.com/and161185/notes-service/internal/crypto"
	"github.com/and161185/notes-service/internal/errs"
	"github.com/and161185/notes-service/internal/limiter"
	"github.com/and161185/notes-service/internal/model"
	"github.com/and161185/notes-service/internal/repository"
	"github.com/and161185/notes-service/internal/token"
)

// AuthService defines account registration and login.
type AuthService interface {
	// Register creates a new user with secure password hashing.
	Register(ctx context.Context, username, password string) (model.User, error)
	// Login applies rate limiting and authenticates the user, returning tokens.
	Login(ctx context.Context, username, password, ip string) (model.Tokens, error)
}

type AuthServiceImpl struct {
	users        repository.UserRepository
	tokens       *token.Service
	lim          limiter.Limiter
	storeTimeout time.Duration
}

// NewAuthService constructs AuthService with required dependencies.
// storeTimeout bounds every store-backed call (users and limiter).
func NewAuthService(users repository.UserRepository, tokens *token.Service, lim limiter.Limiter, storeTimeout time.Duration) *AuthServiceImpl {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &AuthServiceImpl{users: users, tokens: tokens, lim: lim, storeTimeout: storeTimeout}
}

func (s *AuthServiceImpl) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.storeTimeout)
}

// Register creates a new user record with a per-user salt.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (model.User, error) {
	if username == "" || password == "" {
		return model.User{}, fmt.Errorf("%w: empty username/password", errs.ErrValidation)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, err
	}
	salt, err := pkgcrypto.NewSalt()
	if err != nil {
		return model.User{}, err
	}

	u := &model.User{
		ID:       uid,
		Username: username,
		PwdHash:  pkgcrypto.HashPassword([]byte(password), salt),
		Salt:     salt,
	}
	sctx, cancel := s.storeCtx(ctx)
	err = s.users.Create(sctx, u)
	cancel()
	if err != nil {
		return model.User{}, err
	}
	return *u, nil
}

// Login authenticates with rate limiting by (username, ip). Unknown usernames
// and wrong passwords both map to ErrUnauthorized so callers cannot enumerate
// accounts.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password, ip string) (model.Tokens, error) {
	ipHash := limiter.HashIP(ip)

	actx, cancel := s.storeCtx(ctx)
	allowed, _, err := s.lim.Allow(actx, username, ipHash)
	cancel()
	if err != nil {
		return model.Tokens{}, err
	}
	if !allowed {
		return model.Tokens{}, errs.ErrRateLimited
	}

	uctx, cancel := s.storeCtx(ctx)
	u, err := s.users.GetByUsername(uctx, username)
	cancel()
	if err != nil || !pkgcrypto.VerifyPassword([]byte(password), u.Salt, u.PwdHash) {
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			// store failure, not a credential mismatch
			return model.Tokens{}, err
		}
		fctx, cancel := s.storeCtx(ctx)
		blocked, _, ferr := s.lim.Failure(fctx, username, ipHash)
		cancel()
		if ferr == nil && blocked {
			return model.Tokens{}, errs.ErrRateLimited
		}
		return model.Tokens{}, errs.ErrUnauthorized
	}

	// Success: reset counters (best-effort).
	sctx, cancel := s.storeCtx(ctx)
	_ = s.lim.Success(sctx, username, ipHash)
	cancel()

	access, exp, err := s.tokens.Issue(u.Username)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, ExpiresAt: exp}, nil
}
