package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/upb/yapi/internal/auth"
	"github.com/upb/yapi/models"
	"github.com/upb/yapi/repositories"
	"go.uber.org/zap"
)

// TokenConfig holds token lifetime and storage write settings
type TokenConfig struct {
	TTL          time.Duration // lifetime of issued tokens
	WriteTimeout time.Duration // bound for writes detached from the request
}

// DefaultTokenConfig returns the default token configuration
func DefaultTokenConfig() TokenConfig {
	return TokenConfig{
		TTL:          7 * 24 * time.Hour,
		WriteTimeout: 10 * time.Second,
	}
}

// IssuedToken is the result of a successful issue
type IssuedToken struct {
	Token     string              `json:"token"`
	TokenID   uuid.UUID           `json:"-"`
	ExpiresAt time.Time           `json:"-"`
	Payload   models.TokenPayload `json:"-"`
}

// TokenService issues, verifies and revokes authentication tokens
type TokenService struct {
	txMgr        repositories.TransactionManager
	repos        *repositories.Repositories
	codec        *auth.TokenCodec
	credentials  *CredentialService
	loader       PayloadLoader
	auditor      Auditor
	logger       *zap.Logger
	ttl          time.Duration
	writeTimeout time.Duration
	now          func() time.Time
}

// NewTokenService creates a new TokenService. A nil auditor discards audit entries.
func NewTokenService(
	txMgr repositories.TransactionManager,
	repos *repositories.Repositories,
	codec *auth.TokenCodec,
	credentials *CredentialService,
	loader PayloadLoader,
	auditor Auditor,
	logger *zap.Logger,
	cfg TokenConfig,
) *TokenService {
	defaults := DefaultTokenConfig()
	if cfg.TTL <= 0 {
		cfg.TTL = defaults.TTL
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if auditor == nil {
		auditor = NopAuditor{}
	}
	return &TokenService{
		txMgr:        txMgr,
		repos:        repos,
		codec:        codec,
		credentials:  credentials,
		loader:       loader,
		auditor:      auditor,
		logger:       logger,
		ttl:          cfg.TTL,
		writeTimeout: cfg.WriteTimeout,
		now:          time.Now,
	}
}

// WithClock replaces the time source used for issuing and expiry checks.
// The codec passed to the constructor should share the same clock.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// detached returns a context that survives request cancellation but is bounded by the write timeout
func (s *TokenService) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
}

// Issue creates a token for user. All previously valid tokens of the user are
// invalidated in the same transaction, which also locks the user row so
// concurrent issues for one user serialise.
func (s *TokenService) Issue(ctx context.Context, user *models.User) (*IssuedToken, error) {
	if err := s.loader.LoadUser(ctx, user); err != nil {
		return nil, err
	}
	payload := auth.BuildPayload(user)

	now := s.now().UTC()
	tokenID := uuid.New()
	claims := auth.NewClaims(tokenID, payload, now, s.ttl)
	raw, err := s.codec.Sign(claims)
	if err != nil {
		return nil, WrapInternal("failed to sign token", err)
	}

	record := &models.UserToken{
		ID:        tokenID,
		UserID:    user.ID,
		TokenHash: auth.HashToken(raw),
		IsValid:   true,
		IssuedAt:  claims.IssuedAt.Time.UTC(),
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}

	writeCtx, cancel := s.detached(ctx)
	defer cancel()

	revoked, err := WithTransactionResult(writeCtx, s.txMgr, func(ctx context.Context, tx repositories.Transaction) (int64, error) {
		if err := s.repos.Users.MarkLogin(ctx, user.ID, now); err != nil {
			return 0, FromRepository(err, ErrUserNotFound, nil)
		}
		n, err := s.repos.Tokens.InvalidateAll(ctx, user.ID)
		if err != nil {
			return 0, FromRepository(err, nil, nil)
		}
		if err := s.repos.Tokens.Create(ctx, record); err != nil {
			return 0, FromRepository(err, nil, ErrConflict)
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}

	user.LastLoginAt = &now
	s.logger.Info("token issued",
		zap.String("user_id", user.ID.String()),
		zap.String("token_id", tokenID.String()),
		zap.Int64("revoked", revoked))

	return &IssuedToken{
		Token:     raw,
		TokenID:   tokenID,
		ExpiresAt: record.ExpiresAt,
		Payload:   payload,
	}, nil
}

// Authenticate verifies the credentials and issues a token
func (s *TokenService) Authenticate(ctx context.Context, identifier, password string) (*IssuedToken, error) {
	user, err := s.credentials.VerifyCredentials(ctx, identifier, password)
	if err != nil {
		if IsUnauthorizedError(err) {
			s.auditor.Record(auditEntry(ctx, models.AuditActionLoginFailed, "user").
				WithDetails(map[string]string{"identifier": identifier}).
				WithError(401, string(GetErrorCode(err))))
		}
		return nil, err
	}

	issued, err := s.Issue(ctx, user)
	if err != nil {
		return nil, err
	}

	s.auditor.Record(auditEntry(ctx, models.AuditActionLoginSucceeded, "user").
		WithUser(user.ID).
		WithResource(user.ID))
	return issued, nil
}

// InvalidateAll marks every valid token of the user invalid. Calling it again
// is harmless and reports zero.
func (s *TokenService) InvalidateAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	writeCtx, cancel := s.detached(ctx)
	defer cancel()

	n, err := s.repos.Tokens.InvalidateAll(writeCtx, userID)
	if err != nil {
		return 0, FromRepository(err, nil, nil)
	}
	return n, nil
}

// Logout invalidates every token of the user
func (s *TokenService) Logout(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.InvalidateAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("user logged out", zap.String("user_id", userID.String()), zap.Int64("revoked", n))
	s.auditor.Record(auditEntry(ctx, models.AuditActionLogout, "token").
		WithUser(userID).
		WithResource(userID))
	return n, nil
}

// Validate checks structure, signature and expiry of raw without consulting storage
func (s *TokenService) Validate(raw string) (*auth.Claims, error) {
	claims, err := s.codec.Parse(raw)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			return nil, ErrTokenExpired.Wrap(err)
		case errors.Is(err, auth.ErrInvalidSignature):
			return nil, ErrInvalidSignature.Wrap(err)
		default:
			return nil, ErrMalformedToken.Wrap(err)
		}
	}
	return claims, nil
}

// CheckStored verifies that the token raw with the given claims is the stored,
// still valid token of its owner
func (s *TokenService) CheckStored(ctx context.Context, raw string, claims *auth.Claims) error {
	tokenID, err := claims.TokenID()
	if err != nil {
		return ErrMalformedToken.Wrap(err)
	}
	userID, err := claims.UserID()
	if err != nil {
		return ErrMalformedToken.Wrap(err)
	}

	record, err := s.repos.Tokens.GetByID(ctx, tokenID)
	if err != nil {
		return FromRepository(err, ErrTokenRevoked, nil)
	}

	if record.UserID != userID ||
		subtle.ConstantTimeCompare([]byte(record.TokenHash), []byte(auth.HashToken(raw))) != 1 {
		return ErrTokenRevoked
	}
	if !record.IsValid {
		return ErrTokenRevoked
	}
	if record.IsExpired(s.now()) {
		return ErrTokenExpired
	}
	return nil
}

// Verify runs Validate and CheckStored and returns the claims of an
// authenticated token. Rejections are written to the audit trail.
func (s *TokenService) Verify(ctx context.Context, raw string) (*auth.Claims, error) {
	if raw == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.Validate(raw)
	if err == nil {
		err = s.CheckStored(ctx, raw, claims)
	}
	if err != nil {
		if IsUnauthorizedError(err) {
			entry := auditEntry(ctx, models.AuditActionTokenRejected, "token").
				WithError(401, string(GetErrorCode(err)))
			if claims != nil {
				if userID, idErr := claims.UserID(); idErr == nil {
					entry.WithResource(userID)
				}
			}
			s.auditor.Record(entry)
		}
		return nil, err
	}
	return claims, nil
}
