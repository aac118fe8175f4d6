package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulseapp/backend/internal/client"
	"github.com/pulseapp/backend/internal/config"
	"github.com/pulseapp/backend/internal/db"
	"github.com/pulseapp/backend/internal/model"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrMisconfigured      = errors.New("auth config invalid")
)

// AuthStore is the persistence surface the auth service needs. *db.Postgres
// implements it; tests substitute fakes.
type AuthStore interface {
	ReconcileLogin(ctx context.Context, params db.LoginParams) (*model.User, uuid.UUID, error)
	BeginRequestTx(ctx context.Context, userID uuid.UUID) (pgx.Tx, error)
	SessionActive(ctx context.Context, tx pgx.Tx, sessionID, userID uuid.UUID) (bool, error)
	RevokeSession(ctx context.Context, sessionID, userID uuid.UUID) error
}

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   int
}

type AuthService struct {
	store      AuthStore
	verifier   client.TokenVerifier
	jwtSecret  []byte
	sessionTTL time.Duration
	cookieCfg  CookieConfig
	now        func() time.Time
}

type sessionClaims struct {
	UID string `json:"uid"`
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

func NewAuthService(store AuthStore, verifier client.TokenVerifier, cfg config.AuthConfig) (*AuthService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrMisconfigured)
	}

	sessionTTL, err := time.ParseDuration(cfg.SessionTTL)
	if err != nil || sessionTTL <= 0 {
		return nil, fmt.Errorf("%w: invalid SESSION_TTL", ErrMisconfigured)
	}

	cookieSecure := false
	if strings.TrimSpace(cfg.CookieSecure) != "" {
		cookieSecure, err = strconv.ParseBool(cfg.CookieSecure)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid AUTH_COOKIE_SECURE", ErrMisconfigured)
		}
	}

	cookiePath := cfg.CookiePath
	if strings.TrimSpace(cookiePath) == "" {
		cookiePath = "/"
	}

	return &AuthService{
		store:      store,
		verifier:   verifier,
		jwtSecret:  []byte(cfg.JWTSecret),
		sessionTTL: sessionTTL,
		cookieCfg: CookieConfig{
			Name:     cfg.CookieName,
			Path:     cookiePath,
			Domain:   cfg.CookieDomain,
			Secure:   cookieSecure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(sessionTTL.Seconds()),
		},
		now: time.Now,
	}, nil
}

func (s *AuthService) CookieConfig() CookieConfig {
	return s.cookieCfg
}

type AuthenticateInput struct {
	IDToken   string
	FCMToken  *string
	DeviceID  string
	UserAgent string
	IPAddress string
}

// Authenticate runs the full login pipeline: verify the external token, map
// its identities through the verification policy, reconcile user, identities
// and device session in one transaction, then mint the session token. The
// external call always finishes before any database work starts.
func (s *AuthService) Authenticate(ctx context.Context, in AuthenticateInput) (*model.AuthenticateResponse, error) {
	if strings.TrimSpace(in.IDToken) == "" || strings.TrimSpace(in.DeviceID) == "" {
		return nil, ErrInvalidInput
	}

	claims, err := s.verifier.Verify(ctx, in.IDToken)
	if err != nil {
		var rejected *client.ErrTokenRejected
		if errors.As(err, &rejected) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	identities := NormalizeIdentities(claims, s.now())
	upserts := make([]db.IdentityUpsert, 0, len(identities))
	for _, ident := range identities {
		upserts = append(upserts, db.IdentityUpsert{
			Provider:    ident.Provider,
			ProviderUID: ident.ProviderUID,
			VerifiedAt:  ident.VerifiedAt,
		})
	}

	userAgent := strings.TrimSpace(in.UserAgent)
	if userAgent == "" {
		userAgent = "unknown"
	}

	user, sessionID, err := s.store.ReconcileLogin(ctx, db.LoginParams{
		FirebaseUID: claims.UID,
		DisplayName: claims.DisplayName,
		AvatarURL:   claims.PhotoURL,
		Identities:  upserts,
		DeviceID:    in.DeviceID,
		FCMToken:    in.FCMToken,
		UserAgent:   userAgent,
		IPAddress:   in.IPAddress,
		AuthExp:     claims.Expiration,
	})
	if err != nil {
		if errors.Is(err, db.ErrUserDeactivated) {
			return nil, ErrAccountDeactivated
		}
		return nil, fmt.Errorf("login reconciliation failed: %w", err)
	}

	token, exp, err := s.generateSessionToken(user.ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session token signing failed: %w", err)
	}

	providerSlug := NormalizeProviderSlug(claims.ProviderID)

	var providerUID *string
	for _, ident := range identities {
		if ident.Provider == providerSlug {
			uid := ident.ProviderUID
			providerUID = &uid
			break
		}
	}

	isVerified := true
	if providerSlug == "password" {
		isVerified = claims.EmailVerified
	}

	return &model.AuthenticateResponse{
		ID:                         user.ID,
		FirebaseUID:                user.FirebaseUID,
		SessionID:                  sessionID,
		Username:                   user.Username,
		DisplayName:                user.DisplayName,
		Bio:                        user.Bio,
		AvatarURL:                  user.AvatarURL,
		Gender:                     user.Gender,
		DOB:                        user.DOB,
		CurrentAuthProviderSlug:    providerSlug,
		CurrentProviderInternalUID: providerUID,
		IsVerified:                 isVerified,
		Token:                      token,
		Exp:                        exp,
	}, nil
}

// ParseSessionToken is the cheap check: signature and expiry only. Enough to
// gate UI redirects, never enough for data access.
func (s *AuthService) ParseSessionToken(tokenStr string) (*model.AuthUser, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.UID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	sessionID, err := uuid.Parse(claims.SID)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &model.AuthUser{UserID: userID, SessionID: sessionID}, nil
}

// OpenRequestSession is the strong check: valid signature plus a live session
// row. On success it returns the open RLS-scoped transaction for the request;
// the caller owns commit/rollback. On failure nothing stays open.
func (s *AuthService) OpenRequestSession(ctx context.Context, tokenStr string) (pgx.Tx, *model.AuthUser, error) {
	user, err := s.ParseSessionToken(tokenStr)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.store.BeginRequestTx(ctx, user.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open request transaction: %w", err)
	}

	active, err := s.store.SessionActive(ctx, tx, user.SessionID, user.UserID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, nil, fmt.Errorf("session lookup failed: %w", err)
	}
	if !active {
		_ = tx.Rollback(ctx)
		return nil, nil, ErrUnauthorized
	}

	return tx, user, nil
}

// Logout revokes the token's backing session. A token that no longer parses
// is treated as already logged out.
func (s *AuthService) Logout(ctx context.Context, tokenStr string) error {
	user, err := s.ParseSessionToken(tokenStr)
	if err != nil {
		return nil
	}
	return s.store.RevokeSession(ctx, user.SessionID, user.UserID)
}

func (s *AuthService) generateSessionToken(userID, sessionID uuid.UUID) (string, int64, error) {
	now := s.now()
	exp := now.Add(s.sessionTTL)
	claims := sessionClaims{
		UID: userID.String(),
		SID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, exp.Unix(), nil
}
