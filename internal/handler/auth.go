package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulseapp/backend/internal/metrics"
	"github.com/pulseapp/backend/internal/model"
	"github.com/pulseapp/backend/internal/service"
)

// AuthService is the slice of *service.AuthService the handlers need. Tests
// substitute fakes.
type AuthService interface {
	Authenticate(ctx context.Context, in service.AuthenticateInput) (*model.AuthenticateResponse, error)
	ParseSessionToken(tokenStr string) (*model.AuthUser, error)
	OpenRequestSession(ctx context.Context, tokenStr string) (pgx.Tx, *model.AuthUser, error)
	Logout(ctx context.Context, tokenStr string) error
	CookieConfig() service.CookieConfig
}

// UserStore covers the reads the auth handlers perform outside the login
// transaction.
type UserStore interface {
	GetUserByID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*model.User, error)
	ListActiveProviders(ctx context.Context) ([]model.ProviderType, error)
}

type AuthHandler struct {
	svc     AuthService
	users   UserStore
	metrics metrics.Recorder
}

func NewAuthHandler(svc AuthService, users UserStore, m metrics.Recorder) *AuthHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	return &AuthHandler{svc: svc, users: users, metrics: m}
}

// Authenticate godoc
// @Summary Authenticate with a Firebase ID token
// @Description Verifies the ID token, reconciles the user and identities, and issues a device session token.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.AuthenticateRequest true "ID token and device info"
// @Success 200 {object} model.AuthenticateResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/auth/authenticate [post]
func (h *AuthHandler) Authenticate(c *gin.Context) {
	var req model.AuthenticateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	userAgent := c.Request.UserAgent()
	if req.UserAgent != nil && *req.UserAgent != "" {
		userAgent = *req.UserAgent
	}

	start := time.Now()
	res, err := h.svc.Authenticate(c.Request.Context(), service.AuthenticateInput{
		IDToken:   req.IDToken,
		FCMToken:  req.FCMToken,
		DeviceID:  req.DeviceID,
		UserAgent: userAgent,
		IPAddress: c.ClientIP(),
	})
	h.metrics.RecordLoginLatency(time.Since(start))
	if err != nil {
		h.metrics.RecordLogin("unknown", "failure")
		writeAuthError(c, err)
		return
	}
	h.metrics.RecordLogin(res.CurrentAuthProviderSlug, "success")

	h.setSessionCookie(c, res.Token)
	c.JSON(http.StatusOK, res)
}

// Logout godoc
// @Summary Logout
// @Description Revokes the session behind the presented token (if any) and clears the cookie.
// @Tags auth
// @Produce json
// @Success 200 {object} model.AuthLogoutResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	if token, ok := findSessionToken(c, h.svc.CookieConfig().Name); ok {
		if err := h.svc.Logout(c.Request.Context(), token); err != nil {
			log.Printf("Failed to revoke session: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
			return
		}
	}
	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, model.AuthLogoutResponse{Status: "logged_out"})
}

// Me godoc
// @Summary Get current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AuthMeResponse
// @Failure 401 {object} model.ErrorResponse
// @Router /api/auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	auth, ok := GetRequestAuth(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.users.GetUserByID(c.Request.Context(), auth.Tx, auth.User.UserID)
	if err != nil {
		_ = c.Error(err)
		log.Printf("Failed to load user %s: %v", auth.User.UserID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	var dob *string
	if user.DOB != nil {
		formatted := user.DOB.Format("2006-01-02")
		dob = &formatted
	}

	c.JSON(http.StatusOK, model.AuthMeResponse{
		ID:          user.ID.String(),
		FirebaseUID: user.FirebaseUID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Bio:         user.Bio,
		AvatarURL:   user.AvatarURL,
		Gender:      user.Gender,
		DOB:         dob,
		SessionID:   auth.User.SessionID.String(),
	})
}

// Providers godoc
// @Summary List active auth providers
// @Tags auth
// @Produce json
// @Success 200 {object} model.ProvidersResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/auth/providers [get]
func (h *AuthHandler) Providers(c *gin.Context) {
	providers, err := h.users.ListActiveProviders(c.Request.Context())
	if err != nil {
		log.Printf("Failed to list providers: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}
	c.JSON(http.StatusOK, model.ProvidersResponse{Providers: providers})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, token string) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, token, cfg.MaxAge, cfg.Path, cfg.Domain, cfg.Secure, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	cfg := h.svc.CookieConfig()
	c.SetSameSite(cfg.SameSite)
	c.SetCookie(cfg.Name, "", -1, cfg.Path, cfg.Domain, cfg.Secure, true)
}

// writeAuthError maps service failures onto the wire. Internal causes never
// reach the client; they go to the server log only.
func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, service.ErrAccountDeactivated):
		c.JSON(http.StatusForbidden, gin.H{"error": "account deactivated"})
	default:
		log.Printf("Authenticate failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}
