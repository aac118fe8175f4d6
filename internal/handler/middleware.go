package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/pulseapp/backend/internal/metrics"
	"github.com/pulseapp/backend/internal/model"
	"github.com/pulseapp/backend/internal/service"
)

const requestAuthKey = "request_auth"

// RequestAuth is what the access guard hands to protected handlers: the
// authenticated principal and the open RLS-scoped transaction.
type RequestAuth struct {
	User *model.AuthUser
	Tx   pgx.Tx
}

// findSessionToken walks the candidate sources in order: Authorization
// header, "token" query parameter, the session cookie, then a plain "token"
// cookie. First match wins.
func findSessionToken(c *gin.Context, cookieName string) (string, bool) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token, true
		}
	}

	if token := c.Query("token"); token != "" {
		return token, true
	}

	if cookieName != "" {
		if token, err := c.Cookie(cookieName); err == nil && token != "" {
			return token, true
		}
	}

	if token, err := c.Cookie("token"); err == nil && token != "" {
		return token, true
	}

	return "", false
}

// RequireSession is the guard for data-access routes. It runs the strong
// session check, opens the per-request transaction with the RLS context set,
// and finishes that transaction after the handler: rollback when the handler
// recorded an error, aborted, or answered 5xx, commit otherwise.
func RequireSession(svc AuthService, m metrics.Recorder) gin.HandlerFunc {
	if m == nil {
		m = metrics.Nop{}
	}
	cookieName := svc.CookieConfig().Name

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		token, ok := findSessionToken(c, cookieName)
		if !ok {
			m.RecordGuardRejection("missing_token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		tx, user, err := svc.OpenRequestSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, service.ErrUnauthorized) {
				m.RecordGuardRejection("invalid_session")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			} else {
				m.RecordGuardRejection("internal")
				log.Printf("Access guard failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
			}
			c.Abort()
			return
		}

		c.Set(requestAuthKey, &RequestAuth{User: user, Tx: tx})
		c.Next()

		ctx := c.Request.Context()
		if c.IsAborted() || len(c.Errors) > 0 || c.Writer.Status() >= http.StatusInternalServerError {
			_ = tx.Rollback(ctx)
			return
		}
		if err := tx.Commit(ctx); err != nil {
			log.Printf("Request transaction commit failed: %v", err)
		}
	}
}

// RedirectIfAuthenticated gates UI entry points with the cheap check only:
// a token with a valid signature and unexpired claims skips the auth page.
func RedirectIfAuthenticated(svc AuthService, target string) gin.HandlerFunc {
	cookieName := svc.CookieConfig().Name

	return func(c *gin.Context) {
		if token, ok := findSessionToken(c, cookieName); ok {
			if _, err := svc.ParseSessionToken(token); err == nil {
				c.Redirect(http.StatusSeeOther, target)
				c.Abort()
				return
			}
		}
		c.Next()
	}
}

// GetRequestAuth returns the guard-established principal and transaction.
func GetRequestAuth(c *gin.Context) (*RequestAuth, bool) {
	if value, ok := c.Get(requestAuthKey); ok {
		if auth, ok := value.(*RequestAuth); ok {
			return auth, true
		}
	}
	return nil, false
}

func CORSMiddleware(allowedOrigins []string, allowCredentials bool) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				if allowCredentials {
					c.Header("Access-Control-Allow-Credentials", "true")
				}
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
