package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pulseapp/backend/internal/model"
	"github.com/pulseapp/backend/internal/service"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type fakeAuthService struct {
	authRes   *model.AuthenticateResponse
	authErr   error
	openTx    *fakeTx
	openUser  *model.AuthUser
	openErr   error
	parseErr  error
	logoutErr error

	seenToken string
	revoked   []string
}

func (f *fakeAuthService) Authenticate(ctx context.Context, in service.AuthenticateInput) (*model.AuthenticateResponse, error) {
	if f.authErr != nil {
		return nil, f.authErr
	}
	return f.authRes, nil
}

func (f *fakeAuthService) ParseSessionToken(tokenStr string) (*model.AuthUser, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.openUser, nil
}

func (f *fakeAuthService) OpenRequestSession(ctx context.Context, tokenStr string) (pgx.Tx, *model.AuthUser, error) {
	f.seenToken = tokenStr
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	return f.openTx, f.openUser, nil
}

func (f *fakeAuthService) Logout(ctx context.Context, tokenStr string) error {
	if f.logoutErr != nil {
		return f.logoutErr
	}
	f.revoked = append(f.revoked, tokenStr)
	return nil
}

func (f *fakeAuthService) CookieConfig() service.CookieConfig {
	return service.CookieConfig{
		Name:     "jwt_token",
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   3600,
	}
}

type fakeUserStore struct {
	user      *model.User
	userErr   error
	providers []model.ProviderType
}

func (f *fakeUserStore) GetUserByID(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*model.User, error) {
	if f.userErr != nil {
		return nil, f.userErr
	}
	return f.user, nil
}

func (f *fakeUserStore) ListActiveProviders(ctx context.Context) ([]model.ProviderType, error) {
	return f.providers, nil
}

func authRouter(svc AuthService, users UserStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAuthHandler(svc, users, nil)
	r.POST("/api/auth/authenticate", h.Authenticate)
	r.POST("/api/auth/logout", h.Logout)
	r.GET("/api/auth/providers", h.Providers)
	r.GET("/api/auth/me", RequireSession(svc, nil), h.Me)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func sampleResponse() *model.AuthenticateResponse {
	return &model.AuthenticateResponse{
		ID:                      uuid.New(),
		FirebaseUID:             "ext-1",
		SessionID:               uuid.New(),
		CurrentAuthProviderSlug: "google.com",
		IsVerified:              true,
		Token:                   "signed-token",
		Exp:                     time.Now().Add(time.Hour).Unix(),
	}
}

func TestAuthenticateValidation(t *testing.T) {
	r := authRouter(&fakeAuthService{authRes: sampleResponse()}, &fakeUserStore{})

	tests := []struct {
		name string
		body string
	}{
		{"empty-body", `{}`},
		{"missing-device", `{"id_token":"tok"}`},
		{"missing-token", `{"device_id":"dev-A"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(r, "/api/auth/authenticate", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestAuthenticateSuccessSetsCookie(t *testing.T) {
	res := sampleResponse()
	r := authRouter(&fakeAuthService{authRes: res}, &fakeUserStore{})

	w := postJSON(r, "/api/auth/authenticate", `{"id_token":"tok","device_id":"dev-A"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got model.AuthenticateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if got.Token != res.Token || got.FirebaseUID != res.FirebaseUID {
		t.Errorf("response mismatch: %+v", got)
	}

	cookie := w.Header().Get("Set-Cookie")
	if !strings.Contains(cookie, "jwt_token=signed-token") {
		t.Errorf("session cookie not set: %q", cookie)
	}
	if !strings.Contains(cookie, "HttpOnly") {
		t.Errorf("session cookie must be HTTP-only: %q", cookie)
	}
}

func TestAuthenticateErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unauthorized", service.ErrUnauthorized, http.StatusUnauthorized},
		{"deactivated", service.ErrAccountDeactivated, http.StatusForbidden},
		{"invalid-input", service.ErrInvalidInput, http.StatusBadRequest},
		{"internal", errors.New("pool exhausted"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := authRouter(&fakeAuthService{authErr: tt.err}, &fakeUserStore{})
			w := postJSON(r, "/api/auth/authenticate", `{"id_token":"tok","device_id":"dev-A"}`)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
			if tt.want == http.StatusInternalServerError && strings.Contains(w.Body.String(), "pool exhausted") {
				t.Errorf("internal detail leaked to client: %s", w.Body.String())
			}
		})
	}
}

func TestLogoutRevokesAndClearsCookie(t *testing.T) {
	svc := &fakeAuthService{}
	r := authRouter(svc, &fakeUserStore{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "jwt_token", Value: "tok-1"})
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(svc.revoked) != 1 || svc.revoked[0] != "tok-1" {
		t.Errorf("session not revoked: %v", svc.revoked)
	}
	if !strings.Contains(w.Header().Get("Set-Cookie"), "jwt_token=;") {
		t.Errorf("cookie not cleared: %q", w.Header().Get("Set-Cookie"))
	}
}

func TestLogoutWithoutTokenIsNoop(t *testing.T) {
	svc := &fakeAuthService{}
	r := authRouter(svc, &fakeUserStore{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if len(svc.revoked) != 0 {
		t.Errorf("nothing should be revoked without a token")
	}
}

func TestMeReadsThroughRequestTransaction(t *testing.T) {
	userID := uuid.New()
	sessionID := uuid.New()
	tx := &fakeTx{}
	svc := &fakeAuthService{
		openTx:   tx,
		openUser: &model.AuthUser{UserID: userID, SessionID: sessionID},
	}
	username := "jane"
	users := &fakeUserStore{user: &model.User{ID: userID, FirebaseUID: "ext-1", Username: &username}}
	r := authRouter(svc, users)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var got model.AuthMeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if got.ID != userID.String() || got.SessionID != sessionID.String() {
		t.Errorf("response mismatch: %+v", got)
	}
	if !tx.committed {
		t.Errorf("guard must commit the request transaction after a clean handler")
	}
}

func TestProviders(t *testing.T) {
	users := &fakeUserStore{providers: []model.ProviderType{
		{Slug: "password", Name: "Email & Password"},
		{Slug: "google.com", Name: "Google"},
	}}
	r := authRouter(&fakeAuthService{}, users)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/auth/providers", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got model.ProvidersResponse
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if len(got.Providers) != 2 || got.Providers[0].Slug != "password" {
		t.Errorf("unexpected providers: %+v", got.Providers)
	}
}
