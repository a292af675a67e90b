package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"meatchain/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAuthService 记录入参、按预设返回
type fakeAuthService struct {
	signupErr  error
	loginErr   error
	lastSignup service.SignupRequest
	lastLogin  service.LoginRequest
}

func (f *fakeAuthService) Signup(ctx context.Context, req service.SignupRequest) (*service.AuthResponse, error) {
	f.lastSignup = req
	if f.signupErr != nil {
		return nil, f.signupErr
	}
	return &service.AuthResponse{
		AccessToken: "signup-token",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
		UserID:      "u-new",
		Email:       req.Email,
		Memberships: []service.MembershipInfo{
			{TenantID: "t-new", TenantName: req.TenantName, Slug: req.Slug, Role: "owner"},
		},
	}, nil
}

func (f *fakeAuthService) Login(ctx context.Context, req service.LoginRequest) (*service.AuthResponse, error) {
	f.lastLogin = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &service.AuthResponse{
		AccessToken: "login-token",
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(time.Hour),
		UserID:      "u-1",
		Email:       req.Email,
		Memberships: []service.MembershipInfo{
			{TenantID: "t-acme", TenantName: "Acme", Slug: "acme", Role: "admin"},
		},
	}, nil
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuthHandler_Signup_Success(t *testing.T) {
	fake := &fakeAuthService{}
	handler := NewAuthHandler(fake, zap.NewNop())

	w := postJSON(t, handler, "/auth/api/v1/signup", map[string]any{
		"email":       "owner@acme.test",
		"password":    "butcher-pw-1",
		"tenant_name": "Acme Meats",
		"slug":        "acme",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var result Result[service.AuthResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, ResultSuccess, result.Code)
	assert.Equal(t, "success", result.Type)
	assert.Equal(t, "signup-token", result.Result.AccessToken)
	require.Len(t, result.Result.Memberships, 1)
	assert.Equal(t, "owner", result.Result.Memberships[0].Role)

	assert.Equal(t, "owner@acme.test", fake.lastSignup.Email)
	assert.Equal(t, "acme", fake.lastSignup.Slug)
}

func TestAuthHandler_Signup_InvalidBody(t *testing.T) {
	fake := &fakeAuthService{}
	handler := NewAuthHandler(fake, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/auth/api/v1/signup", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var result Result[any]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, ResultError, result.Code)
	assert.Equal(t, "error", result.Type)
}

func TestAuthHandler_Signup_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{"email taken", service.ErrEmailTaken, http.StatusConflict},
		{"slug taken", service.ErrSlugTaken, http.StatusConflict},
		{"invalid argument", service.ErrInvalidArgument, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeAuthService{signupErr: tt.serviceErr}
			handler := NewAuthHandler(fake, zap.NewNop())

			w := postJSON(t, handler, "/auth/api/v1/signup", map[string]any{
				"email":       "owner@acme.test",
				"password":    "butcher-pw-1",
				"tenant_name": "Acme Meats",
				"slug":        "acme",
			})
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAuthHandler_Login_Success(t *testing.T) {
	fake := &fakeAuthService{}
	handler := NewAuthHandler(fake, zap.NewNop())

	w := postJSON(t, handler, "/auth/api/v1/login", map[string]any{
		"email":    "admin@acme.test",
		"password": "butcher-pw-1",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var result Result[service.AuthResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, ResultSuccess, result.Code)
	assert.Equal(t, "login-token", result.Result.AccessToken)
	assert.Equal(t, "admin@acme.test", fake.lastLogin.Email)
}

func TestAuthHandler_Login_BadCredentials(t *testing.T) {
	fake := &fakeAuthService{loginErr: service.ErrInvalidCredentials}
	handler := NewAuthHandler(fake, zap.NewNop())

	w := postJSON(t, handler, "/auth/api/v1/login", map[string]any{
		"email":    "admin@acme.test",
		"password": "wrong",
	})

	require.Equal(t, http.StatusUnauthorized, w.Code)
	// 错误信息不区分账号不存在和密码错误
	assert.Contains(t, w.Body.String(), "invalid credentials")
}

func TestAuthHandler_ServeHTTP_Routing(t *testing.T) {
	fake := &fakeAuthService{}
	handler := NewAuthHandler(fake, zap.NewNop())

	tests := []struct {
		name     string
		method   string
		path     string
		wantCode int
	}{
		{"POST /auth/api/v1/signup", http.MethodPost, "/auth/api/v1/signup", http.StatusOK},
		{"POST /auth/api/v1/login", http.MethodPost, "/auth/api/v1/login", http.StatusOK},
		{"GET /auth/api/v1/signup (wrong method)", http.MethodGet, "/auth/api/v1/signup", http.StatusMethodNotAllowed},
		{"GET /auth/api/v1/login (wrong method)", http.MethodGet, "/auth/api/v1/login", http.StatusMethodNotAllowed},
		{"Unknown path", http.MethodGet, "/auth/api/v1/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewReader([]byte(`{}`)))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("Expected status %d, got %d", tt.wantCode, w.Code)
			}
		})
	}
}
