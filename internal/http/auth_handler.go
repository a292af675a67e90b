package httpapi

import (
	"net/http"

	"meatchain/internal/service"

	"go.uber.org/zap"
)

// AuthHandler 认证面 Handler（免租户路径）
type AuthHandler struct {
	authService service.AuthService
	logger      *zap.Logger
}

// NewAuthHandler 创建认证 Handler
func NewAuthHandler(authService service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// 路由分发
	switch r.URL.Path {
	case "/auth/api/v1/signup":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Signup(w, r)
	case "/auth/api/v1/login":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.Login(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// Signup 注册：一个请求里建租户 + owner 账号
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 1. 参数解析
	var req service.SignupRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	req.IPAddress = getClientIP(r)

	// 2. 调用 Service
	resp, err := h.authService.Signup(ctx, req)
	if err != nil {
		// Service 层已经记录了详细的日志，这里只记录错误
		h.logger.Error("Signup failed", zap.Error(err))
		writeError(w, err)
		return
	}

	// 3. 返回响应
	writeJSON(w, http.StatusOK, Ok(resp))
}

// Login 用户登录
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 1. 参数解析
	var req service.LoginRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid body"))
		return
	}
	req.IPAddress = getClientIP(r)
	req.UserAgent = r.UserAgent()

	// 2. 调用 Service
	resp, err := h.authService.Login(ctx, req)
	if err != nil {
		// Service 层已经记录了详细的日志，这里只记录错误
		h.logger.Error("Login failed", zap.Error(err))
		writeError(w, err)
		return
	}

	// 3. 返回响应
	writeJSON(w, http.StatusOK, Ok(resp))
}
