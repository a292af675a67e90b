package httpapi

import (
	"bytes"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meatchain/internal/metrics"
	"meatchain/internal/service"
	"meatchain/internal/tenancy"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Middleware 标准 net/http 中间件形态
type Middleware func(http.Handler) http.Handler

// Chain 从外到内依次套上中间件：Chain(h, a, b) 等价于 a(b(h))
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// 免租户绑定的路径前缀：健康检查、指标、认证面、邀请兑换面。
// 其余所有路径都要求认证 + 租户绑定。
var tenantExemptPrefixes = []string{
	"/health",
	"/metrics",
	"/auth/api/v1/",
	"/invite/api/v1/",
}

func tenantExempt(path string) bool {
	for _, prefix := range tenantExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// AuthMiddleware 校验 Bearer access token 并把用户ID挂到 context。
// 免租户路径直接放行（登录/注册/兑换本身不要求已有身份）。
func AuthMiddleware(issuer *service.TokenIssuer, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tenantExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized, Fail("authorization required"))
				return
			}
			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeJSON(w, http.StatusUnauthorized, Fail("invalid authorization header"))
				return
			}

			claims, err := issuer.Verify(strings.TrimSpace(tokenString))
			if err != nil {
				if errors.Is(err, jwt.ErrTokenExpired) {
					writeJSON(w, http.StatusUnauthorized, Result[any]{
						Code: ResultTokenExpired, Type: "error", Message: "token expired",
					})
					return
				}
				logger.Warn("Token verification failed",
					zap.String("path", r.URL.Path),
					zap.String("ip", getClientIP(r)),
					zap.Error(err))
				writeJSON(w, http.StatusUnauthorized, Fail("invalid token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(tenancy.WithUser(r.Context(), claims.UserID)))
		})
	}
}

// TenantBinder 为每个租户绑定路径开一个请求事务：
//  1. 解析租户（header → 域名 → 子域 slug → 唯一成员关系）
//  2. set_config 写入事务级变量并把租户挂到 context
//  3. 缓冲响应，等事务 COMMIT 成功后才真正发出
//
// 业务写了 2xx 但 COMMIT 失败时，客户端必须看到 500 而不是假成功，
// 所以 handler 的输出先进缓冲。5xx 一律回滚。
func TenantBinder(db *sql.DB, resolver *tenancy.Resolver, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tenantExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			userID, ok := tenancy.UserFrom(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, Fail("authorization required"))
				return
			}

			ctx, tx, err := tenancy.BeginBound(r.Context(), db, userID)
			if err != nil {
				logger.Error("Request transaction begin failed",
					zap.String("path", r.URL.Path), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, Fail("internal server error"))
				return
			}
			defer func() {
				if p := recover(); p != nil {
					_ = tx.Rollback()
					panic(p)
				}
			}()

			tenant, err := resolver.Resolve(ctx, tenancy.ResolveInput{
				TenantID: r.Header.Get("X-Tenant-ID"),
				Host:     r.Host,
				UserID:   userID,
			})
			if err != nil {
				_ = tx.Rollback()
				logger.Warn("Tenant resolution failed",
					zap.String("path", r.URL.Path),
					zap.String("host", r.Host),
					zap.String("user_id", userID),
					zap.Error(err))
				writeError(w, err)
				return
			}

			ctx, err = tenancy.BindTenant(ctx, tenant.TenantID)
			if err != nil {
				_ = tx.Rollback()
				logger.Error("Tenant bind failed",
					zap.String("tenant_id", tenant.TenantID), zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, Fail("internal server error"))
				return
			}

			buf := newBufferedResponse(w)
			next.ServeHTTP(buf, r.WithContext(ctx))

			if buf.statusCode() >= http.StatusInternalServerError {
				_ = tx.Rollback()
				buf.flush()
				return
			}
			if err := tx.Commit(); err != nil {
				logger.Error("Request transaction commit failed",
					zap.String("path", r.URL.Path),
					zap.String("tenant_id", tenant.TenantID),
					zap.Error(err))
				buf.reset()
				writeJSON(buf, http.StatusInternalServerError, Fail("internal server error"))
			}
			buf.flush()
		})
	}
}

// RecoveryMiddleware 捕获 handler panic，返回 500 信封
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("Handler panic recovered",
						zap.String("path", r.URL.Path),
						zap.Any("panic", p),
						zap.Stack("stack"))
					writeJSON(w, http.StatusInternalServerError, Fail("internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware 按 method/path/status 记录请求计数和耗时
func MetricsMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			metrics.ObserveHTTPRequest(r.Method, metricsPath(r.URL.Path), strconv.Itoa(ww.status), time.Since(start))
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// metricsPath 只保留前四段路径，避免 ID/域名段撑爆标签基数。
// /data/api/v1/invoices/123 → /data/api/v1/invoices
func metricsPath(path string) string {
	segments := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 5)
	if len(segments) == 5 {
		segments = segments[:4]
	}
	return "/" + strings.Join(segments, "/")
}

// bufferedResponse 把 handler 的状态码和响应体压在内存里，
// flush 之前可以整体丢弃重写。Header 直接透传（发送前都可改）。
type bufferedResponse struct {
	rw          http.ResponseWriter
	code        int
	body        bytes.Buffer
	wroteHeader bool
}

func newBufferedResponse(rw http.ResponseWriter) *bufferedResponse {
	return &bufferedResponse{rw: rw, code: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header {
	return b.rw.Header()
}

func (b *bufferedResponse) WriteHeader(code int) {
	if b.wroteHeader {
		return
	}
	b.code = code
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.wroteHeader = true
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) statusCode() int {
	return b.code
}

func (b *bufferedResponse) reset() {
	b.body.Reset()
	b.code = http.StatusOK
	b.wroteHeader = false
}

func (b *bufferedResponse) flush() {
	b.rw.WriteHeader(b.code)
	if b.body.Len() > 0 {
		_, _ = b.rw.Write(b.body.Bytes())
	}
}
