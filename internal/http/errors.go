package httpapi

import (
	"database/sql"
	"errors"
	"net/http"

	"meatchain/internal/service"
	"meatchain/internal/tenancy"
)

// writeError 把服务层/租户层错误分类为 HTTP 状态码，统一信封返回。
// 5xx 不回显内部错误文本，避免泄露 SQL 细节。
func writeError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "internal server error"
	}
	writeJSON(w, status, Fail(message))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidArgument),
		errors.Is(err, tenancy.ErrResolutionAmbiguous):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, tenancy.ErrTenantRequired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, tenancy.ErrTenantNotFound),
		errors.Is(err, service.ErrInvitationInvalid),
		errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrSlugTaken),
		errors.Is(err, service.ErrDomainTaken),
		errors.Is(err, service.ErrInvitationPending),
		errors.Is(err, service.ErrInvitationRedeemed),
		errors.Is(err, service.ErrLastOwner),
		errors.Is(err, service.ErrInvoiceExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvitationExpired):
		return http.StatusGone
	default:
		// tenancy.ErrCrossTenant 也落在这里：完整性错误按 500 处理
		return http.StatusInternalServerError
	}
}
