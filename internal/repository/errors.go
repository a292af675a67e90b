package repository

import (
	"errors"

	"github.com/lib/pq"
)

// IsUniqueViolation 判定唯一约束冲突（SQLSTATE 23505）。
// service 层据此把重复 email、重复 pending 邀请、重复域名映射成业务冲突。
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
