package models

// Pagination 列表响应分页信息
type Pagination struct {
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
}

// Clamp 规范化分页参数（page 从 1 开始，size 限制在 [1, max]）
func Clamp(page, size, maxSize int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 50
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return page, size
}
