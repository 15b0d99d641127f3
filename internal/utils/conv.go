package utils

import (
	"strconv"
)

// QueryInt 解析分页参数，非法或越界时返回 def
func QueryInt(s string, def, max int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	if max > 0 && i > max {
		return max
	}
	return i
}
