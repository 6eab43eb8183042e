package bot

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

// maxClientOrderIDLen 币安 newClientOrderId 的长度上限
const maxClientOrderIDLen = 36

// newBatchPrefix 为一次建网格生成唯一前缀，如 "grid3hTq9xK2LmP"
func newBatchPrefix() string {
	id := uuid.New()
	return "grid" + base62.EncodeToString(id[:8])
}

// clientOrderID 拼接档位序号，超长时截断前缀
func clientOrderID(prefix string, index int) string {
	suffix := "-" + strconv.Itoa(index)
	if len(prefix)+len(suffix) > maxClientOrderIDLen {
		prefix = prefix[:maxClientOrderIDLen-len(suffix)]
	}
	return prefix + suffix
}
