package bot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientOrderID(t *testing.T) {
	prefix := newBatchPrefix()
	assert.True(t, strings.HasPrefix(prefix, "grid"))
	assert.NotEqual(t, prefix, newBatchPrefix())

	id := clientOrderID(prefix, 7)
	assert.Equal(t, prefix+"-7", id)

	long := clientOrderID(strings.Repeat("x", 40), 12345)
	assert.Len(t, long, maxClientOrderIDLen)
	assert.True(t, strings.HasSuffix(long, "-12345"))
}
