package seckill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderMessage(t *testing.T) {
	msg, err := parseOrderMessage(map[string]interface{}{
		"id":        "123456789",
		"userId":    "42",
		"voucherId": "7",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(123456789), msg.OrderID)
	assert.Equal(t, int64(42), msg.UserID)
	assert.Equal(t, uint64(7), msg.VoucherID)
}

func TestParseOrderMessageMissingField(t *testing.T) {
	_, err := parseOrderMessage(map[string]interface{}{
		"id":     "1",
		"userId": "2",
	})
	assert.Error(t, err)
}

func TestParseOrderMessageRejectsInvalid(t *testing.T) {
	cases := []map[string]interface{}{
		{"id": "0", "userId": "2", "voucherId": "3"},   // 非法订单 ID
		{"id": "1", "userId": "-1", "voucherId": "3"},  // 非法用户
		{"id": "1", "userId": "2", "voucherId": "0"},   // 非法券
		{"id": "abc", "userId": "2", "voucherId": "3"}, // 非数字
	}
	for _, values := range cases {
		_, err := parseOrderMessage(values)
		assert.Error(t, err, "values=%v", values)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	b := Backoff{Base: 10, Max: 100}
	assert.Equal(t, int64(10), int64(b.Delay(0)))
	assert.Equal(t, int64(20), int64(b.Delay(1)))
	assert.Equal(t, int64(40), int64(b.Delay(2)))
	assert.Equal(t, int64(80), int64(b.Delay(3)))
	assert.Equal(t, int64(100), int64(b.Delay(4)))
	assert.Equal(t, int64(100), int64(b.Delay(30)), "stays capped for large attempts")
}
