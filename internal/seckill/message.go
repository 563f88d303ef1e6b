package seckill

import (
	"fmt"
	"strconv"
)

// OrderMessage 是准入脚本写进 Redis Stream 的下单消息。
// 字段名与 Lua 脚本 XADD 的 field 一一对应。
type OrderMessage struct {
	OrderID   int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	VoucherID uint64 `json:"voucher_id"`
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m OrderMessage) Validate() error {
	if m.OrderID <= 0 {
		return fmt.Errorf("order id is required")
	}
	if m.UserID <= 0 {
		return fmt.Errorf("user id is required")
	}
	if m.VoucherID == 0 {
		return fmt.Errorf("voucher id is required")
	}
	return nil
}

// parseOrderMessage 从 stream entry 的 field map 还原消息。
func parseOrderMessage(values map[string]interface{}) (OrderMessage, error) {
	idStr, err := getStreamString(values, "id")
	if err != nil {
		return OrderMessage{}, err
	}
	userStr, err := getStreamString(values, "userId")
	if err != nil {
		return OrderMessage{}, err
	}
	voucherStr, err := getStreamString(values, "voucherId")
	if err != nil {
		return OrderMessage{}, err
	}

	orderID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return OrderMessage{}, fmt.Errorf("invalid order id %q", idStr)
	}
	userID, err := strconv.ParseInt(userStr, 10, 64)
	if err != nil {
		return OrderMessage{}, fmt.Errorf("invalid user id %q", userStr)
	}
	voucherID, err := strconv.ParseUint(voucherStr, 10, 64)
	if err != nil {
		return OrderMessage{}, fmt.Errorf("invalid voucher id %q", voucherStr)
	}

	msg := OrderMessage{
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: voucherID,
	}
	if err := msg.Validate(); err != nil {
		return OrderMessage{}, err
	}
	return msg, nil
}

// getStreamString 容忍 go-redis 对 stream field 的不同还原类型。
func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
