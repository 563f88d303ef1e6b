package redis

import "fmt"

// ShopKey 店铺缓存键（穿透策略，值为 JSON 或空串占位）。
func ShopKey(shopID uint64) string {
	return fmt.Sprintf("cache:shop:%d", shopID)
}

// ShopKeyPrefix 供缓存客户端拼接 id 使用。
const ShopKeyPrefix = "cache:shop:"

// HotShopKeyPrefix 热点店铺缓存键前缀（逻辑过期策略，永不物理过期）。
const HotShopKeyPrefix = "cache:hotshop:"

// ShopLockPrefix 热点店铺重建互斥锁前缀。
const ShopLockPrefix = "shop:"

// VoucherKeyPrefix 秒杀券信息缓存前缀（穿透策略）。
const VoucherKeyPrefix = "cache:seckill_voucher:"

// StockKey 统一约定秒杀券库存键名。
func StockKey(voucherID uint64) string {
	return fmt.Sprintf("seckill:stock:%d", voucherID)
}

// OrderUserSetKey 记录某券已下单用户集合，脚本内做一人一单判断。
func OrderUserSetKey(voucherID uint64) string {
	return fmt.Sprintf("seckill:order:%d", voucherID)
}

// OrderLockName 异步落单阶段的互斥锁名（不含 lock: 前缀，由锁组件统一拼接）。
func OrderLockName(userID int64, voucherID uint64) string {
	return fmt.Sprintf("order:%d:%d", userID, voucherID)
}

// IDCounterKey 全局 ID 生成器的按天自增键。
func IDCounterKey(namespace, date string) string {
	return fmt.Sprintf("icr:%s:%s", namespace, date)
}

// LoginTokenKey 登录态 token 对应的用户信息 hash。
func LoginTokenKey(token string) string {
	return fmt.Sprintf("login:token:%s", token)
}

// RateLimitUserKey 按用户限流键。
func RateLimitUserKey(userID int64) string {
	return fmt.Sprintf("rate_limit:seckill:user:%d", userID)
}

// RateLimitIPKey 按 IP 限流键（用户解析失败时的降级）。
func RateLimitIPKey(ip string) string {
	return fmt.Sprintf("rate_limit:seckill:ip:%s", ip)
}
