package seckill

// 准入脚本返回码，与 Lua 内的 return 值一致。
const (
	admitOK        = 0 // 准入成功，消息已入流
	admitSoldOut   = 1 // 库存不足
	admitDuplicate = 2 // 该用户已抢过此券
)

// luaAdmission：秒杀准入「一人一单判断 → 库存判断 → 扣减 + 记名 + 入流」。
// 整段脚本原子执行，并发调用之间不存在交错：库存判断与扣减不可分割，
// 所以永远不会超卖；入流与扣减在同一次执行里完成，准入成功的请求不会丢。
// KEYS[1]=库存key KEYS[2]=已购用户集合key KEYS[3]=订单stream
// ARGV[1]=voucherId ARGV[2]=userId ARGV[3]=orderId
const luaAdmission = `
local stockKey = KEYS[1]
local orderKey = KEYS[2]
local streamKey = KEYS[3]
local voucherId = ARGV[1]
local userId = ARGV[2]
local orderId = ARGV[3]

-- 1. 一人一单：已有购买标记则拒绝
if redis.call('SISMEMBER', orderKey, userId) == 1 then
  return 2
end

-- 2. 库存判断（key 缺失按 0 处理）
if tonumber(redis.call('GET', stockKey) or '0') <= 0 then
  return 1
end

-- 3. 扣减库存、记名、下单消息入流
redis.call('DECRBY', stockKey, 1)
redis.call('SADD', orderKey, userId)
redis.call('XADD', streamKey, '*', 'id', orderId, 'userId', userId, 'voucherId', voucherId)
return 0
`
