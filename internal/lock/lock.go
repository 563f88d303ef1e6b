package lock

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

const keyPrefix = "lock:"

// instanceID 进程级唯一标识，拼进锁 value 区分不同进程的持有者。
var instanceID = strings.ReplaceAll(uuid.New().String(), "-", "")

// luaUnlock 仅当锁值匹配自己的 token 时才删除，避免误删其他持有者在
// TTL 过期重分配后拿到的锁。GET+比较+DEL 必须在一个脚本里原子完成，
// 否则比较和删除之间锁可能已易主。
const luaUnlock = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// Lock 是基于 Redis SETNX 的分布式互斥锁。
// 每个 Lock 实例代表一次加锁上下文，token 全局唯一。
// 非阻塞、不重试，是否重试由调用方决定；互斥性以 TTL 为界，
// 持有者超时后锁可被他人抢占，临界区需自身幂等或远快于 TTL。
type Lock struct {
	rdb   *rd.Client
	name  string
	token string
}

// New 创建一把命名锁。name 不含 lock: 前缀。
func New(rdb *rd.Client, name string) *Lock {
	return &Lock{
		rdb:   rdb,
		name:  name,
		token: instanceID + "-" + uuid.New().String(),
	}
}

// TryAcquire 尝试一次性获取锁，成功返回 true，已被占用返回 false。
func (l *Lock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, keyPrefix+l.name, l.token, ttl).Result()
}

// Release 安全释放锁：token 不匹配时静默不操作。
func (l *Lock) Release(ctx context.Context) error {
	return l.rdb.Eval(ctx, luaUnlock, []string{keyPrefix + l.name}, l.token).Err()
}
