package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"

	rediskey "github.com/wwsz-2002/comment-app/pkg/redis"
)

// ErrUnauthorized 表示 token 缺失、过期或对应的登录态不存在。
var ErrUnauthorized = errors.New("session: unauthorized")

// UserDTO 登录用户的脱敏视图，只携带业务需要的字段。
type UserDTO struct {
	ID       int64  `json:"id"`
	NickName string `json:"nick_name"`
	Icon     string `json:"icon"`
}

// Resolver 把请求携带的 token 解析成用户身份。
// 登录态存在 Redis hash 里，每次成功解析顺带刷新 TTL（滑动过期）。
type Resolver struct {
	rdb *rd.Client
	ttl time.Duration
}

func NewResolver(rdb *rd.Client, ttl time.Duration) *Resolver {
	return &Resolver{rdb: rdb, ttl: ttl}
}

// Resolve 查询 token 对应的用户；不存在返回 ErrUnauthorized。
func (r *Resolver) Resolve(ctx context.Context, token string) (*UserDTO, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	key := rediskey.LoginTokenKey(token)
	m, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrUnauthorized
	}

	id, err := strconv.ParseInt(m["id"], 10, 64)
	if err != nil || id <= 0 {
		return nil, ErrUnauthorized
	}

	// 活跃用户滑动续期，失败不影响本次请求
	_ = r.rdb.Expire(ctx, key, r.ttl).Err()

	return &UserDTO{
		ID:       id,
		NickName: m["nick_name"],
		Icon:     m["icon"],
	}, nil
}

// Save 写入登录态（登录流程本身不在本服务内，这里供预热和测试使用）。
func (r *Resolver) Save(ctx context.Context, token string, u UserDTO) error {
	key := rediskey.LoginTokenKey(token)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"id", strconv.FormatInt(u.ID, 10),
		"nick_name", u.NickName,
		"icon", u.Icon,
	)
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}
