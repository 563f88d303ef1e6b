package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wwsz-2002/comment-app/internal/session"
)

const userKey = "auth.user"

// Auth 解析 Authorization 头里的登录 token，把用户身份塞进请求上下文。
// 解析失败一律 401，后续 handler 可假定用户已登录。
func Auth(resolver *session.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		u, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, session.ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "请先登录"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// CurrentUser 取出 Auth 中间件解析好的用户，未登录返回 nil。
func CurrentUser(c *gin.Context) *session.UserDTO {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*session.UserDTO)
	return u
}
