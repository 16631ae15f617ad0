package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"eduroots/backend/pkg/redis"
	"eduroots/backend/pkg/response"
)

// RateLimit 基于 Redis 固定窗口计数的速率限制中间件
// scope 区分限流桶（如对账运行），已登录请求按用户计数，未登录按客户端 IP
// rdb 为 nil 或出错时降级放行（与 JWTAuth 策略一致）
func RateLimit(rdb *redis.Client, scope string, limit int, window time.Duration) gin.HandlerFunc {
	retryAfter := strconv.Itoa(int(window / time.Second))

	return func(c *gin.Context) {
		if rdb == nil || limit <= 0 {
			c.Next()
			return
		}

		allowed, err := rdb.CheckRateLimit(c.Request.Context(), rateLimitKey(c, scope), limit, window)
		if err != nil {
			c.Next()
			return
		}

		if !allowed {
			c.Header("Retry-After", retryAfter)
			response.Error(c, http.StatusTooManyRequests, 10004, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Next()
	}
}

// rateLimitKey rate_limit:<scope>:<user:ID | ip:IP>:<路由模板>
func rateLimitKey(c *gin.Context, scope string) string {
	who := "ip:" + c.ClientIP()
	if uid := c.GetString("user_id"); uid != "" {
		who = "user:" + uid
	}
	return fmt.Sprintf("rate_limit:%s:%s:%s", scope, who, c.FullPath())
}
