package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"eduroots/backend/pkg/response"
)

// BodyLimit 请求体大小限制中间件
// multipart 上传（学生名单 .xlsx）使用 uploadMax，其余请求使用 jsonMax
func BodyLimit(jsonMax, uploadMax int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			limit := jsonMax
			if strings.HasPrefix(c.ContentType(), "multipart/") {
				limit = uploadMax
			}
			// 声明了长度的请求直接拒绝，未声明长度的在读取时截断
			if c.Request.ContentLength > limit {
				response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
				c.Abort()
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}

		c.Next()

		if c.Writer.Written() {
			return
		}
		for _, err := range c.Errors {
			var tooLarge *http.MaxBytesError
			if errors.As(err.Err, &tooLarge) {
				response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
				return
			}
		}
	}
}
