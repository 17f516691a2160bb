package middleware

import (
	"net/http"

	"agent-vault-go/pkg/chain"

	"github.com/gin-gonic/gin"
)

// OperatorOnlyMiddleware 只放行运营地址本身的请求。
// 此中间件必须在 AuthMiddleware 之后使用；未开启鉴权时没有调用方地址，一律放行。
func OperatorOnlyMiddleware(operatorAddress string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, authed := c.Get("claims"); !authed {
			c.Next()
			return
		}
		if !chain.SameAddress(c.GetString(CallerKey), operatorAddress) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": "权限不足，需要运营地址", "data": nil})
			return
		}
		c.Next()
	}
}
