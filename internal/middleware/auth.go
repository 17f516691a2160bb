// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// CallerKey 是 gin 上下文中保存调用方地址的键。
const CallerKey = "caller"

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头（或 WebSocket 握手的 token 查询参数）中提取 token，验证其有效性，
// 并把 token 中的地址作为调用方存入 Gin 的上下文。jwtManager 为 nil 时不做鉴权。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if jwtManager == nil {
			c.Next()
			return
		}

		tokenString, ok := extractToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含有效的授权信息", "data": nil})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			log.Warnf("[Auth] token 校验失败: %v", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
			return
		}

		c.Set("claims", claims)
		c.Set(CallerKey, claims.Address)
		c.Next()
	}
}

// extractToken 优先读取 "Bearer <token>" 请求头，浏览器的 WebSocket 无法设置请求头，所以也接受 ?token=。
func extractToken(c *gin.Context) (string, bool) {
	const bearerPrefix = "Bearer "
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			return "", false
		}
		return strings.TrimPrefix(authHeader, bearerPrefix), true
	}
	if t := c.Query("token"); t != "" {
		return t, true
	}
	return "", false
}
