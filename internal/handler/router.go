package handler

import (
	"net/http"

	"agent-vault-go/internal/middleware"
	"agent-vault-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// RouterDeps 是注册路由所需的依赖。
type RouterDeps struct {
	Dispatcher      Dispatcher
	Sessions        SessionResetter
	JWT             *token.JWTManager // 为 nil 时不做鉴权
	OperatorAddress string
	Metrics         http.Handler
}

// NewRouter 创建路由引擎并注册所有路由。
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/healthz", Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	toolHandler := NewToolHandler(deps.Dispatcher)
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.JWT))
	{
		tools := apiV1.Group("/tools")
		{
			tools.GET("", toolHandler.ListTools)
			tools.POST("/call", toolHandler.Call)
			tools.GET("/ws", toolHandler.Stream)
		}

		admin := apiV1.Group("/admin")
		admin.Use(middleware.OperatorOnlyMiddleware(deps.OperatorAddress))
		{
			admin.POST("/sessions/reset", NewAdminHandler(deps.Sessions).ResetSessions)
		}
	}
	return r
}
