package handler

import (
	"context"
	"net/http"

	"agent-vault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SessionResetter 清空进程内的存储会话缓存，由 *app.Context 实现。
type SessionResetter interface {
	Reset(ctx context.Context) error
}

// AdminHandler 负责运营相关的管理接口。
type AdminHandler struct {
	sessions SessionResetter
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(sessions SessionResetter) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

// ResetSessions 清空存储会话缓存，下一次上传会重新查询数据集。
func (h *AdminHandler) ResetSessions(c *gin.Context) {
	if err := h.sessions.Reset(c.Request.Context()); err != nil {
		log.Errorf("[AdminHandler] 清空会话缓存失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "清空会话缓存失败", "data": nil})
		return
	}
	log.Info("[AdminHandler] 会话缓存已清空")
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": nil})
}
