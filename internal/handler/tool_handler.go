// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"net/http"

	"agent-vault-go/internal/middleware"
	"agent-vault-go/internal/model"
	"agent-vault-go/internal/tool"
	"agent-vault-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// Dispatcher 是 ToolHandler 依赖的工具分发接口，由 *tool.Dispatcher 实现。
type Dispatcher interface {
	Tools() []model.ToolDefinition
	Dispatch(ctx context.Context, name string, args map[string]interface{}) *model.ToolResult
}

// ToolHandler 把工具协议暴露为 HTTP 与 WebSocket 接口。
type ToolHandler struct {
	dispatcher Dispatcher
}

// NewToolHandler 创建一个新的 ToolHandler。
func NewToolHandler(dispatcher Dispatcher) *ToolHandler {
	return &ToolHandler{dispatcher: dispatcher}
}

// CallRequest 是一次工具调用的请求体。
type CallRequest struct {
	Name      string                 `json:"name" binding:"required"`
	Arguments map[string]interface{} `json:"arguments"`
}

// streamFrame 是 WebSocket 上发送的一帧。
type streamFrame struct {
	Type         string              `json:"type"` // progress / result / error
	CallID       string              `json:"callId,omitempty"`
	Progress     *int                `json:"progress,omitempty"`
	Status       string              `json:"status,omitempty"`
	UploadedInfo *model.UploadedInfo `json:"uploadedInfo,omitempty"`
	Result       *model.ToolResult   `json:"result,omitempty"`
	Message      string              `json:"message,omitempty"`
}

// ListTools 返回所有工具的声明。
func (h *ToolHandler) ListTools(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": gin.H{"tools": h.dispatcher.Tools()}})
}

// Call 同步执行一次工具调用。工具层面的失败同样返回 200，错误信息在结果的 isError 与内容里。
func (h *ToolHandler) Call(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求负载", "data": nil})
		return
	}
	ctx := tool.WithCaller(c.Request.Context(), c.GetString(middleware.CallerKey))
	result := h.dispatcher.Dispatch(ctx, req.Name, req.Arguments)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": result})
}

// Stream 处理 WebSocket 连接：每收到一条 CallRequest，先推送上传进度帧，再推送最终结果。
// 同一连接上的调用按顺序执行。
func (h *ToolHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[ToolHandler] WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	caller := c.GetString(middleware.CallerKey)
	log.Infof("[ToolHandler] WebSocket 连接已建立, caller: %s", caller)

	for {
		var req CallRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[ToolHandler] 从 WebSocket 读取消息失败: %v", err)
			}
			return
		}
		if req.Name == "" {
			if err := conn.WriteJSON(streamFrame{Type: "error", Message: "name is required"}); err != nil {
				return
			}
			continue
		}

		callID := uuid.NewString()
		writeFailed := false
		ctx := tool.WithCaller(c.Request.Context(), caller)
		ctx = tool.WithProgress(ctx, func(e model.ProgressEvent) {
			if writeFailed {
				return
			}
			// 进度回调同步执行，与最终结果写在同一个 goroutine 上
			progress := e.Progress
			if err := conn.WriteJSON(streamFrame{
				Type:         "progress",
				CallID:       callID,
				Progress:     &progress,
				Status:       e.Status,
				UploadedInfo: e.UploadedInfo,
			}); err != nil {
				log.Warnf("[ToolHandler] 推送进度失败, call: %s, error: %v", callID, err)
				writeFailed = true
			}
		})

		result := h.dispatcher.Dispatch(ctx, req.Name, req.Arguments)
		if err := conn.WriteJSON(streamFrame{Type: "result", CallID: callID, Result: result}); err != nil {
			log.Warnf("[ToolHandler] 推送结果失败, call: %s, error: %v", callID, err)
			return
		}
	}
}

// Health 是存活探针。
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
