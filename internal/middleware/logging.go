package middleware

import (
	"bytes"
	"fmt"
	"io"
	"regexp"
	"time"

	"agent-vault-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// maxLoggedBody 是日志中保留的请求/响应体最大字节数。
const maxLoggedBody = 2048

var fileContentPattern = regexp.MustCompile(`"fileContent"\s*:\s*"[^"]*"`)

// bodyLogWriter 用于捕获响应体
type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 实现了 io.Writer 接口，将响应写入 gin.ResponseWriter 和一个内部的 buffer
func (w bodyLogWriter) Write(b []byte) (int, error) {
	if w.body.Len() < maxLoggedBody {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// RequestLogger 是一个 Gin 中间件，用于记录请求和响应日志。
// 文件内容（base64）不会写进日志，过长的请求体/响应体会被截断。
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		// WebSocket 握手之后连接被接管，这里只记录基本信息
		if c.IsWebsocket() {
			c.Next()
			log.Infow("HTTP Request Log",
				"statusCode", c.Writer.Status(),
				"latency", time.Since(startTime).String(),
				"clientIP", c.ClientIP(),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"websocket", true,
			)
			return
		}

		// 读取并重新缓存请求体
		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
		}
		// 将读取的请求体重新设置回 c.Request.Body，以便后续处理函数可以正常读取
		c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))

		// 使用自定义的 ResponseWriter 捕获响应
		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"caller", c.GetString(CallerKey),
			"requestBody", sanitizeBody(requestBody),
			"responseBody", sanitizeBody(blw.body.Bytes()),
		)
	}
}

// sanitizeBody 去掉文件内容并截断。
func sanitizeBody(b []byte) string {
	b = fileContentPattern.ReplaceAll(b, []byte(`"fileContent":"<redacted>"`))
	if len(b) > maxLoggedBody {
		return fmt.Sprintf("%s...(%d bytes truncated)", b[:maxLoggedBody], len(b)-maxLoggedBody)
	}
	return string(b)
}
