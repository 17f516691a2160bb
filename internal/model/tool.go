package model

// Content 是工具调用结果中的一段内容。
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult 是返回给工具协议传输层的统一结果。
type ToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// ToolDefinition 描述一个工具的名称、说明与参数 schema。
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ProgressEvent 是推送给调用方的一条上传进度。
type ProgressEvent struct {
	Progress     int           `json:"progress"`
	Status       string        `json:"status"`
	UploadedInfo *UploadedInfo `json:"uploadedInfo,omitempty"`
}
