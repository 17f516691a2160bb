// Package service 包含了应用的业务逻辑层：存储会话、分阶段上传、所有权校验与文件夹登记。
package service

import (
	"errors"
	"fmt"

	"agent-vault-go/internal/model"
)

var (
	// ErrNotInitialized 表示没有可用的存储后端。
	ErrNotInitialized = errors.New("storage backend not initialized")
	// ErrMissingAddress 表示无法确定调用方地址。
	ErrMissingAddress = errors.New("missing caller address")
	// ErrBackendUnavailable 表示会话查询或建立失败，整个调用可以重试。
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrTransferFailed 表示字节传输被拒绝。
	ErrTransferFailed = errors.New("byte transfer failed")
	// ErrRegistrationFailed 表示字节已存储但分片登记失败（部分成功），只需重试登记。
	ErrRegistrationFailed = errors.New("piece registration failed")
	// ErrNotOwner 表示调用方不是文件夹的 owner。
	ErrNotOwner = errors.New("caller is not the folder owner")
	// ErrValidation 表示参数不合法。
	ErrValidation = errors.New("invalid arguments")
	// ErrUnknownTool 表示请求了未注册的工具。
	ErrUnknownTool = errors.New("unknown tool")
	// ErrNotFound 表示请求的文件夹不存在。
	ErrNotFound = errors.New("not found")
)

// UploadError 是上传编排失败时返回的错误，记录失败阶段与最后已知的文件信息。
type UploadError struct {
	Kind  error // 上面的某个哨兵错误
	Phase string
	Info  *model.UploadedInfo
	Cause error
}

func (e *UploadError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %v", e.Phase, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Phase, e.Kind, e.Cause)
}

// Is 让 errors.Is(err, ErrTransferFailed) 等判断按 Kind 匹配。
func (e *UploadError) Is(target error) bool {
	return e.Kind == target
}

func (e *UploadError) Unwrap() error {
	return e.Cause
}

// Partial 报告字节是否已经存储、可以通过 contentId 寻址。
func (e *UploadError) Partial() bool {
	return errors.Is(e.Kind, ErrRegistrationFailed) && e.Info != nil && e.Info.ContentID != ""
}
