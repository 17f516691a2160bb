// Package model 定义了 ledger 记录、上传会话与工具调用结果等核心数据结构。
package model

import (
	"fmt"
	"time"
)

// FolderType 是文件夹的类别。
type FolderType string

const (
	FolderTypePersonal FolderType = "personal"
	FolderTypeWork     FolderType = "work"
	FolderTypeAgent    FolderType = "agent"
)

// ParseFolderType 将字符串解析为 FolderType，未知值返回错误。
func ParseFolderType(s string) (FolderType, error) {
	switch FolderType(s) {
	case FolderTypePersonal, FolderTypeWork, FolderTypeAgent:
		return FolderType(s), nil
	}
	return "", fmt.Errorf("unknown folder type %q", s)
}

// Folder 是 ledger 中由 mint 生成的文件夹记录。
// Owner 在 mint 之后不可变，文件夹只能通过追加文件来修改。
type Folder struct {
	ID         uint64     `json:"id"`
	Name       string     `json:"name"`
	FolderType FolderType `json:"folderType"`
	IsPublic   bool       `json:"isPublic"`
	Owner      string     `json:"owner"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// FileRecord 是追加到文件夹中的文件引用，只追加、不可修改。
type FileRecord struct {
	ContentID string    `json:"contentId"`
	Filename  string    `json:"filename"`
	Tags      []string  `json:"tags"`
	Timestamp time.Time `json:"timestamp"`
	Owner     string    `json:"owner"`
}

// HasTag 判断记录是否带有指定标签。
func (r FileRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// TxReceipt 是一次 ledger 写交易的回执。
type TxReceipt struct {
	TxHash      string `json:"txHash"`
	FolderID    uint64 `json:"folderId,omitempty"`
	BlockNumber uint64 `json:"blockNumber"`
	Status      string `json:"status"`
}
