// Package storage 定义了内容寻址存储后端的客户端契约，并提供基于 MinIO 的实现。
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

var (
	// ErrAlreadyInitialized 表示后端已初始化，调用方可以继续。
	ErrAlreadyInitialized = errors.New("storage backend already initialized")
	// ErrNotInitialized 表示在 Init 成功之前调用了后端。
	ErrNotInitialized = errors.New("storage backend not initialized")
	// ErrCreationFeeRequired 表示需要新建数据集但未携带创建费用。
	ErrCreationFeeRequired = errors.New("dataset creation fee required")
	// ErrDatasetNotFound 表示按 ID 复用的数据集不存在或不属于该地址。
	ErrDatasetNotFound = errors.New("dataset not found")
	// ErrConfirmationTimeout 表示在超时内未等到确认。
	ErrConfirmationTimeout = errors.New("confirmation timeout")
)

// Backend 是存储后端的客户端视图。
type Backend interface {
	// Init 准备后端。重复调用返回 ErrAlreadyInitialized，与真正的失败区分开。
	Init(ctx context.Context) error
	// FindSessions 列出地址名下已有的数据集，只读。
	FindSessions(ctx context.Context, address string) ([]DatasetInfo, error)
	// CreateSession 复用或创建一个绑定了提供方的数据集。
	CreateSession(ctx context.Context, opts SessionOptions, sink EventSink) (Session, error)
}

// Session 是绑定到某个提供方的数据集句柄。
type Session interface {
	DatasetID() string
	Provider() string
	// Upload 将字节交给提供方并登记分片，通过 sink 报告各阶段事件。
	Upload(ctx context.Context, data []byte, sink EventSink) (*UploadResult, error)
}

// DatasetInfo 是数据集清单的摘要。
type DatasetInfo struct {
	ID         string    `json:"id"`
	Owner      string    `json:"owner"`
	Provider   string    `json:"provider"`
	CreatedAt  time.Time `json:"createdAt"`
	PieceCount int       `json:"pieceCount"`
}

// SessionOptions 控制 CreateSession 的行为。
type SessionOptions struct {
	Address string
	// DatasetID 非空时优先复用该数据集。
	DatasetID string
	// WithCreationFee 为 true 时允许新建数据集并支付创建费用。
	WithCreationFee bool
}

// UploadResult 是一次字节上传的结果。
type UploadResult struct {
	ContentID string
	Size      int64
	TxHash    string
}

// ContentID 计算字节的内容标识：CIDv1，raw 编码，sha2-256。相同字节得到相同 ID。
func ContentID(data []byte) (string, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("compute multihash: %w", err)
	}
	return cid.NewCidV1(cid.Raw, mh).String(), nil
}
