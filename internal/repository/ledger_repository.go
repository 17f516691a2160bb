// Package repository 定义了与 ledger（文件夹登记簿）及缓存进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"
	"strconv"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/chain"
)

var (
	// ErrFolderNotFound 表示 ledger 中不存在该文件夹。
	ErrFolderNotFound = errors.New("folder not found")
	// ErrNotFolderOwner 表示交易发送方不是文件夹的 owner，ledger 拒绝写入。
	ErrNotFolderOwner = errors.New("sender is not the folder owner")
)

// LedgerRepository 是文件夹/文件登记簿的客户端。
// 写操作都以 sender 的身份提交，返回交易回执。
type LedgerRepository interface {
	// MintFolder 铸造一个归 sender 所有的新文件夹。
	MintFolder(ctx context.Context, sender, name string, folderType model.FolderType, isPublic bool) (*model.TxReceipt, error)
	GetFolderData(ctx context.Context, folderID uint64) (*model.Folder, error)
	// AddFile 向文件夹追加一条文件记录，只有 owner 可以调用。
	AddFile(ctx context.Context, sender string, folderID uint64, contentID, filename string, tags []string) (*model.TxReceipt, error)
	GetFiles(ctx context.Context, folderID uint64) ([]model.FileRecord, error)
	OwnerOf(ctx context.Context, folderID uint64) (string, error)
	GetFoldersOwnedBy(ctx context.Context, owner string) ([]uint64, error)
	SearchByTag(ctx context.Context, tag string) ([]model.FileRecord, error)
	// BalanceOf 返回 owner 持有的文件夹数量。
	BalanceOf(ctx context.Context, owner string) (uint64, error)
	Close() error
}

const (
	methodMint    = "mintFolder"
	methodAddFile = "addFile"
)

// txHash 为一次写交易生成确定性的 keccak-256 哈希。
func txHash(sender, method string, folderID, block uint64) string {
	return chain.Keccak256Hex(
		[]byte(chain.NormalizeAddress(sender)),
		[]byte(method),
		[]byte(strconv.FormatUint(folderID, 10)),
		[]byte(strconv.FormatUint(block, 10)),
	)
}

// normalizeTags 去重并丢弃空标签，保持首次出现的顺序。
func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
