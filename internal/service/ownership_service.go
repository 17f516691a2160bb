package service

import (
	"context"

	"agent-vault-go/internal/repository"
	"agent-vault-go/pkg/chain"
	"agent-vault-go/pkg/log"
)

// OwnershipService 在任何写操作之前校验调用方是否拥有文件夹。
type OwnershipService interface {
	// IsOwner 比较文件夹 owner 与调用方地址（忽略大小写）。caller 为空时使用服务自身的地址。
	// 任何查询失败（包括文件夹不存在）都返回 false 并记录日志，不会返回错误。
	IsOwner(ctx context.Context, folderID uint64, caller string) bool
}

type ownershipService struct {
	ledger   repository.LedgerRepository
	operator string
}

// NewOwnershipService 创建一个新的 OwnershipService 实例。
func NewOwnershipService(ledger repository.LedgerRepository, operatorAddress string) OwnershipService {
	return &ownershipService{ledger: ledger, operator: operatorAddress}
}

func (s *ownershipService) IsOwner(ctx context.Context, folderID uint64, caller string) bool {
	if caller == "" {
		caller = s.operator
	}
	owner, err := s.ledger.OwnerOf(ctx, folderID)
	if err != nil {
		log.Warnw("[OwnershipService] 无法确认文件夹 owner，拒绝访问",
			"folder_id", folderID, "caller", chain.NormalizeAddress(caller), "error", err)
		return false
	}
	if owner == "" || !chain.SameAddress(owner, caller) {
		log.Infof("[OwnershipService] 调用方 %s 不是文件夹 %d 的 owner", chain.NormalizeAddress(caller), folderID)
		return false
	}
	return true
}
