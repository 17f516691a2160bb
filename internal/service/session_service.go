package service

import (
	"context"
	"fmt"

	"agent-vault-go/internal/model"
	"agent-vault-go/internal/repository"
	"agent-vault-go/pkg/chain"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/storage"
)

// SessionService 负责查询某个地址在存储后端上的数据集状态。
type SessionService interface {
	// EnsureSession 只读地查询数据集是否存在。不存在时 FeeRequired 为 true。
	EnsureSession(ctx context.Context, address string) (*model.StorageSession, error)
	// Remember 在上传建立了数据集后记录下来，使后续查询命中缓存。
	Remember(ctx context.Context, address, datasetID string)
	// Forget 丢弃地址的缓存项，下一次 EnsureSession 会重新查询后端。
	Forget(ctx context.Context, address string)
	// Reset 清空缓存。
	Reset(ctx context.Context) error
}

type sessionService struct {
	backend storage.Backend
	cache   repository.SessionCache
}

// NewSessionService 创建一个新的 SessionService 实例。
func NewSessionService(backend storage.Backend, cache repository.SessionCache) SessionService {
	return &sessionService{backend: backend, cache: cache}
}

func (s *sessionService) EnsureSession(ctx context.Context, address string) (*model.StorageSession, error) {
	addr := chain.NormalizeAddress(address)
	if addr == "" {
		return nil, ErrMissingAddress
	}
	if s.backend == nil {
		return nil, ErrNotInitialized
	}

	if id, ok, err := s.cache.Get(ctx, addr); err != nil {
		// 缓存不可用时退回到直接查询后端
		log.Warnf("[SessionService] 读取会话缓存失败, address: %s, error: %v", addr, err)
	} else if ok {
		return &model.StorageSession{DatasetExists: true, DatasetID: id}, nil
	}

	datasets, err := s.backend.FindSessions(ctx, addr)
	if err != nil {
		log.Errorf("[SessionService] 查询数据集失败, address: %s, error: %v", addr, err)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(datasets) == 0 {
		log.Infof("[SessionService] 地址 %s 尚无数据集，下次上传需要支付创建费用", addr)
		return &model.StorageSession{DatasetExists: false, FeeRequired: true}, nil
	}

	s.Remember(ctx, addr, datasets[0].ID)
	return &model.StorageSession{DatasetExists: true, DatasetID: datasets[0].ID}, nil
}

func (s *sessionService) Remember(ctx context.Context, address, datasetID string) {
	if datasetID == "" {
		return
	}
	if err := s.cache.Put(ctx, address, datasetID); err != nil {
		log.Warnf("[SessionService] 写入会话缓存失败, address: %s, error: %v", address, err)
	}
}

func (s *sessionService) Forget(ctx context.Context, address string) {
	if err := s.cache.Forget(ctx, chain.NormalizeAddress(address)); err != nil {
		log.Warnf("[SessionService] 删除会话缓存失败, address: %s, error: %v", address, err)
	}
}

func (s *sessionService) Reset(ctx context.Context) error {
	return s.cache.Reset(ctx)
}
