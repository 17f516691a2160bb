package service

import (
	"context"
	"errors"
	"strings"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/search"
)

// ErrSearchUnavailable 表示语义搜索后端不可达。调用方应返回降级结果而不是硬错误。
var ErrSearchUnavailable = errors.New("AI service unavailable")

// SearchService 把自然语言查询转发给语义搜索后端。
type SearchService interface {
	SearchByPrompt(ctx context.Context, prompt, folderID string) ([]model.SearchHit, error)
}

type searchService struct {
	backend search.Backend
}

// NewSearchService 创建一个新的 SearchService 实例。backend 为 nil 时所有查询都返回 ErrSearchUnavailable。
func NewSearchService(backend search.Backend) SearchService {
	return &searchService{backend: backend}
}

func (s *searchService) SearchByPrompt(ctx context.Context, prompt, folderID string) ([]model.SearchHit, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrValidation
	}
	if s.backend == nil {
		return nil, ErrSearchUnavailable
	}
	hits, err := s.backend.Search(ctx, prompt, folderID)
	if err != nil {
		if errors.Is(err, search.ErrUnavailable) {
			log.Warnf("[SearchService] 搜索后端不可用: %v", err)
			return nil, ErrSearchUnavailable
		}
		log.Errorf("[SearchService] 搜索失败: %v", err)
		return nil, err
	}
	log.Infof("[SearchService] 搜索完成, 命中 %d 条", len(hits))
	return hits, nil
}
