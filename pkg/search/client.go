// Package search provides clients for the semantic file search backend.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/log"
)

// ErrUnavailable 表示搜索后端不可达。
var ErrUnavailable = errors.New("search backend unavailable")

// Backend defines the interface for a search backend.
type Backend interface {
	Search(ctx context.Context, query, folderID string) ([]model.SearchHit, error)
}

type httpBackend struct {
	baseURL string
	client  *http.Client
}

// NewHTTPBackend creates a pass-through client for POST {baseURL}/search.
func NewHTTPBackend(baseURL string, timeout time.Duration) Backend {
	return &httpBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query    string `json:"query"`
	FolderID string `json:"folder_id,omitempty"`
}

type searchResponse struct {
	Results []model.SearchHit `json:"results"`
}

func (b *httpBackend) Search(ctx context.Context, query, folderID string) ([]model.SearchHit, error) {
	log.Infof("[SearchClient] 调用搜索服务, query_len: %d, folder_id: %q", len(query), folderID)
	reqBytes, err := json.Marshal(searchRequest{Query: query, FolderID: folderID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/search", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		log.Errorf("[SearchClient] 调用搜索服务失败, error: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		log.Errorf("[SearchClient] 搜索服务返回状态码: %s", resp.Status)
		return nil, fmt.Errorf("%w: status %s", ErrUnavailable, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search api returned non-200 status: %s", resp.Status)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		log.Errorf("[SearchClient] 解析搜索响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	if sr.Results == nil {
		sr.Results = []model.SearchHit{}
	}
	return sr.Results, nil
}

// Indexer 是 ES 检索所需的最小接口，由 es.Client 实现。
type Indexer interface {
	Search(ctx context.Context, query, folderID string, size int) ([]model.SearchHit, error)
}

type esBackend struct {
	index Indexer
	size  int
}

// NewESBackend 用索引器维护的 Elasticsearch 索引做检索。
func NewESBackend(index Indexer, size int) Backend {
	if size <= 0 {
		size = 10
	}
	return &esBackend{index: index, size: size}
}

func (b *esBackend) Search(ctx context.Context, query, folderID string) ([]model.SearchHit, error) {
	hits, err := b.index.Search(ctx, query, folderID, b.size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return hits, nil
}
