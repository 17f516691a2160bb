package model

import "time"

// SearchHit 是语义搜索返回的一条结果。
type SearchHit struct {
	FolderID  string   `json:"folder_id,omitempty"`
	ContentID string   `json:"content_id"`
	Filename  string   `json:"filename"`
	Tags      []string `json:"tags,omitempty"`
	Score     float64  `json:"score"`
	Snippet   string   `json:"snippet,omitempty"`
}

// FileDocument 定义了存储在 Elasticsearch 中的文件索引文档。
type FileDocument struct {
	DocID     string    `json:"doc_id"` // folderId + contentId + txHash，保证追加语义下唯一
	FolderID  uint64    `json:"folder_id"`
	ContentID string    `json:"content_id"`
	Filename  string    `json:"filename"`
	Tags      []string  `json:"tags"`
	Owner     string    `json:"owner"`
	TxHash    string    `json:"tx_hash"`
	IndexedAt time.Time `json:"indexed_at"`
}
