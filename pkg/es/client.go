// Package es 提供了与 Elasticsearch 交互的客户端功能：文件索引的创建、写入与检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"agent-vault-go/internal/config"
	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Client 封装了 Elasticsearch 客户端与文件索引名。
type Client struct {
	es        *elasticsearch.Client
	indexName string
}

// NewClient 初始化 Elasticsearch 客户端
func NewClient(esCfg config.ElasticsearchConfig) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{es: client, indexName: esCfg.IndexName}, nil
}

const fileIndexMapping = `{
	"mappings": {
		"properties": {
			"doc_id": { "type": "keyword" },
			"folder_id": { "type": "keyword" },
			"content_id": { "type": "keyword" },
			"filename": {
				"type": "text",
				"fields": { "raw": { "type": "keyword" } }
			},
			"tags": { "type": "keyword" },
			"owner": { "type": "keyword" },
			"tx_hash": { "type": "keyword" },
			"indexed_at": { "type": "date" }
		}
	}
}`

// EnsureIndex 检查索引是否存在，如果不存在则创建它
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.indexName}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("[ES] 检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[ES] 索引 '%s' 已存在", c.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = c.es.Indices.Create(
		c.indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(fileIndexMapping)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", c.indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("[ES] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", c.indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("[ES] 索引 '%s' 创建成功", c.indexName)
	return nil
}

// IndexDocument 将一条文件记录索引到 Elasticsearch，DocID 相同的文档会被覆盖。
func (c *Client) IndexDocument(ctx context.Context, doc model.FileDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      c.indexName,
		DocumentID: doc.DocID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("[ES] 索引文档到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index document")
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64            `json:"_score"`
			Source model.FileDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search 按文件名与标签做全文检索，folderID 非空时只在该文件夹内检索。
func (c *Client) Search(ctx context.Context, query, folderID string, size int) ([]model.SearchHit, error) {
	boolQuery := map[string]interface{}{
		"should": []interface{}{
			map[string]interface{}{"match": map[string]interface{}{"filename": map[string]interface{}{"query": query, "fuzziness": "AUTO"}}},
			map[string]interface{}{"terms": map[string]interface{}{"tags": strings.Fields(strings.ToLower(query))}},
		},
		"minimum_should_match": 1,
	}
	if folderID != "" {
		boolQuery["filter"] = []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"folder_id": folderID}},
		}
	}
	body := map[string]interface{}{
		"size":  size,
		"query": map[string]interface{}{"bool": boolQuery},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		hits = append(hits, model.SearchHit{
			FolderID:  fmt.Sprintf("%d", h.Source.FolderID),
			ContentID: h.Source.ContentID,
			Filename:  h.Source.Filename,
			Tags:      h.Source.Tags,
			Score:     h.Score,
		})
	}
	return hits, nil
}
