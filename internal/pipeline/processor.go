// Package pipeline 定义了文件登记之后的索引流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/tasks"
)

// DocumentIndexer 是写入搜索索引的最小接口，由 es.Client 实现。
type DocumentIndexer interface {
	IndexDocument(ctx context.Context, doc model.FileDocument) error
}

// Processor 把文件索引任务写入搜索索引。
type Processor struct {
	indexer DocumentIndexer
	now     func() time.Time
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(indexer DocumentIndexer) *Processor {
	return &Processor{indexer: indexer, now: time.Now}
}

// Process 是文件索引的主函数。
func (p *Processor) Process(ctx context.Context, task tasks.FileIndexTask) error {
	log.Infof("[Processor] 开始索引文件, folder: %d, content: %s, file: %s", task.FolderID, task.ContentID, task.FileName)
	if task.ContentID == "" {
		return errors.New("任务缺少 contentId")
	}

	doc := model.FileDocument{
		// 同一 contentId 可以被追加多次，用交易哈希区分每一条记录
		DocID:     fmt.Sprintf("%d_%s_%s", task.FolderID, task.ContentID, task.TxHash),
		FolderID:  task.FolderID,
		ContentID: task.ContentID,
		Filename:  task.FileName,
		Tags:      task.Tags,
		Owner:     task.Owner,
		TxHash:    task.TxHash,
		IndexedAt: p.now().UTC(),
	}
	if err := p.indexer.IndexDocument(ctx, doc); err != nil {
		log.Errorf("[Processor] 索引文件失败, doc: %s, error: %v", doc.DocID, err)
		return fmt.Errorf("索引文件失败: %w", err)
	}
	log.Infof("[Processor] 文件索引成功, doc: %s", doc.DocID)
	return nil
}
