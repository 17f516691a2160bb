package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"agent-vault-go/internal/model"
	"agent-vault-go/internal/repository"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/tasks"
)

// ProvenanceTag 标记由 agent 上传并登记的文件。
const ProvenanceTag = "agent-upload"

// FileEventPublisher 发布文件登记事件，供索引器消费。
type FileEventPublisher interface {
	PublishFileIndexTask(ctx context.Context, task tasks.FileIndexTask) error
}

// FolderService 是文件夹登记簿之上的业务操作。
type FolderService interface {
	CreateFolder(ctx context.Context, caller, name string, folderType model.FolderType, isPublic bool) (*model.TxReceipt, error)
	GetFolder(ctx context.Context, folderID uint64) (*model.Folder, error)
	ListFiles(ctx context.Context, folderID uint64) ([]model.FileRecord, error)
	ListFoldersOwnedBy(ctx context.Context, owner string) ([]model.Folder, error)
	// AttachFile 在通过所有权校验后向文件夹追加一条文件记录。不是幂等的。
	AttachFile(ctx context.Context, folderID uint64, contentID, fileName, caller string) (*model.TxReceipt, error)
	SearchByTag(ctx context.Context, tag string) ([]model.FileRecord, error)
	Balance(ctx context.Context, owner string) (uint64, error)
}

type folderService struct {
	ledger    repository.LedgerRepository
	ownership OwnershipService
	publisher FileEventPublisher
	operator  string
}

// NewFolderService 创建一个新的 FolderService 实例。publisher 可以为 nil。
func NewFolderService(ledger repository.LedgerRepository, ownership OwnershipService, publisher FileEventPublisher, operatorAddress string) FolderService {
	return &folderService{
		ledger:    ledger,
		ownership: ownership,
		publisher: publisher,
		operator:  operatorAddress,
	}
}

func (s *folderService) caller(addr string) string {
	if addr == "" {
		return s.operator
	}
	return addr
}

func (s *folderService) CreateFolder(ctx context.Context, caller, name string, folderType model.FolderType, isPublic bool) (*model.TxReceipt, error) {
	receipt, err := s.ledger.MintFolder(ctx, s.caller(caller), name, folderType, isPublic)
	if err != nil {
		log.Errorf("[FolderService] 创建文件夹失败, name: %s, error: %v", name, err)
		return nil, err
	}
	log.Infof("[FolderService] 文件夹创建成功, id: %d, name: %s, tx: %s", receipt.FolderID, name, receipt.TxHash)
	return receipt, nil
}

func (s *folderService) GetFolder(ctx context.Context, folderID uint64) (*model.Folder, error) {
	folder, err := s.ledger.GetFolderData(ctx, folderID)
	if err != nil {
		return nil, mapLedgerError(folderID, err)
	}
	return folder, nil
}

func (s *folderService) ListFiles(ctx context.Context, folderID uint64) ([]model.FileRecord, error) {
	files, err := s.ledger.GetFiles(ctx, folderID)
	if err != nil {
		return nil, mapLedgerError(folderID, err)
	}
	return files, nil
}

func (s *folderService) ListFoldersOwnedBy(ctx context.Context, owner string) ([]model.Folder, error) {
	ids, err := s.ledger.GetFoldersOwnedBy(ctx, s.caller(owner))
	if err != nil {
		return nil, err
	}
	folders := make([]model.Folder, 0, len(ids))
	for _, id := range ids {
		folder, err := s.ledger.GetFolderData(ctx, id)
		if err != nil {
			return nil, mapLedgerError(id, err)
		}
		folders = append(folders, *folder)
	}
	return folders, nil
}

func (s *folderService) AttachFile(ctx context.Context, folderID uint64, contentID, fileName, caller string) (*model.TxReceipt, error) {
	caller = s.caller(caller)
	if !s.ownership.IsOwner(ctx, folderID, caller) {
		return nil, fmt.Errorf("%w: folder %d", ErrNotOwner, folderID)
	}

	tags := DeriveTags(fileName)
	receipt, err := s.ledger.AddFile(ctx, caller, folderID, contentID, fileName, tags)
	if err != nil {
		log.Errorw("[FolderService] 追加文件失败", "folder_id", folderID, "content_id", contentID, "error", err)
		return nil, mapLedgerError(folderID, err)
	}
	log.Infow("[FolderService] 文件已登记到文件夹", "folder_id", folderID, "content_id", contentID, "file", fileName, "tx", receipt.TxHash)

	if s.publisher != nil {
		task := tasks.FileIndexTask{
			FolderID:  folderID,
			ContentID: contentID,
			FileName:  fileName,
			Tags:      tags,
			Owner:     caller,
			TxHash:    receipt.TxHash,
		}
		if err := s.publisher.PublishFileIndexTask(ctx, task); err != nil {
			// 登记已经上链，索引失败不影响结果
			log.Warnf("[FolderService] 发布文件索引任务失败, folder: %d, content: %s, error: %v", folderID, contentID, err)
		}
	}
	return receipt, nil
}

func (s *folderService) SearchByTag(ctx context.Context, tag string) ([]model.FileRecord, error) {
	return s.ledger.SearchByTag(ctx, strings.ToLower(strings.TrimSpace(tag)))
}

func (s *folderService) Balance(ctx context.Context, owner string) (uint64, error) {
	return s.ledger.BalanceOf(ctx, s.caller(owner))
}

// DeriveTags 由文件名确定性地生成标签：小写扩展名（如果有）加上来源标签。
func DeriveTags(fileName string) []string {
	var tags []string
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), ".")); ext != "" {
		tags = append(tags, ext)
	}
	return append(tags, ProvenanceTag)
}

func mapLedgerError(folderID uint64, err error) error {
	switch {
	case errors.Is(err, repository.ErrFolderNotFound):
		return fmt.Errorf("%w: folder %d", ErrNotFound, folderID)
	case errors.Is(err, repository.ErrNotFolderOwner):
		return fmt.Errorf("%w: folder %d", ErrNotOwner, folderID)
	}
	return err
}
