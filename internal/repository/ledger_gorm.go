package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/chain"

	"gorm.io/gorm"
)

// ledgerFolder 对应 ledger_folder 表。
type ledgerFolder struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	Name       string    `gorm:"type:varchar(255);not null"`
	FolderType string    `gorm:"type:varchar(16);not null"`
	IsPublic   bool      `gorm:"not null;default:false"`
	Owner      string    `gorm:"type:varchar(42);not null;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ledgerFolder) TableName() string { return "ledger_folder" }

// ledgerFile 对应 ledger_file 表，只插入不更新。
type ledgerFile struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	FolderID  uint64          `gorm:"not null;index"`
	ContentID string          `gorm:"type:varchar(128);not null"`
	Filename  string          `gorm:"type:varchar(255);not null"`
	Owner     string          `gorm:"type:varchar(42);not null"`
	Timestamp time.Time       `gorm:"not null"`
	Tags      []ledgerFileTag `gorm:"foreignKey:FileID"`
}

func (ledgerFile) TableName() string { return "ledger_file" }

// ledgerFileTag 对应 ledger_file_tag 表。
type ledgerFileTag struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	FileID uint64 `gorm:"not null;index"`
	Tag    string `gorm:"type:varchar(64);not null;index"`
}

func (ledgerFileTag) TableName() string { return "ledger_file_tag" }

// ledgerTx 对应 ledger_tx 表，自增 ID 即区块高度。
type ledgerTx struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Hash      string    `gorm:"type:varchar(66);index"`
	Method    string    `gorm:"type:varchar(32);not null"`
	Sender    string    `gorm:"type:varchar(42);not null"`
	FolderID  uint64    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (ledgerTx) TableName() string { return "ledger_tx" }

// gormLedger 是 LedgerRepository 的 MySQL 实现。
type gormLedger struct {
	db *gorm.DB
}

// NewGormLedger 创建一个基于 GORM 的 ledger，并确保表结构存在。
func NewGormLedger(db *gorm.DB) (LedgerRepository, error) {
	if err := db.AutoMigrate(&ledgerFolder{}, &ledgerFile{}, &ledgerFileTag{}, &ledgerTx{}); err != nil {
		return nil, fmt.Errorf("migrate ledger tables: %w", err)
	}
	return &gormLedger{db: db}, nil
}

func (l *gormLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// recordTx 在事务内写入一条交易记录，返回回执。
func recordTx(tx *gorm.DB, sender, method string, folderID uint64) (*model.TxReceipt, error) {
	row := ledgerTx{Method: method, Sender: sender, FolderID: folderID}
	if err := tx.Create(&row).Error; err != nil {
		return nil, err
	}
	row.Hash = txHash(sender, method, folderID, row.ID)
	if err := tx.Model(&row).Update("hash", row.Hash).Error; err != nil {
		return nil, err
	}
	return &model.TxReceipt{TxHash: row.Hash, FolderID: folderID, BlockNumber: row.ID, Status: "success"}, nil
}

func (l *gormLedger) MintFolder(ctx context.Context, sender, name string, folderType model.FolderType, isPublic bool) (*model.TxReceipt, error) {
	owner := chain.NormalizeAddress(sender)
	var receipt *model.TxReceipt
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder := ledgerFolder{Name: name, FolderType: string(folderType), IsPublic: isPublic, Owner: owner}
		if err := tx.Create(&folder).Error; err != nil {
			return err
		}
		var err error
		receipt, err = recordTx(tx, owner, methodMint, folder.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("mint folder: %w", err)
	}
	return receipt, nil
}

func (l *gormLedger) findFolder(tx *gorm.DB, folderID uint64) (*ledgerFolder, error) {
	var folder ledgerFolder
	if err := tx.First(&folder, folderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFolderNotFound
		}
		return nil, err
	}
	return &folder, nil
}

func (l *gormLedger) GetFolderData(ctx context.Context, folderID uint64) (*model.Folder, error) {
	folder, err := l.findFolder(l.db.WithContext(ctx), folderID)
	if err != nil {
		return nil, err
	}
	return &model.Folder{
		ID:         folder.ID,
		Name:       folder.Name,
		FolderType: model.FolderType(folder.FolderType),
		IsPublic:   folder.IsPublic,
		Owner:      folder.Owner,
		CreatedAt:  folder.CreatedAt,
	}, nil
}

func (l *gormLedger) AddFile(ctx context.Context, sender string, folderID uint64, contentID, filename string, tags []string) (*model.TxReceipt, error) {
	from := chain.NormalizeAddress(sender)
	var receipt *model.TxReceipt
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		folder, err := l.findFolder(tx, folderID)
		if err != nil {
			return err
		}
		if folder.Owner != from {
			return ErrNotFolderOwner
		}
		file := ledgerFile{
			FolderID:  folderID,
			ContentID: contentID,
			Filename:  filename,
			Owner:     from,
			Timestamp: time.Now().UTC(),
		}
		for _, t := range normalizeTags(tags) {
			file.Tags = append(file.Tags, ledgerFileTag{Tag: t})
		}
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		receipt, err = recordTx(tx, from, methodAddFile, folderID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("add file to folder %d: %w", folderID, err)
	}
	return receipt, nil
}

func (l *gormLedger) GetFiles(ctx context.Context, folderID uint64) ([]model.FileRecord, error) {
	db := l.db.WithContext(ctx)
	if _, err := l.findFolder(db, folderID); err != nil {
		return nil, err
	}
	var rows []ledgerFile
	if err := db.Preload("Tags").Where("folder_id = ?", folderID).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	return toFileRecords(rows), nil
}

func (l *gormLedger) OwnerOf(ctx context.Context, folderID uint64) (string, error) {
	folder, err := l.findFolder(l.db.WithContext(ctx), folderID)
	if err != nil {
		return "", err
	}
	return folder.Owner, nil
}

func (l *gormLedger) GetFoldersOwnedBy(ctx context.Context, owner string) ([]uint64, error) {
	ids := []uint64{}
	err := l.db.WithContext(ctx).Model(&ledgerFolder{}).
		Where("owner = ?", chain.NormalizeAddress(owner)).
		Order("id").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (l *gormLedger) SearchByTag(ctx context.Context, tag string) ([]model.FileRecord, error) {
	var rows []ledgerFile
	err := l.db.WithContext(ctx).
		Preload("Tags").
		Where("id IN (?)", l.db.Model(&ledgerFileTag{}).Select("file_id").Where("tag = ?", tag)).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toFileRecords(rows), nil
}

func (l *gormLedger) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&ledgerFolder{}).
		Where("owner = ?", chain.NormalizeAddress(owner)).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func toFileRecords(rows []ledgerFile) []model.FileRecord {
	records := make([]model.FileRecord, 0, len(rows))
	for _, row := range rows {
		tags := make([]string, 0, len(row.Tags))
		for _, t := range row.Tags {
			tags = append(tags, t.Tag)
		}
		records = append(records, model.FileRecord{
			ContentID: row.ContentID,
			Filename:  row.Filename,
			Tags:      tags,
			Timestamp: row.Timestamp,
			Owner:     row.Owner,
		})
	}
	return records
}
