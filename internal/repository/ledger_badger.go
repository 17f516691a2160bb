package repository

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/chain"

	"github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	m:folders               -> uint64 已铸造的文件夹数量（最后一个 id）
//	m:block                 -> uint64 已提交的写交易数量（区块高度）
//	f:<id>                  -> Folder JSON
//	n:<id>                  -> uint64 文件夹中的文件数
//	r:<id>:<seq>            -> FileRecord JSON
//	o:<owner>:<id>          -> 空值，owner 索引
//	t:<hex(tag)>:<id>:<seq> -> FileRecord JSON，标签索引
var (
	keyFolderCount = []byte("m:folders")
	keyBlock       = []byte("m:block")
)

func keyFolder(id uint64) []byte      { return []byte(fmt.Sprintf("f:%020d", id)) }
func keyFileCount(id uint64) []byte   { return []byte(fmt.Sprintf("n:%020d", id)) }
func prefixFiles(id uint64) []byte    { return []byte(fmt.Sprintf("r:%020d:", id)) }
func prefixOwner(owner string) []byte { return []byte("o:" + owner + ":") }

// 标签可以包含 ':'，所以在键里做 hex 编码
func prefixTag(tag string) []byte { return []byte("t:" + hex.EncodeToString([]byte(tag)) + ":") }

func keyFile(id, seq uint64) []byte {
	return append(prefixFiles(id), []byte(fmt.Sprintf("%010d", seq))...)
}

func keyOwner(owner string, id uint64) []byte {
	return append(prefixOwner(owner), []byte(fmt.Sprintf("%020d", id))...)
}

func keyTag(tag string, id, seq uint64) []byte {
	return append(prefixTag(tag), []byte(fmt.Sprintf("%020d:%010d", id, seq))...)
}

const maxConflictRetries = 8

// badgerLedger 是 LedgerRepository 的嵌入式实现，dir 为空时运行在内存中。
type badgerLedger struct {
	db *badger.DB
}

// NewBadgerLedger 打开（或创建）一个 badger ledger。
func NewBadgerLedger(dir string) (LedgerRepository, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.WARNING)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger at %q: %w", dir, err)
	}
	return &badgerLedger{db: db}, nil
}

func (l *badgerLedger) Close() error {
	return l.db.Close()
}

// update 执行一个写事务，遇到乐观并发冲突时重试。
func (l *badgerLedger) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = l.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (l *badgerLedger) MintFolder(ctx context.Context, sender, name string, folderType model.FolderType, isPublic bool) (*model.TxReceipt, error) {
	owner := chain.NormalizeAddress(sender)
	var receipt *model.TxReceipt
	err := l.update(ctx, func(txn *badger.Txn) error {
		id, err := incrCounter(txn, keyFolderCount)
		if err != nil {
			return err
		}
		block, err := incrCounter(txn, keyBlock)
		if err != nil {
			return err
		}
		folder := model.Folder{
			ID:         id,
			Name:       name,
			FolderType: folderType,
			IsPublic:   isPublic,
			Owner:      owner,
			CreatedAt:  time.Now().UTC(),
		}
		if err := setJSON(txn, keyFolder(id), folder); err != nil {
			return err
		}
		if err := txn.Set(keyOwner(owner, id), nil); err != nil {
			return err
		}
		receipt = &model.TxReceipt{TxHash: txHash(owner, methodMint, id, block), FolderID: id, BlockNumber: block, Status: "success"}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("mint folder: %w", err)
	}
	return receipt, nil
}

func (l *badgerLedger) GetFolderData(ctx context.Context, folderID uint64) (*model.Folder, error) {
	var folder model.Folder
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, keyFolder(folderID), &folder)
	})
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (l *badgerLedger) AddFile(ctx context.Context, sender string, folderID uint64, contentID, filename string, tags []string) (*model.TxReceipt, error) {
	from := chain.NormalizeAddress(sender)
	tags = normalizeTags(tags)
	var receipt *model.TxReceipt
	err := l.update(ctx, func(txn *badger.Txn) error {
		var folder model.Folder
		if err := getJSON(txn, keyFolder(folderID), &folder); err != nil {
			return err
		}
		if folder.Owner != from {
			return ErrNotFolderOwner
		}
		seq, err := incrCounter(txn, keyFileCount(folderID))
		if err != nil {
			return err
		}
		block, err := incrCounter(txn, keyBlock)
		if err != nil {
			return err
		}
		record := model.FileRecord{
			ContentID: contentID,
			Filename:  filename,
			Tags:      tags,
			Timestamp: time.Now().UTC(),
			Owner:     from,
		}
		if err := setJSON(txn, keyFile(folderID, seq), record); err != nil {
			return err
		}
		for _, tag := range tags {
			if err := setJSON(txn, keyTag(tag, folderID, seq), record); err != nil {
				return err
			}
		}
		receipt = &model.TxReceipt{TxHash: txHash(from, methodAddFile, folderID, block), FolderID: folderID, BlockNumber: block, Status: "success"}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add file to folder %d: %w", folderID, err)
	}
	return receipt, nil
}

func (l *badgerLedger) GetFiles(ctx context.Context, folderID uint64) ([]model.FileRecord, error) {
	records := []model.FileRecord{}
	err := l.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(keyFolder(folderID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrFolderNotFound
			}
			return err
		}
		return scanJSON(txn, prefixFiles(folderID), func(val []byte) error {
			var r model.FileRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (l *badgerLedger) OwnerOf(ctx context.Context, folderID uint64) (string, error) {
	folder, err := l.GetFolderData(ctx, folderID)
	if err != nil {
		return "", err
	}
	return folder.Owner, nil
}

func (l *badgerLedger) GetFoldersOwnedBy(ctx context.Context, owner string) ([]uint64, error) {
	prefix := prefixOwner(chain.NormalizeAddress(owner))
	ids := []uint64{}
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			raw := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			id, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("corrupt owner index key %q: %w", it.Item().Key(), err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (l *badgerLedger) SearchByTag(ctx context.Context, tag string) ([]model.FileRecord, error) {
	records := []model.FileRecord{}
	err := l.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, prefixTag(tag), func(val []byte) error {
			var r model.FileRecord
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			if r.HasTag(tag) {
				records = append(records, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (l *badgerLedger) BalanceOf(ctx context.Context, owner string) (uint64, error) {
	ids, err := l.GetFoldersOwnedBy(ctx, owner)
	if err != nil {
		return 0, err
	}
	return uint64(len(ids)), nil
}

func incrCounter(txn *badger.Txn, key []byte) (uint64, error) {
	var n uint64
	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		if err := item.Value(func(val []byte) error {
			n = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return 0, err
		}
	}
	n++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	if err := txn.Set(key, buf); err != nil {
		return 0, err
	}
	return n, nil
}

func setJSON(txn *badger.Txn, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func getJSON(txn *badger.Txn, key []byte, v interface{}) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrFolderNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func scanJSON(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}
