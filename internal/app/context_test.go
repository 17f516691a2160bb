package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"agent-vault-go/internal/config"
	"agent-vault-go/internal/model"
	"agent-vault-go/internal/tool"
	"agent-vault-go/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const operator = "0x00000000000000000000000000000000000000aa"

// memBackend 是进程内的存储后端，每个地址最多一个数据集。
type memBackend struct {
	mu       sync.Mutex
	datasets map[string]string
	creates  int
}

func newMemBackend() *memBackend {
	return &memBackend{datasets: make(map[string]string)}
}

func (b *memBackend) Init(context.Context) error { return nil }

func (b *memBackend) FindSessions(_ context.Context, address string) ([]storage.DatasetInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.datasets[address]; ok {
		return []storage.DatasetInfo{{ID: id, Owner: address, Provider: "alpha"}}, nil
	}
	return nil, nil
}

func (b *memBackend) CreateSession(_ context.Context, opts storage.SessionOptions, sink storage.EventSink) (storage.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := opts.DatasetID
	if id == "" {
		id = b.datasets[opts.Address]
	}
	if id != "" {
		sink(storage.Event{Kind: storage.EventDatasetResolved, DatasetID: id})
	} else {
		if !opts.WithCreationFee {
			return nil, storage.ErrCreationFeeRequired
		}
		b.creates++
		id = "ds-" + opts.Address
		b.datasets[opts.Address] = id
		sink(storage.Event{Kind: storage.EventDatasetCreationStarted, DatasetID: id, TxHash: "0xcreate"})
		sink(storage.Event{Kind: storage.EventDatasetCreationProgress, DatasetID: id, Mined: true})
		sink(storage.Event{Kind: storage.EventDatasetCreationProgress, DatasetID: id, Mined: true, ServerConfirmed: true})
	}
	sink(storage.Event{Kind: storage.EventProviderSelected, DatasetID: id, Provider: "alpha"})
	return &memSession{id: id}, nil
}

type memSession struct{ id string }

func (s *memSession) DatasetID() string { return s.id }
func (s *memSession) Provider() string  { return "alpha" }

func (s *memSession) Upload(_ context.Context, data []byte, sink storage.EventSink) (*storage.UploadResult, error) {
	cid, err := storage.ContentID(data)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))
	sink(storage.Event{Kind: storage.EventTransferProgress, BytesSent: size, TotalBytes: size})
	sink(storage.Event{Kind: storage.EventUploadComplete, ContentID: cid, Size: size})
	sink(storage.Event{Kind: storage.EventPieceAdded, ContentID: cid, TxHash: "0xpiece"})
	sink(storage.Event{Kind: storage.EventPieceConfirmed, ContentID: cid, TxHash: "0xpiece"})
	return &storage.UploadResult{ContentID: cid, Size: size, TxHash: "0xpiece"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Operator: config.OperatorConfig{Address: operator},
		Ledger:   config.LedgerConfig{Type: "badger"},
		Search:   config.SearchConfig{Type: "http"},
		Seed:     config.SeedConfig{Folder: "Seed"},
	}
}

func newTestContext(t *testing.T, cfg *config.Config, backend *memBackend) *Context {
	t.Helper()
	c, err := NewWithDeps(context.Background(), cfg, Deps{Backend: backend})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func payload(t *testing.T, res *model.ToolResult) map[string]interface{} {
	t.Helper()
	require.Len(t, res.Content, 1)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	return out
}

func TestUploadAndAttachThroughDispatcher(t *testing.T) {
	backend := newMemBackend()
	c := newTestContext(t, testConfig(), backend)
	ctx := context.Background()

	out := payload(t, c.Dispatcher.Dispatch(ctx, tool.ToolCreateFolder, map[string]interface{}{"name": "Receipts"}))
	folderID := out["folderId"].(string)

	var progress []int
	pctx := tool.WithProgress(ctx, func(e model.ProgressEvent) { progress = append(progress, e.Progress) })
	res := c.Dispatcher.Dispatch(pctx, tool.ToolUploadFile, map[string]interface{}{
		"fileContent": base64.StdEncoding.EncodeToString([]byte("0123456789")),
		"fileName":    "a.txt",
		"folderId":    folderID,
	})
	require.False(t, res.IsError)
	out = payload(t, res)
	assert.Equal(t, true, out["linked"])
	assert.Equal(t, float64(10), out["fileSize"])

	require.NotEmpty(t, progress)
	assert.Equal(t, 0, progress[0])
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}

	// 第二次上传复用数据集，不再支付创建费用
	res = c.Dispatcher.Dispatch(ctx, tool.ToolUploadFile, map[string]interface{}{
		"fileContent": base64.StdEncoding.EncodeToString([]byte("second")),
		"fileName":    "b.md",
	})
	require.False(t, res.IsError)
	assert.Equal(t, 1, backend.creates)

	require.NoError(t, c.Reset(ctx))

	files, err := c.Folders.ListFiles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.txt", files[0].Filename)
}

func TestSearchWithoutBackendIsDegraded(t *testing.T) {
	c := newTestContext(t, testConfig(), newMemBackend())
	res := c.Dispatcher.Dispatch(context.Background(), tool.ToolSearchFilesByPrompt, map[string]interface{}{"query": "anything"})
	assert.False(t, res.IsError)
	assert.Equal(t, map[string]interface{}{"success": false, "error": "AI service unavailable"}, payload(t, res))
}

func TestRunIndexerWithoutKafka(t *testing.T) {
	c := newTestContext(t, testConfig(), newMemBackend())
	assert.NoError(t, c.RunIndexer(context.Background()))
}

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "data.csv"), []byte("a,b\n1,2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.bin"), nil, 0o644))

	cfg := testConfig()
	cfg.Seed.Dir = dir
	c := newTestContext(t, cfg, newMemBackend())
	ctx := context.Background()

	n, err := c.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second run must be idempotent")

	folders, err := c.Folders.ListFoldersOwnedBy(ctx, operator)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "Seed", folders[0].Name)
	assert.Equal(t, model.FolderTypeAgent, folders[0].FolderType)

	files, err := c.Folders.ListFiles(ctx, folders[0].ID)
	require.NoError(t, err)
	assert.Len(t, files, 2)
}

func TestSeedSkipsMissingDir(t *testing.T) {
	cfg := testConfig()
	cfg.Seed.Dir = filepath.Join(t.TempDir(), "missing")
	c := newTestContext(t, cfg, newMemBackend())
	n, err := c.Seed(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
