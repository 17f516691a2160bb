package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"agent-vault-go/internal/config"
	"agent-vault-go/pkg/chain"
	"agent-vault-go/pkg/log"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioBackend 用 MinIO 模拟一个由多个存储提供方组成的网络：
// 数据集清单保存在 manifest 桶的 datasets/<address>/<id>.json，
// 每个提供方对应一个桶，分片以 pieces/<cid> 的形式保存。
type MinioBackend struct {
	store          objectStore
	manifestBucket string
	providers      []config.ProviderConfig
	creationFee    uint64
	poll           time.Duration
	timeout        time.Duration

	mu          sync.Mutex // 保护 initialized
	initialized bool

	// datasetLocks 按数据集 ID 串行化清单的读改写
	datasetLocks sync.Map
}

type datasetManifest struct {
	ID         string       `json:"id"`
	Owner      string       `json:"owner"`
	Provider   string       `json:"provider"`
	Bucket     string       `json:"bucket"`
	CreatedAt  time.Time    `json:"createdAt"`
	CreationTx string       `json:"creationTx"`
	Fee        uint64       `json:"fee"`
	Pieces     []pieceEntry `json:"pieces"`
}

type pieceEntry struct {
	ContentID string    `json:"contentId"`
	Size      int64     `json:"size"`
	TxHash    string    `json:"txHash"`
	AddedAt   time.Time `json:"addedAt"`
}

// NewMinioBackend 创建 MinIO 客户端。桶的检查与创建推迟到 Init。
func NewMinioBackend(cfg config.StorageConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKeyID, cfg.MinIO.SecretAccessKey, ""),
		Secure: cfg.MinIO.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	return newMinioBackend(&minioStore{client: client}, cfg)
}

func newMinioBackend(store objectStore, cfg config.StorageConfig) (*MinioBackend, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("at least one storage provider is required")
	}
	return &MinioBackend{
		store:          store,
		manifestBucket: cfg.MinIO.ManifestBucket,
		providers:      cfg.Providers,
		creationFee:    cfg.DatasetCreationFee,
		poll:           cfg.ConfirmationPoll,
		timeout:        cfg.ConfirmationTimeout,
	}, nil
}

// Init 确保 manifest 桶与所有提供方桶存在。
func (b *MinioBackend) Init(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return ErrAlreadyInitialized
	}

	buckets := []string{b.manifestBucket}
	for _, p := range b.providers {
		buckets = append(buckets, p.Bucket)
	}
	for _, bucket := range buckets {
		exists, err := b.store.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("检查 MinIO 存储桶 %s 失败: %w", bucket, err)
		}
		if exists {
			continue
		}
		log.Infof("[MinioBackend] 存储桶 '%s' 不存在，正在创建...", bucket)
		if err := b.store.MakeBucket(ctx, bucket); err != nil {
			return fmt.Errorf("创建 MinIO 存储桶 %s 失败: %w", bucket, err)
		}
	}
	b.initialized = true
	log.Infof("[MinioBackend] 存储后端初始化成功, providers: %d", len(b.providers))
	return nil
}

func (b *MinioBackend) ready() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return ErrNotInitialized
	}
	return nil
}

// FindSessions 列出 datasets/<address>/ 下的所有清单。
func (b *MinioBackend) FindSessions(ctx context.Context, address string) ([]DatasetInfo, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	addr := chain.NormalizeAddress(address)
	keys, err := b.store.ListKeys(ctx, b.manifestBucket, manifestPrefix(addr))
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	var infos []DatasetInfo
	for _, key := range keys {
		m, err := b.readManifestKey(ctx, key)
		if err != nil {
			return nil, err
		}
		infos = append(infos, m.info())
	}
	return infos, nil
}

// CreateSession 复用已有数据集，或在允许付费时新建一个。
func (b *MinioBackend) CreateSession(ctx context.Context, opts SessionOptions, sink EventSink) (Session, error) {
	if err := b.ready(); err != nil {
		return nil, err
	}
	addr := chain.NormalizeAddress(opts.Address)

	if opts.DatasetID != "" {
		m, err := b.readManifest(ctx, addr, opts.DatasetID)
		if err != nil {
			return nil, err
		}
		return b.resolved(m, sink), nil
	}

	if !opts.WithCreationFee {
		existing, err := b.FindSessions(ctx, addr)
		if err != nil {
			return nil, err
		}
		if len(existing) == 0 {
			return nil, ErrCreationFeeRequired
		}
		m, err := b.readManifest(ctx, addr, existing[0].ID)
		if err != nil {
			return nil, err
		}
		return b.resolved(m, sink), nil
	}

	return b.createDataset(ctx, addr, sink)
}

func (b *MinioBackend) resolved(m *datasetManifest, sink EventSink) Session {
	sink.emit(Event{Kind: EventDatasetResolved, DatasetID: m.ID, Provider: m.Provider})
	sink.emit(Event{Kind: EventProviderSelected, DatasetID: m.ID, Provider: m.Provider})
	return &minioSession{backend: b, manifest: m}
}

func (b *MinioBackend) createDataset(ctx context.Context, addr string, sink EventSink) (Session, error) {
	provider := b.pickProvider(addr)
	m := &datasetManifest{
		ID:        uuid.NewString(),
		Owner:     addr,
		Provider:  provider.Name,
		Bucket:    provider.Bucket,
		CreatedAt: time.Now().UTC(),
		Fee:       b.creationFee,
	}
	m.CreationTx = chain.Keccak256Hex([]byte(addr), []byte(m.ID), []byte(strconv.FormatUint(m.Fee, 10)))
	key := manifestKey(addr, m.ID)
	start := time.Now()

	sink.emit(Event{
		Kind:      EventDatasetCreationStarted,
		DatasetID: m.ID,
		TxHash:    m.CreationTx,
		StatusURL: fmt.Sprintf("minio://%s/%s", b.manifestBucket, key),
	})

	if err := b.writeManifest(ctx, m); err != nil {
		return nil, err
	}
	sink.emit(Event{Kind: EventDatasetCreationProgress, DatasetID: m.ID, TxHash: m.CreationTx, Mined: true, Elapsed: time.Since(start)})

	if err := b.waitFor(ctx, func(ctx context.Context) (bool, error) {
		return b.store.Exists(ctx, b.manifestBucket, key)
	}); err != nil {
		return nil, fmt.Errorf("confirm dataset %s: %w", m.ID, err)
	}
	sink.emit(Event{Kind: EventDatasetCreationProgress, DatasetID: m.ID, TxHash: m.CreationTx, Mined: true, ServerConfirmed: true, Elapsed: time.Since(start)})
	sink.emit(Event{Kind: EventProviderSelected, DatasetID: m.ID, Provider: m.Provider})

	log.Infof("[MinioBackend] 数据集创建成功, dataset: %s, owner: %s, provider: %s", m.ID, addr, m.Provider)
	return &minioSession{backend: b, manifest: m}, nil
}

// pickProvider 按地址哈希稳定地选择提供方。
func (b *MinioBackend) pickProvider(addr string) config.ProviderConfig {
	h := fnv.New32a()
	_, _ = h.Write([]byte(addr))
	return b.providers[int(h.Sum32()%uint32(len(b.providers)))]
}

// waitFor 按 poll 间隔轮询 check，直到返回 true、出错或超时。
func (b *MinioBackend) waitFor(ctx context.Context, check func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()
	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrConfirmationTimeout
		case <-ticker.C:
		}
	}
}

func (b *MinioBackend) readManifest(ctx context.Context, addr, id string) (*datasetManifest, error) {
	m, err := b.readManifestKey(ctx, manifestKey(addr, id))
	if err != nil {
		if errors.Is(err, errObjectNotFound) {
			return nil, ErrDatasetNotFound
		}
		return nil, err
	}
	if m.Owner != addr {
		return nil, ErrDatasetNotFound
	}
	return m, nil
}

func (b *MinioBackend) readManifestKey(ctx context.Context, key string) (*datasetManifest, error) {
	data, err := b.store.Get(ctx, b.manifestBucket, key)
	if err != nil {
		return nil, fmt.Errorf("get manifest %s: %w", key, err)
	}
	var m datasetManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", key, err)
	}
	return &m, nil
}

func (b *MinioBackend) writeManifest(ctx context.Context, m *datasetManifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := b.store.Put(ctx, b.manifestBucket, manifestKey(m.Owner, m.ID), data, "application/json", nil); err != nil {
		return fmt.Errorf("write manifest %s: %w", m.ID, err)
	}
	return nil
}

func (m *datasetManifest) info() DatasetInfo {
	return DatasetInfo{ID: m.ID, Owner: m.Owner, Provider: m.Provider, CreatedAt: m.CreatedAt, PieceCount: len(m.Pieces)}
}

func manifestPrefix(addr string) string {
	return "datasets/" + addr + "/"
}

func manifestKey(addr, id string) string {
	return manifestPrefix(addr) + id + ".json"
}

func pieceKey(contentID string) string {
	return "pieces/" + contentID
}

// minioSession 是绑定到一个数据集清单的会话。
type minioSession struct {
	backend  *MinioBackend
	manifest *datasetManifest
}

func (s *minioSession) DatasetID() string { return s.manifest.ID }
func (s *minioSession) Provider() string  { return s.manifest.Provider }

// Upload 依次完成字节传输、分片登记与登记确认。
func (s *minioSession) Upload(ctx context.Context, data []byte, sink EventSink) (*UploadResult, error) {
	b := s.backend
	contentID, err := ContentID(data)
	if err != nil {
		return nil, err
	}
	size := int64(len(data))

	progress := &transferProgress{total: size, sink: sink, dataset: s.manifest.ID}
	if err := b.store.Put(ctx, s.manifest.Bucket, pieceKey(contentID), data, "application/octet-stream", progress); err != nil {
		return nil, fmt.Errorf("put piece %s to %s: %w", contentID, s.manifest.Provider, err)
	}
	sink.emit(Event{Kind: EventUploadComplete, DatasetID: s.manifest.ID, Provider: s.manifest.Provider, ContentID: contentID, Size: size})

	txHash, err := s.addPiece(ctx, contentID, size)
	if err != nil {
		return nil, fmt.Errorf("add piece %s: %w", contentID, err)
	}
	sink.emit(Event{Kind: EventPieceAdded, DatasetID: s.manifest.ID, ContentID: contentID, TxHash: txHash})

	if err := b.waitFor(ctx, func(ctx context.Context) (bool, error) {
		m, err := b.readManifest(ctx, s.manifest.Owner, s.manifest.ID)
		if err != nil {
			return false, err
		}
		for _, p := range m.Pieces {
			if p.TxHash == txHash {
				return true, nil
			}
		}
		return false, nil
	}); err != nil {
		return nil, fmt.Errorf("confirm piece %s: %w", contentID, err)
	}
	sink.emit(Event{Kind: EventPieceConfirmed, DatasetID: s.manifest.ID, ContentID: contentID, TxHash: txHash})

	return &UploadResult{ContentID: contentID, Size: size, TxHash: txHash}, nil
}

// addPiece 以读改写方式把分片追加到数据集清单。
func (s *minioSession) addPiece(ctx context.Context, contentID string, size int64) (string, error) {
	b := s.backend
	unlock := b.lockDataset(s.manifest.ID)
	defer unlock()

	m, err := b.readManifest(ctx, s.manifest.Owner, s.manifest.ID)
	if err != nil {
		return "", err
	}
	txHash := chain.Keccak256Hex([]byte(m.ID), []byte(contentID), []byte(strconv.Itoa(len(m.Pieces))))
	m.Pieces = append(m.Pieces, pieceEntry{ContentID: contentID, Size: size, TxHash: txHash, AddedAt: time.Now().UTC()})
	if err := b.writeManifest(ctx, m); err != nil {
		return "", err
	}
	s.manifest = m
	return txHash, nil
}

func (b *MinioBackend) lockDataset(id string) func() {
	v, _ := b.datasetLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// transferProgress 作为 minio 的 Progress reader，每读到 n 字节表示又上传了 n 字节。
type transferProgress struct {
	sent    int64
	total   int64
	dataset string
	sink    EventSink
}

func (p *transferProgress) Read(b []byte) (int, error) {
	n := len(b)
	p.sent += int64(n)
	p.sink.emit(Event{Kind: EventTransferProgress, DatasetID: p.dataset, BytesSent: p.sent, TotalBytes: p.total})
	return n, nil
}
