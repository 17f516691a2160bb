package service

import (
	"context"
	"sync"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/storage"
	"agent-vault-go/pkg/tasks"
)

const (
	operator = "0x00000000000000000000000000000000000000aa"
	owner    = "0xAbCdEf0000000000000000000000000000000001"
	stranger = "0x9999999999999999999999999999999999999999"
)

// fakeBackend 按脚本发出协商事件。
type fakeBackend struct {
	initErr     error
	findErr     error
	datasets    []storage.DatasetInfo
	createErr   error
	createCalls []storage.SessionOptions
	findCalls   int
	session     *fakeSession
	// goneIDs 中的数据集按 ID 复用时返回 ErrDatasetNotFound
	goneIDs map[string]bool
}

func (b *fakeBackend) Init(context.Context) error { return b.initErr }

func (b *fakeBackend) FindSessions(context.Context, string) ([]storage.DatasetInfo, error) {
	b.findCalls++
	return b.datasets, b.findErr
}

func (b *fakeBackend) CreateSession(_ context.Context, opts storage.SessionOptions, sink storage.EventSink) (storage.Session, error) {
	b.createCalls = append(b.createCalls, opts)
	if b.createErr != nil {
		return nil, b.createErr
	}
	if b.goneIDs[opts.DatasetID] {
		return nil, storage.ErrDatasetNotFound
	}
	id := opts.DatasetID
	if id == "" && len(b.datasets) > 0 {
		id = b.datasets[0].ID
	}
	if id != "" {
		sink(storage.Event{Kind: storage.EventDatasetResolved, DatasetID: id})
	} else {
		if !opts.WithCreationFee {
			return nil, storage.ErrCreationFeeRequired
		}
		id = "ds-new"
		sink(storage.Event{Kind: storage.EventDatasetCreationStarted, DatasetID: id, TxHash: "0xcreate", StatusURL: "/status/0xcreate"})
		sink(storage.Event{Kind: storage.EventDatasetCreationProgress, DatasetID: id, Mined: true})
		sink(storage.Event{Kind: storage.EventDatasetCreationProgress, DatasetID: id, Mined: true, ServerConfirmed: true})
	}
	sink(storage.Event{Kind: storage.EventProviderSelected, DatasetID: id, Provider: "alpha"})
	if b.session == nil {
		b.session = &fakeSession{}
	}
	b.session.datasetID = id
	return b.session, nil
}

type fakeSession struct {
	datasetID string
	// transferErr 在 upload complete 之前失败
	transferErr error
	// registerErr 在 upload complete 之后失败
	registerErr error
	// resultCID 覆盖返回值中的 contentId
	resultCID string
	uploaded  int
}

func (s *fakeSession) DatasetID() string { return s.datasetID }
func (s *fakeSession) Provider() string  { return "alpha" }

func (s *fakeSession) Upload(_ context.Context, data []byte, sink storage.EventSink) (*storage.UploadResult, error) {
	s.uploaded++
	total := int64(len(data))
	sink(storage.Event{Kind: storage.EventTransferProgress, BytesSent: total / 2, TotalBytes: total})
	if s.transferErr != nil {
		return nil, s.transferErr
	}
	sink(storage.Event{Kind: storage.EventTransferProgress, BytesSent: total, TotalBytes: total})
	cid, err := storage.ContentID(data)
	if err != nil {
		return nil, err
	}
	sink(storage.Event{Kind: storage.EventUploadComplete, ContentID: cid, Size: total})
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	sink(storage.Event{Kind: storage.EventPieceAdded, ContentID: cid, TxHash: "0xpiece"})
	sink(storage.Event{Kind: storage.EventPieceConfirmed, ContentID: cid, TxHash: "0xpiece"})
	result := &storage.UploadResult{ContentID: cid, Size: total}
	if s.resultCID != "" {
		result.ContentID = s.resultCID
	}
	return result, nil
}

type recordingSink struct {
	events []model.ProgressEvent
}

func (r *recordingSink) sink(e model.ProgressEvent) {
	r.events = append(r.events, e)
}

func (r *recordingSink) progress() []int {
	out := make([]int, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Progress)
	}
	return out
}

func (r *recordingSink) last() model.ProgressEvent {
	return r.events[len(r.events)-1]
}

type fakePublisher struct {
	mu    sync.Mutex
	tasks []tasks.FileIndexTask
	err   error
}

func (p *fakePublisher) PublishFileIndexTask(_ context.Context, task tasks.FileIndexTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
	return p.err
}
