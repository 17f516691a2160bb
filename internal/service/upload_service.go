package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agent-vault-go/internal/model"
	"agent-vault-go/pkg/chain"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/metrics"
	"agent-vault-go/pkg/storage"
)

// 各阶段的进度百分比。
const (
	progressInit            = 0
	progressAllowance       = 5
	progressSessionSetup    = 25
	progressSessionResolved = 30
	progressCreationStarted = 35
	progressCreationMined   = 45
	progressSessionReady    = 50
	progressTransferStart   = 55
	progressTransferEnd     = 80
	progressConfirmed       = 90
	progressDone            = 100
)

// UploadService 负责把一段字节经由存储后端分阶段上传，并向调用方报告进度。
type UploadService interface {
	// Upload 执行一次完整的上传。feeOverride 非空时覆盖是否支付数据集创建费用的判断。
	// 失败时返回 *UploadError；ErrRegistrationFailed 表示字节已存储，只需重试登记。
	Upload(ctx context.Context, data []byte, fileName, address string, sink ProgressSink, feeOverride *bool) (*model.UploadRecord, error)
}

type uploadService struct {
	backend  storage.Backend
	sessions SessionService
	metrics  metrics.VaultMetrics
}

// NewUploadService 创建一个新的 UploadService 实例。backend 可以为 nil，此时上传返回 ErrNotInitialized。
func NewUploadService(backend storage.Backend, sessions SessionService, m metrics.VaultMetrics) UploadService {
	if m == nil {
		m = metrics.NewVaultMetrics()
	}
	return &uploadService{backend: backend, sessions: sessions, metrics: m}
}

// uploadRun 是单次上传调用的临时状态，调用返回后即丢弃。
type uploadRun struct {
	fileName    string
	fileSize    int64
	address     string
	progress    *progressEmitter
	transferred bool
	creationAt  time.Time
}

func (s *uploadService) Upload(ctx context.Context, data []byte, fileName, address string, sink ProgressSink, feeOverride *bool) (*model.UploadRecord, error) {
	start := time.Now()
	run := &uploadRun{
		fileName: fileName,
		fileSize: int64(len(data)),
		address:  chain.NormalizeAddress(address),
		progress: newProgressEmitter(sink, nil),
	}
	run.progress.emit(progressInit, "Initializing upload")

	record, err := s.upload(ctx, run, data, feeOverride)
	if err != nil {
		var uerr *UploadError
		if !errors.As(err, &uerr) {
			uerr = &UploadError{Kind: ErrBackendUnavailable, Phase: "upload", Cause: err}
		}
		uerr.Info = run.progress.info.Clone()
		run.progress.fail(failureReason(uerr))

		outcome := "failed"
		if uerr.Partial() {
			outcome = "partial"
		}
		s.metrics.ObserveUpload(outcome, time.Since(start), run.fileSize)
		log.Errorw("[UploadService] 上传失败",
			"file", fileName, "address", run.address, "phase", uerr.Phase,
			"partial", uerr.Partial(), "last_progress", run.progress.session().Progress, "error", uerr)
		return nil, uerr
	}

	s.metrics.ObserveUpload("success", time.Since(start), run.fileSize)
	log.Infow("[UploadService] 上传成功",
		"file", fileName, "size", run.fileSize, "content_id", record.ContentID, "tx_hash", record.TxHash, "address", run.address,
		"elapsed", time.Since(start).String())
	return record, nil
}

func (s *uploadService) upload(ctx context.Context, run *uploadRun, data []byte, feeOverride *bool) (*model.UploadRecord, error) {
	if err := s.ensureBackend(ctx); err != nil {
		return nil, err
	}
	if run.address == "" {
		return nil, &UploadError{Kind: ErrMissingAddress, Phase: "init"}
	}

	run.progress.emit(progressAllowance, "Checking storage allowance")
	session, err := s.sessions.EnsureSession(ctx, run.address)
	if err != nil {
		return nil, &UploadError{Kind: ErrBackendUnavailable, Phase: "allowance", Cause: err}
	}

	run.progress.emit(progressSessionSetup, "Setting up storage session")
	handle, err := s.createSession(ctx, run, session, feeOverride)
	if errors.Is(err, storage.ErrDatasetNotFound) && session.DatasetID != "" {
		// 缓存的数据集已失效：丢弃后重新查询一次
		log.Warnw("[UploadService] 缓存的数据集已不存在，重新解析",
			"address", run.address, "dataset_id", session.DatasetID)
		s.sessions.Forget(ctx, run.address)
		session, err = s.sessions.EnsureSession(ctx, run.address)
		if err != nil {
			return nil, &UploadError{Kind: ErrBackendUnavailable, Phase: "allowance", Cause: err}
		}
		handle, err = s.createSession(ctx, run, session, feeOverride)
	}
	if err != nil {
		return nil, &UploadError{Kind: ErrBackendUnavailable, Phase: "session", Cause: err}
	}
	s.sessions.Remember(ctx, run.address, handle.DatasetID())
	if run.progress.last < progressSessionReady {
		// 复用的数据集只触发 resolved，这里补齐到会话就绪
		run.progress.emit(progressSessionReady, fmt.Sprintf("Storage session ready (dataset %s)", handle.DatasetID()))
	}

	run.progress.emit(progressTransferStart, fmt.Sprintf("Uploading %s to %s", run.fileName, handle.Provider()))
	result, err := handle.Upload(ctx, data, run.handle)
	if err != nil {
		if run.transferred {
			return nil, &UploadError{Kind: ErrRegistrationFailed, Phase: "registration", Cause: err}
		}
		return nil, &UploadError{Kind: ErrTransferFailed, Phase: "transfer", Cause: err}
	}

	// 后端没有发出 upload complete 事件时，用返回值补齐
	if !run.transferred {
		run.handle(storage.Event{Kind: storage.EventUploadComplete, ContentID: result.ContentID, Size: result.Size})
	}
	info := run.progress.info
	info.Merge(model.UploadedInfo{ContentID: result.ContentID, TxHash: result.TxHash})
	if info.ContentID == "" {
		return nil, &UploadError{Kind: ErrTransferFailed, Phase: "transfer", Cause: errors.New("backend returned no content id")}
	}

	if run.progress.last < progressConfirmed {
		run.progress.emit(progressConfirmed, "Pieces confirmed")
	}
	run.progress.emit(progressDone, "Upload complete")
	return &model.UploadRecord{
		FileName:  info.FileName,
		FileSize:  info.FileSize,
		ContentID: info.ContentID,
		TxHash:    info.TxHash,
	}, nil
}

func (s *uploadService) createSession(ctx context.Context, run *uploadRun, session *model.StorageSession, feeOverride *bool) (storage.Session, error) {
	withFee := session.FeeRequired
	if feeOverride != nil {
		withFee = *feeOverride
	}
	return s.backend.CreateSession(ctx, storage.SessionOptions{
		Address:         run.address,
		DatasetID:       session.DatasetID,
		WithCreationFee: withFee,
	}, run.handle)
}

// ensureBackend 在每次上传前确认后端可用。已初始化是正常情况，真正的初始化失败则报告 ErrNotInitialized。
func (s *uploadService) ensureBackend(ctx context.Context) error {
	if s.backend == nil {
		return &UploadError{Kind: ErrNotInitialized, Phase: "init"}
	}
	if err := s.backend.Init(ctx); err != nil && !errors.Is(err, storage.ErrAlreadyInitialized) {
		return &UploadError{Kind: ErrNotInitialized, Phase: "init", Cause: err}
	}
	return nil
}

// handle 把后端的协商事件流映射到进度。
func (r *uploadRun) handle(e storage.Event) {
	log.Debugf("[UploadService] 后端事件: %s, dataset: %s, file: %s", e.Kind, e.DatasetID, r.fileName)
	p := r.progress
	switch e.Kind {
	case storage.EventDatasetResolved:
		p.emit(progressSessionResolved, fmt.Sprintf("Using existing dataset %s", e.DatasetID))
	case storage.EventDatasetCreationStarted:
		r.creationAt = time.Now()
		status := fmt.Sprintf("Creating dataset (tx %s)", e.TxHash)
		if e.StatusURL != "" {
			status += ", status: " + e.StatusURL
		}
		p.emit(progressCreationStarted, status)
	case storage.EventDatasetCreationProgress:
		elapsed := e.Elapsed
		if elapsed == 0 && !r.creationAt.IsZero() {
			elapsed = time.Since(r.creationAt)
		}
		secs := int(elapsed.Seconds())
		switch {
		case e.ServerConfirmed:
			p.emit(progressSessionReady, fmt.Sprintf("Dataset confirmed by storage backend (%ds)", secs))
		case e.Mined:
			p.emit(progressCreationMined, fmt.Sprintf("Dataset creation mined, awaiting backend confirmation (%ds)", secs))
		default:
			p.emit(progressCreationStarted, fmt.Sprintf("Dataset creation pending (%ds)", secs))
		}
	case storage.EventProviderSelected:
		p.relabel(fmt.Sprintf("Provider selected: %s", e.Provider))
	case storage.EventTransferProgress:
		if e.TotalBytes <= 0 {
			return
		}
		sent := e.BytesSent
		if sent > e.TotalBytes {
			sent = e.TotalBytes
		}
		span := int64(progressTransferEnd - 1 - progressTransferStart)
		p.emit(progressTransferStart+int(span*sent/e.TotalBytes), fmt.Sprintf("Uploading (%d/%d bytes)", sent, e.TotalBytes))
	case storage.EventUploadComplete:
		if r.transferred {
			return
		}
		r.transferred = true
		p.info = &model.UploadedInfo{FileName: r.fileName, FileSize: r.fileSize, ContentID: e.ContentID}
		p.emit(progressTransferEnd, "Upload complete, registering piece")
	case storage.EventPieceAdded:
		if p.info != nil {
			p.info.Merge(model.UploadedInfo{TxHash: e.TxHash})
		}
		p.relabel(fmt.Sprintf("Piece added, awaiting confirmation (tx %s)", e.TxHash))
	case storage.EventPieceConfirmed:
		p.emit(progressConfirmed, "Pieces confirmed")
	}
}

func failureReason(err *UploadError) string {
	if err.Cause != nil {
		return fmt.Sprintf("%v: %v", err.Kind, err.Cause)
	}
	return err.Kind.Error()
}
