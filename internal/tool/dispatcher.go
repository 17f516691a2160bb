// Package tool 把工具调用路由到文件夹、上传与搜索服务，并把结果和错误统一成文本内容。
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"agent-vault-go/internal/model"
	"agent-vault-go/internal/service"
	"agent-vault-go/pkg/chain"
	"agent-vault-go/pkg/log"
	"agent-vault-go/pkg/metrics"
)

type ctxKey int

const (
	callerKey ctxKey = iota
	progressKey
)

// WithCaller 把调用方地址放进 ctx，未设置时使用运营地址。
func WithCaller(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, callerKey, address)
}

// CallerFrom 取出 WithCaller 设置的地址。
func CallerFrom(ctx context.Context) string {
	addr, _ := ctx.Value(callerKey).(string)
	return addr
}

// WithProgress 把上传进度回调放进 ctx。
func WithProgress(ctx context.Context, sink service.ProgressSink) context.Context {
	return context.WithValue(ctx, progressKey, sink)
}

func progressFrom(ctx context.Context) service.ProgressSink {
	sink, _ := ctx.Value(progressKey).(service.ProgressSink)
	return sink
}

// Dispatcher 是工具调用的最外层错误边界，任何下游错误都不会越过它。
type Dispatcher struct {
	folders  service.FolderService
	uploads  service.UploadService
	search   service.SearchService
	operator string
	metrics  metrics.VaultMetrics
}

// NewDispatcher 创建一个新的 Dispatcher 实例。
func NewDispatcher(folders service.FolderService, uploads service.UploadService, search service.SearchService, operatorAddress string, m metrics.VaultMetrics) *Dispatcher {
	if m == nil {
		m = metrics.NewVaultMetrics()
	}
	return &Dispatcher{
		folders:  folders,
		uploads:  uploads,
		search:   search,
		operator: chain.NormalizeAddress(operatorAddress),
		metrics:  m,
	}
}

// Tools 返回可用工具的声明。
func (d *Dispatcher) Tools() []model.ToolDefinition {
	return Definitions()
}

// Dispatch 执行一次工具调用。返回值永远非 nil。
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}) (result *model.ToolResult) {
	start := time.Now()
	if args == nil {
		args = map[string]interface{}{}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorw("[ToolDispatcher] 工具调用 panic", "tool", name, "panic", r)
			result = errorResult(name, args, fmt.Errorf("internal error: %v", r))
		}
		d.metrics.ObserveTool(name, result.IsError, time.Since(start))
	}()

	payload, err := d.call(ctx, name, args)
	if err != nil {
		log.Warnw("[ToolDispatcher] 工具调用失败", "tool", name, "caller", d.caller(ctx), "error", err)
		return errorResult(name, args, err)
	}
	res, err := textContent(payload)
	if err != nil {
		log.Errorw("[ToolDispatcher] 序列化结果失败", "tool", name, "error", err)
		return errorResult(name, args, err)
	}
	return res
}

func (d *Dispatcher) call(ctx context.Context, name string, args map[string]interface{}) (interface{}, error) {
	switch name {
	case ToolCreateFolder:
		return d.createFolder(ctx, args)
	case ToolUploadFile:
		return d.uploadFile(ctx, args)
	case ToolAttachFile:
		return d.attachFile(ctx, args)
	case ToolGetFolder:
		return d.getFolder(ctx, args)
	case ToolListFolderFiles:
		return d.listFolderFiles(ctx, args)
	case ToolListMyFolders:
		return d.listMyFolders(ctx, args)
	case ToolSearchFilesByTag:
		return d.searchByTag(ctx, args)
	case ToolSearchFilesByPrompt:
		return d.searchByPrompt(ctx, args)
	case ToolGetBalance:
		return d.getBalance(ctx, args)
	default:
		return nil, fmt.Errorf("%w: %s", service.ErrUnknownTool, name)
	}
}

func (d *Dispatcher) caller(ctx context.Context) string {
	if addr := CallerFrom(ctx); addr != "" {
		return chain.NormalizeAddress(addr)
	}
	return d.operator
}

func (d *Dispatcher) createFolder(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a createFolderArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	folderType := model.FolderTypePersonal
	if a.FolderType != "" {
		// oneof 已经校验过
		folderType, _ = model.ParseFolderType(a.FolderType)
	}
	receipt, err := d.folders.CreateFolder(ctx, d.caller(ctx), strings.TrimSpace(a.Name), folderType, a.IsPublic)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":     true,
		"folderId":    formatID(receipt.FolderID),
		"name":        strings.TrimSpace(a.Name),
		"folderType":  folderType,
		"txHash":      receipt.TxHash,
		"blockNumber": receipt.BlockNumber,
	}, nil
}

func (d *Dispatcher) uploadFile(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a uploadFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	var folderID uint64
	if a.FolderID != "" {
		id, err := parseFolderID(a.FolderID)
		if err != nil {
			return nil, err
		}
		folderID = id
	}
	data, err := decodeContent(a.FileContent)
	if err != nil {
		return nil, err
	}

	caller := d.caller(ctx)
	record, err := d.uploads.Upload(ctx, data, a.FileName, caller, progressFrom(ctx), a.WithCreationFee)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{
		"success":   true,
		"fileName":  record.FileName,
		"fileSize":  record.FileSize,
		"contentId": record.ContentID,
	}
	if record.TxHash != "" {
		out["txHash"] = record.TxHash
	}
	if a.FolderID == "" {
		return out, nil
	}

	out["folderId"] = formatID(folderID)
	receipt, err := d.folders.AttachFile(ctx, folderID, record.ContentID, record.FileName, caller)
	if err != nil {
		// 字节已经存储，只是还没有登记到文件夹
		log.Warnw("[ToolDispatcher] 上传成功但登记失败", "folder", folderID, "content_id", record.ContentID, "error", err)
		out["linked"] = false
		out["linkError"] = err.Error()
		return out, nil
	}
	out["linked"] = true
	out["linkTxHash"] = receipt.TxHash
	return out, nil
}

func (d *Dispatcher) attachFile(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a attachFileArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	folderID, err := parseFolderID(a.FolderID)
	if err != nil {
		return nil, err
	}
	receipt, err := d.folders.AttachFile(ctx, folderID, strings.TrimSpace(a.ContentID), a.FileName, d.caller(ctx))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":     true,
		"folderId":    formatID(folderID),
		"contentId":   strings.TrimSpace(a.ContentID),
		"fileName":    a.FileName,
		"tags":        service.DeriveTags(a.FileName),
		"txHash":      receipt.TxHash,
		"blockNumber": receipt.BlockNumber,
	}, nil
}

func (d *Dispatcher) getFolder(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a folderArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	folderID, err := parseFolderID(a.FolderID)
	if err != nil {
		return nil, err
	}
	folder, err := d.folders.GetFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"folder":  newFolderView(*folder),
	}, nil
}

func (d *Dispatcher) listFolderFiles(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a folderArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	folderID, err := parseFolderID(a.FolderID)
	if err != nil {
		return nil, err
	}
	files, err := d.folders.ListFiles(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":  true,
		"folderId": formatID(folderID),
		"count":    len(files),
		"files":    nonNilFiles(files),
	}, nil
}

func (d *Dispatcher) listMyFolders(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a addressArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	owner := d.ownerArg(ctx, a.Address)
	folders, err := d.folders.ListFoldersOwnedBy(ctx, owner)
	if err != nil {
		return nil, err
	}
	views := make([]folderView, 0, len(folders))
	for _, f := range folders {
		views = append(views, newFolderView(f))
	}
	return map[string]interface{}{
		"success": true,
		"address": owner,
		"count":   len(views),
		"folders": views,
	}, nil
}

func (d *Dispatcher) searchByTag(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a tagArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	files, err := d.folders.SearchByTag(ctx, a.Tag)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"tag":     strings.ToLower(strings.TrimSpace(a.Tag)),
		"count":   len(files),
		"files":   nonNilFiles(files),
	}, nil
}

func (d *Dispatcher) searchByPrompt(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a promptArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	hits, err := d.search.SearchByPrompt(ctx, a.Query, a.FolderID)
	if errors.Is(err, service.ErrSearchUnavailable) {
		// 降级结果，不算工具错误
		return map[string]interface{}{
			"success": false,
			"error":   service.ErrSearchUnavailable.Error(),
		}, nil
	}
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []model.SearchHit{}
	}
	return map[string]interface{}{
		"success": true,
		"query":   a.Query,
		"count":   len(hits),
		"results": hits,
	}, nil
}

func (d *Dispatcher) getBalance(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	var a addressArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	owner := d.ownerArg(ctx, a.Address)
	balance, err := d.folders.Balance(ctx, owner)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success": true,
		"address": owner,
		"balance": balance,
	}, nil
}

func (d *Dispatcher) ownerArg(ctx context.Context, address string) string {
	if address != "" {
		return chain.NormalizeAddress(address)
	}
	return d.caller(ctx)
}

// folderView 是返回给调用方的文件夹，id 以字符串形式给出。
type folderView struct {
	FolderID   string           `json:"folderId"`
	Name       string           `json:"name"`
	FolderType model.FolderType `json:"folderType"`
	IsPublic   bool             `json:"isPublic"`
	Owner      string           `json:"owner"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func newFolderView(f model.Folder) folderView {
	return folderView{
		FolderID:   formatID(f.ID),
		Name:       f.Name,
		FolderType: f.FolderType,
		IsPublic:   f.IsPublic,
		Owner:      f.Owner,
		CreatedAt:  f.CreatedAt,
	}
}

func formatID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func nonNilFiles(files []model.FileRecord) []model.FileRecord {
	if files == nil {
		return []model.FileRecord{}
	}
	return files
}

// errorResult 把错误转换为统一的 {success:false, error, tool, arguments} 信封。
func errorResult(name string, args map[string]interface{}, err error) *model.ToolResult {
	envelope := map[string]interface{}{
		"success":   false,
		"error":     err.Error(),
		"code":      errorCode(err),
		"tool":      name,
		"arguments": redactArgs(args),
	}
	var uerr *service.UploadError
	if errors.As(err, &uerr) {
		envelope["phase"] = uerr.Phase
		if uerr.Partial() {
			envelope["partial"] = true
			envelope["contentId"] = uerr.Info.ContentID
			envelope["hint"] = "bytes are stored; retry only the registration (attach_file with this contentId), do not re-upload"
		}
	}
	res, mErr := textContent(envelope)
	if mErr != nil {
		res = &model.ToolResult{Content: []model.Content{{Type: "text", Text: err.Error()}}}
	}
	res.IsError = true
	return res
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return "validation"
	case errors.Is(err, service.ErrUnknownTool):
		return "unknown_tool"
	case errors.Is(err, service.ErrNotOwner):
		return "not_owner"
	case errors.Is(err, service.ErrNotFound):
		return "not_found"
	case errors.Is(err, service.ErrRegistrationFailed):
		return "partial_success"
	case errors.Is(err, service.ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, service.ErrBackendUnavailable):
		return "backend_unavailable"
	case errors.Is(err, service.ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, service.ErrMissingAddress):
		return "missing_address"
	}
	return "internal"
}

func textContent(data interface{}) (*model.ToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, err
	}
	return &model.ToolResult{
		Content: []model.Content{{Type: "text", Text: string(b)}},
	}, nil
}
