package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"

	"agent-vault-go/internal/model"
	"agent-vault-go/internal/repository"
	"agent-vault-go/internal/service"
	"agent-vault-go/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	operator = "0x00000000000000000000000000000000000000aa"
	stranger = "0x9999999999999999999999999999999999999999"
)

type fakeUploads struct {
	received []byte
	address  string
	fee      *bool
	err      error
}

func (f *fakeUploads) Upload(_ context.Context, data []byte, fileName, address string, sink service.ProgressSink, feeOverride *bool) (*model.UploadRecord, error) {
	f.received = data
	f.address = address
	f.fee = feeOverride
	if sink != nil {
		sink(model.ProgressEvent{Progress: 0, Status: "Initializing upload"})
	}
	if f.err != nil {
		return nil, f.err
	}
	cid, err := storage.ContentID(data)
	if err != nil {
		return nil, err
	}
	if sink != nil {
		sink(model.ProgressEvent{Progress: 100, Status: "Upload complete"})
	}
	return &model.UploadRecord{FileName: fileName, FileSize: int64(len(data)), ContentID: cid, TxHash: "0xpiece"}, nil
}

type fakeSearch struct {
	hits []model.SearchHit
	err  error
}

func (f *fakeSearch) SearchByPrompt(context.Context, string, string) ([]model.SearchHit, error) {
	return f.hits, f.err
}

type fixture struct {
	d       *Dispatcher
	ledger  repository.LedgerRepository
	uploads *fakeUploads
	search  *fakeSearch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger, err := repository.NewBadgerLedger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })

	ownership := service.NewOwnershipService(ledger, operator)
	folders := service.NewFolderService(ledger, ownership, nil, operator)
	uploads := &fakeUploads{}
	search := &fakeSearch{}
	return &fixture{
		d:       NewDispatcher(folders, uploads, search, operator, nil),
		ledger:  ledger,
		uploads: uploads,
		search:  search,
	}
}

// decode 把工具结果的文本内容解析成 map
func decode(t *testing.T, res *model.ToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	assert.Equal(t, "text", res.Content[0].Type)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &out))
	return out
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		assert.Equal(t, "object", d.InputSchema["type"])
	}
	assert.ElementsMatch(t, []string{
		ToolCreateFolder, ToolUploadFile, ToolAttachFile, ToolGetFolder, ToolListFolderFiles,
		ToolListMyFolders, ToolSearchFilesByTag, ToolSearchFilesByPrompt, ToolGetBalance,
	}, names)
}

func TestUnknownTool(t *testing.T) {
	f := newFixture(t)
	res := f.d.Dispatch(context.Background(), "delete_everything", map[string]interface{}{"x": 1})
	assert.True(t, res.IsError)
	out := decode(t, res)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "delete_everything", out["tool"])
	assert.Equal(t, "unknown_tool", out["code"])
	assert.Equal(t, map[string]interface{}{"x": float64(1)}, out["arguments"])
}

func TestValidationEnvelope(t *testing.T) {
	f := newFixture(t)

	res := f.d.Dispatch(context.Background(), ToolCreateFolder, map[string]interface{}{"folderType": "archive"})
	assert.True(t, res.IsError)
	out := decode(t, res)
	assert.Equal(t, "validation", out["code"])
	assert.Contains(t, out["error"], "name is required")

	res = f.d.Dispatch(context.Background(), ToolGetFolder, map[string]interface{}{"folderId": "abc"})
	assert.True(t, res.IsError)
	assert.Equal(t, "validation", decode(t, res)["code"])

	res = f.d.Dispatch(context.Background(), ToolUploadFile, map[string]interface{}{
		"fileContent": "!!!not base64!!!",
		"fileName":    "a.txt",
	})
	assert.True(t, res.IsError)
	assert.Nil(t, f.uploads.received, "invalid payload must not reach the uploader")
}

func TestUploadBase64RoundTrip(t *testing.T) {
	f := newFixture(t)
	payload := []byte{0x00, 0xff, 0x10, 'h', 'e', 'l', 'l', 'o', 0x7f, 0x80, 0x01}

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding} {
		res := f.d.Dispatch(context.Background(), ToolUploadFile, map[string]interface{}{
			"fileContent": enc.EncodeToString(payload),
			"fileName":    "blob.bin",
		})
		require.False(t, res.IsError)
		assert.Equal(t, payload, f.uploads.received)
		out := decode(t, res)
		assert.Equal(t, float64(len(payload)), out["fileSize"])
		assert.NotEmpty(t, out["contentId"])
		assert.NotContains(t, out, "linked")
	}
}

func TestUploadPassesCallerAndFee(t *testing.T) {
	f := newFixture(t)
	ctx := WithCaller(context.Background(), stranger)
	res := f.d.Dispatch(ctx, ToolUploadFile, map[string]interface{}{
		"fileContent":     base64.StdEncoding.EncodeToString([]byte("x")),
		"fileName":        "x.txt",
		"withCreationFee": true,
	})
	require.False(t, res.IsError)
	assert.Equal(t, stranger, f.uploads.address)
	require.NotNil(t, f.uploads.fee)
	assert.True(t, *f.uploads.fee)

	res = f.d.Dispatch(context.Background(), ToolUploadFile, map[string]interface{}{
		"fileContent": base64.StdEncoding.EncodeToString([]byte("x")),
		"fileName":    "x.txt",
	})
	require.False(t, res.IsError)
	assert.Equal(t, operator, f.uploads.address)
	assert.Nil(t, f.uploads.fee)
}

func TestUploadProgressFromContext(t *testing.T) {
	f := newFixture(t)
	var progress []int
	ctx := WithProgress(context.Background(), func(e model.ProgressEvent) {
		progress = append(progress, e.Progress)
	})
	res := f.d.Dispatch(ctx, ToolUploadFile, map[string]interface{}{
		"fileContent": base64.StdEncoding.EncodeToString([]byte("abc")),
		"fileName":    "a.txt",
	})
	require.False(t, res.IsError)
	assert.Equal(t, []int{0, 100}, progress)
}

func TestReceiptsScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out := decode(t, f.d.Dispatch(ctx, ToolCreateFolder, map[string]interface{}{"name": "Receipts"}))
	require.Equal(t, true, out["success"])
	folderID, ok := out["folderId"].(string)
	require.True(t, ok)
	require.NotEmpty(t, folderID)
	assert.Equal(t, "personal", out["folderType"])

	out = decode(t, f.d.Dispatch(ctx, ToolUploadFile, map[string]interface{}{
		"fileContent": base64.StdEncoding.EncodeToString([]byte("0123456789")),
		"fileName":    "a.txt",
	}))
	require.Equal(t, true, out["success"])
	contentID := out["contentId"].(string)
	require.NotEmpty(t, contentID)

	out = decode(t, f.d.Dispatch(ctx, ToolAttachFile, map[string]interface{}{
		"folderId":  folderID,
		"contentId": contentID,
		"fileName":  "a.txt",
	}))
	require.Equal(t, true, out["success"])

	out = decode(t, f.d.Dispatch(ctx, ToolListFolderFiles, map[string]interface{}{"folderId": folderID}))
	require.Equal(t, float64(1), out["count"])
	file := out["files"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "a.txt", file["filename"])
	assert.Equal(t, contentID, file["contentId"])
	assert.ElementsMatch(t, []interface{}{"txt", service.ProvenanceTag}, file["tags"])

	out = decode(t, f.d.Dispatch(ctx, ToolGetFolder, map[string]interface{}{"folderId": folderID}))
	folder := out["folder"].(map[string]interface{})
	assert.Equal(t, "Receipts", folder["name"])
	assert.Equal(t, "personal", folder["folderType"])

	out = decode(t, f.d.Dispatch(ctx, ToolSearchFilesByTag, map[string]interface{}{"tag": "TXT"}))
	assert.Equal(t, float64(1), out["count"])

	out = decode(t, f.d.Dispatch(ctx, ToolGetBalance, nil))
	assert.Equal(t, float64(1), out["balance"])

	out = decode(t, f.d.Dispatch(ctx, ToolListMyFolders, map[string]interface{}{}))
	assert.Equal(t, float64(1), out["count"])
}

func TestNumericFolderID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := decode(t, f.d.Dispatch(ctx, ToolCreateFolder, map[string]interface{}{"name": "Work", "folderType": "work"}))
	require.Equal(t, true, out["success"])

	// JSON 数字解码后是 float64
	out = decode(t, f.d.Dispatch(ctx, ToolGetFolder, map[string]interface{}{"folderId": float64(1)}))
	require.Equal(t, true, out["success"])
	assert.Equal(t, "work", out["folder"].(map[string]interface{})["folderType"])
}

func TestNotOwnerScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := decode(t, f.d.Dispatch(ctx, ToolCreateFolder, map[string]interface{}{"name": "Receipts"}))
	folderID := out["folderId"].(string)

	res := f.d.Dispatch(WithCaller(ctx, stranger), ToolAttachFile, map[string]interface{}{
		"folderId":  folderID,
		"contentId": "bafkreiabc",
		"fileName":  "a.txt",
	})
	assert.True(t, res.IsError)
	out = decode(t, res)
	assert.Equal(t, "not_owner", out["code"])
	assert.Equal(t, ToolAttachFile, out["tool"])

	out = decode(t, f.d.Dispatch(ctx, ToolListFolderFiles, map[string]interface{}{"folderId": folderID}))
	assert.Equal(t, float64(0), out["count"])
	assert.Equal(t, []interface{}{}, out["files"])
}

func TestUploadAttachFailureIsLinkedFalse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := decode(t, f.d.Dispatch(ctx, ToolCreateFolder, map[string]interface{}{"name": "Receipts"}))
	folderID := out["folderId"].(string)

	res := f.d.Dispatch(WithCaller(ctx, stranger), ToolUploadFile, map[string]interface{}{
		"fileContent": base64.StdEncoding.EncodeToString([]byte("data")),
		"fileName":    "a.txt",
		"folderId":    folderID,
	})
	assert.False(t, res.IsError)
	out = decode(t, res)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, false, out["linked"])
	assert.Contains(t, out["linkError"], "not the folder owner")
	assert.NotEmpty(t, out["contentId"])
}

func TestUploadAndAttach(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out := decode(t, f.d.Dispatch(ctx, ToolCreateFolder, map[string]interface{}{"name": "Docs"}))
	folderID := out["folderId"].(string)

	out = decode(t, f.d.Dispatch(ctx, ToolUploadFile, map[string]interface{}{
		"fileContent": base64.StdEncoding.EncodeToString([]byte("report")),
		"fileName":    "Report.PDF",
		"folderId":    folderID,
	}))
	assert.Equal(t, true, out["linked"])
	assert.NotEmpty(t, out["linkTxHash"])

	files, err := f.ledger.GetFiles(ctx, 1)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0].Tags, "pdf")
}

func TestUploadPartialEnvelope(t *testing.T) {
	f := newFixture(t)
	f.uploads.err = &service.UploadError{
		Kind:  service.ErrRegistrationFailed,
		Phase: "piece registration",
		Info:  &model.UploadedInfo{FileName: "a.txt", FileSize: 4, ContentID: "bafkreistored"},
		Cause: errors.New("tx reverted"),
	}
	payload := base64.StdEncoding.EncodeToString([]byte("data"))
	res := f.d.Dispatch(context.Background(), ToolUploadFile, map[string]interface{}{
		"fileContent": payload,
		"fileName":    "a.txt",
	})
	assert.True(t, res.IsError)
	out := decode(t, res)
	assert.Equal(t, "partial_success", out["code"])
	assert.Equal(t, true, out["partial"])
	assert.Equal(t, "bafkreistored", out["contentId"])
	assert.NotEmpty(t, out["hint"])

	args := out["arguments"].(map[string]interface{})
	assert.NotEqual(t, payload, args["fileContent"], "file content must be redacted")
	assert.Equal(t, "a.txt", args["fileName"])
}

func TestSearchUnavailable(t *testing.T) {
	f := newFixture(t)
	f.search.err = service.ErrSearchUnavailable
	res := f.d.Dispatch(context.Background(), ToolSearchFilesByPrompt, map[string]interface{}{"query": "tax receipts"})
	assert.False(t, res.IsError)
	out := decode(t, res)
	assert.Equal(t, map[string]interface{}{"success": false, "error": "AI service unavailable"}, out)
}

func TestSearchByPrompt(t *testing.T) {
	f := newFixture(t)
	f.search.hits = []model.SearchHit{{ContentID: "bafkreiabc", Filename: "a.txt", Score: 0.9}}
	out := decode(t, f.d.Dispatch(context.Background(), ToolSearchFilesByPrompt, map[string]interface{}{"query": "receipts"}))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(1), out["count"])
}

type panickingSearch struct{}

func (panickingSearch) SearchByPrompt(context.Context, string, string) ([]model.SearchHit, error) {
	panic("boom")
}

func TestDispatchRecoversPanic(t *testing.T) {
	f := newFixture(t)
	d := NewDispatcher(nil, f.uploads, panickingSearch{}, operator, nil)
	var res *model.ToolResult
	assert.NotPanics(t, func() {
		res = d.Dispatch(context.Background(), ToolSearchFilesByPrompt, map[string]interface{}{"query": "q"})
	})
	assert.True(t, res.IsError)
	assert.Equal(t, "internal", decode(t, res)["code"])
}
