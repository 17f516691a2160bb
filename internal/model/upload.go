package model

// StorageSession 描述某个地址在存储后端上的数据集状态，按进程缓存。
// 不变量：DatasetExists 为 false 时，下一次上传必须携带数据集创建费用。
type StorageSession struct {
	DatasetExists bool   `json:"datasetExists"`
	FeeRequired   bool   `json:"feeRequired"`
	DatasetID     string `json:"datasetId,omitempty"`
}

// UploadedInfo 是上传过程中逐步填充的文件信息。
type UploadedInfo struct {
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	ContentID string `json:"contentId,omitempty"`
	TxHash    string `json:"txHash,omitempty"`
}

// Merge 将 other 中的非空字段合并进来，已有值不会被空值覆盖。
func (i *UploadedInfo) Merge(other UploadedInfo) {
	if other.FileName != "" {
		i.FileName = other.FileName
	}
	if other.FileSize != 0 {
		i.FileSize = other.FileSize
	}
	if other.ContentID != "" && i.ContentID == "" {
		// 传输阶段得到的 contentId 是权威值，之后不再被改写
		i.ContentID = other.ContentID
	}
	if other.TxHash != "" {
		i.TxHash = other.TxHash
	}
}

// Clone 返回一个独立副本，供进度回调使用。
func (i *UploadedInfo) Clone() *UploadedInfo {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// UploadSession 是单次上传调用期间的临时状态，不做持久化。
type UploadSession struct {
	Progress     int           `json:"progress"`
	Status       string        `json:"status"`
	UploadedInfo *UploadedInfo `json:"uploadedInfo"`
}

// UploadRecord 是上传成功后返回的最终记录。
type UploadRecord struct {
	FileName  string `json:"fileName"`
	FileSize  int64  `json:"fileSize"`
	ContentID string `json:"contentId"`
	TxHash    string `json:"txHash,omitempty"`
}
