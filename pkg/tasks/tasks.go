// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// FileIndexTask 在文件成功追加到文件夹后发布，供索引器写入搜索索引。
type FileIndexTask struct {
	FolderID  uint64   `json:"folder_id"`
	ContentID string   `json:"content_id"`
	FileName  string   `json:"file_name"`
	Tags      []string `json:"tags"`
	Owner     string   `json:"owner"`
	TxHash    string   `json:"tx_hash"`
}
