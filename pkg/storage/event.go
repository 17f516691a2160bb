package storage

import "time"

// EventKind 标识上传协商过程中后端发出的事件类型。
type EventKind int

const (
	// EventDatasetResolved 复用了地址已有的数据集。
	EventDatasetResolved EventKind = iota + 1
	// EventDatasetCreationStarted 已提交数据集创建交易，携带交易哈希与状态查询引用。
	EventDatasetCreationStarted
	// EventDatasetCreationProgress 在创建确认过程中可能多次触发。
	EventDatasetCreationProgress
	// EventProviderSelected 数据集已绑定到某个存储提供方。
	EventProviderSelected
	// EventTransferProgress 字节传输进度。
	EventTransferProgress
	// EventUploadComplete 字节已交给提供方，contentId 已知。
	EventUploadComplete
	// EventPieceAdded 已提交引用 contentId 的分片登记交易。
	EventPieceAdded
	// EventPieceConfirmed 分片登记已确认。
	EventPieceConfirmed
)

var eventKindNames = map[EventKind]string{
	EventDatasetResolved:         "dataset_resolved",
	EventDatasetCreationStarted:  "dataset_creation_started",
	EventDatasetCreationProgress: "dataset_creation_progress",
	EventProviderSelected:        "provider_selected",
	EventTransferProgress:        "transfer_progress",
	EventUploadComplete:          "upload_complete",
	EventPieceAdded:              "piece_added",
	EventPieceConfirmed:          "piece_confirmed",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event 是上传协商事件流中的一个带标签变体，只有与 Kind 对应的字段有意义。
type Event struct {
	Kind EventKind

	DatasetID string
	Provider  string

	// 创建与分片登记交易
	TxHash    string
	StatusURL string

	// EventDatasetCreationProgress
	Mined           bool
	ServerConfirmed bool
	Elapsed         time.Duration

	// EventTransferProgress
	BytesSent  int64
	TotalBytes int64

	// EventUploadComplete
	ContentID string
	Size      int64
}

// EventSink 同步接收事件。实现不应长时间阻塞。
type EventSink func(Event)

func (s EventSink) emit(e Event) {
	if s != nil {
		s(e)
	}
}
