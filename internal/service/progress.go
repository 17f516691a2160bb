package service

import "agent-vault-go/internal/model"

// ProgressSink 同步接收上传进度。实现不应长时间阻塞，慢的 sink 会拖慢上传。
type ProgressSink func(model.ProgressEvent)

// progressEmitter 保证进度单调不减，并在失败时只发出一次终止事件。
type progressEmitter struct {
	sink   ProgressSink
	last   int
	status string
	info   *model.UploadedInfo
	done   bool
}

func newProgressEmitter(sink ProgressSink, info *model.UploadedInfo) *progressEmitter {
	return &progressEmitter{sink: sink, info: info}
}

// emit 发出一条进度。比上一条小的百分比会被抬到上一条的值。
func (p *progressEmitter) emit(progress int, status string) {
	if p.done {
		return
	}
	if progress < p.last {
		progress = p.last
	}
	if progress > 100 {
		progress = 100
	}
	p.last = progress
	p.status = status
	p.send(progress, status)
	if progress == 100 {
		p.done = true
	}
}

// relabel 只更新状态文字，百分比不变。
func (p *progressEmitter) relabel(status string) {
	p.emit(p.last, status)
}

// fail 发出终止事件 (0, "failed: <reason>")，之后的 emit 都被忽略。
func (p *progressEmitter) fail(reason string) {
	if p.done {
		return
	}
	p.done = true
	p.status = "failed: " + reason
	p.send(0, p.status)
}

func (p *progressEmitter) send(progress int, status string) {
	if p.sink == nil {
		return
	}
	p.sink(model.ProgressEvent{Progress: progress, Status: status, UploadedInfo: p.info.Clone()})
}

// session 返回当前的 UploadSession 快照。
func (p *progressEmitter) session() model.UploadSession {
	return model.UploadSession{Progress: p.last, Status: p.status, UploadedInfo: p.info.Clone()}
}
