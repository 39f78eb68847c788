package batch

import "log/slog"

// EventKind identifies a progress event.
type EventKind string

// Event kinds, in the order a batch emits them.
const (
	EventBatchStarted   EventKind = "batch_started"
	EventItemStarted    EventKind = "item_started"
	EventItemStage      EventKind = "item_stage"
	EventItemDone       EventKind = "item_done"
	EventItemFailed     EventKind = "item_failed"
	EventBatchCompleted EventKind = "batch_completed"
	EventBatchCancelled EventKind = "batch_cancelled"
	EventBatchFailed    EventKind = "batch_failed"
)

// Stage names an item pipeline step.
type Stage string

// Item pipeline stages.
const (
	StageDownload   Stage = "download"
	StageDecode     Stage = "decode"
	StageTranscribe Stage = "transcribe"
	StageEncode     Stage = "encode"
)

// stageWeight is the share of one item's progress reached when a stage
// starts.
var stageWeight = map[Stage]float64{
	StageDownload:   0,
	StageDecode:     0.1,
	StageTranscribe: 0.3,
	StageEncode:     0.9,
}

// Event is one ordered progress notification.
type Event struct {
	Kind    EventKind `json:"kind"`
	BatchID string    `json:"batch_id"`
	Index   int       `json:"index"`
	Total   int       `json:"total"`
	Source  string    `json:"source,omitempty"`
	Stage   Stage     `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
	// Progress is the overall batch completion in [0, 1].
	Progress float64 `json:"progress"`
}

// LogValue implements slog.LogValuer.
func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("batch_id", e.BatchID),
		slog.Int("index", e.Index),
		slog.Int("total", e.Total),
		slog.Float64("progress", e.Progress),
	}
	if e.Source != "" {
		attrs = append(attrs, slog.String("source", e.Source))
	}
	if e.Stage != "" {
		attrs = append(attrs, slog.String("stage", string(e.Stage)))
	}
	if e.Message != "" {
		attrs = append(attrs, slog.String("message", e.Message))
	}
	return slog.GroupValue(attrs...)
}

func progress(index, total int, stage Stage) float64 {
	if total == 0 {
		return 0
	}
	return (float64(index) + stageWeight[stage]) / float64(total)
}
