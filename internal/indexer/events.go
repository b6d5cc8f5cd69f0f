package indexer

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/playbacklab/vidsearch/internal/model"
)

// StatusEvent records one status transition for a video.
type StatusEvent struct {
	ID        string            `json:"id"`
	VideoID   string            `json:"video_id"`
	From      model.IndexStatus `json:"from"`
	To        model.IndexStatus `json:"to"`
	Message   string            `json:"message,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Alert flags a video whose indexing pass has been running longer than the
// staleness threshold. Informational: the work is not cancelled.
type Alert struct {
	ID        string        `json:"id"`
	VideoID   string        `json:"video_id"`
	Message   string        `json:"message"`
	Elapsed   time.Duration `json:"elapsed"`
	Timestamp time.Time     `json:"timestamp"`
}

// Events carries status changes and alerts on bounded channels that
// subscribers drain independently. Publishing never blocks the indexer: when
// a buffer is full the event is dropped and counted.
type Events struct {
	status chan StatusEvent
	alerts chan Alert

	droppedStatus atomic.Int64
	droppedAlerts atomic.Int64
}

// DefaultEventBuffer is the per-channel buffer size.
const DefaultEventBuffer = 256

// NewEvents creates event channels with the given buffer size.
func NewEvents(buffer int) *Events {
	if buffer <= 0 {
		buffer = DefaultEventBuffer
	}
	return &Events{
		status: make(chan StatusEvent, buffer),
		alerts: make(chan Alert, buffer),
	}
}

// Status returns the status-change channel for subscribers.
func (e *Events) Status() <-chan StatusEvent {
	return e.status
}

// Alerts returns the alert channel for subscribers.
func (e *Events) Alerts() <-chan Alert {
	return e.alerts
}

// Dropped returns how many status events and alerts were dropped because no
// subscriber kept up.
func (e *Events) Dropped() (status, alerts int64) {
	return e.droppedStatus.Load(), e.droppedAlerts.Load()
}

func (e *Events) publishStatus(videoID string, from, to model.IndexStatus, message string) {
	event := StatusEvent{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		From:      from,
		To:        to,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	select {
	case e.status <- event:
	default:
		e.droppedStatus.Add(1)
	}
}

func (e *Events) publishAlert(videoID, message string, elapsed time.Duration) {
	alert := Alert{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		Message:   message,
		Elapsed:   elapsed,
		Timestamp: time.Now().UTC(),
	}
	select {
	case e.alerts <- alert:
	default:
		e.droppedAlerts.Add(1)
	}
}
