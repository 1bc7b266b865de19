package store

import (
	"context"
	"time"
)

// Room event actions.
const (
	ActionEnter        = "enter"
	ActionMediaFailed  = "media_failed"
	ActionRecorded     = "recorded"
	ActionUploaded     = "uploaded"
	ActionUploadFailed = "upload_failed"
	ActionCompleted    = "completed"
	ActionCanceled     = "canceled"
)

// RoomEventData captures one step of a practice room run.
type RoomEventData struct {
	RunID         string
	SessionID     string
	Action        string
	QuestionIndex int // -1 when the event is not tied to a question
	AttemptID     string
	Bytes         int
	ErrorMessage  string
}

// RequestEventData captures one call to the practice backend.
type RequestEventData struct {
	Operation    string
	SessionID    string
	LatencyMs    int64
	Success      bool
	ErrorMessage string
}

// RunSummary condenses the events of one room run.
type RunSummary struct {
	RunID     string
	SessionID string
	StartedAt time.Time
	LastEvent time.Time
	Recorded  int
	Uploaded  int
	Failed    int
	Completed bool
	Canceled  bool
}

// EventRepo provides append access to journal events.
type EventRepo interface {
	// AppendRoomEvent records a room lifecycle or pipeline event.
	AppendRoomEvent(ctx context.Context, data RoomEventData) error

	// AppendRequestEvent records a backend API call.
	AppendRequestEvent(ctx context.Context, data RequestEventData) error

	// RoomEvents returns the events of one run in sequence order.
	RoomEvents(ctx context.Context, runID string) ([]RoomEvent, error)

	// RecentRuns returns up to limit runs, newest first.
	RecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// RoomEvent is a stored room event.
type RoomEvent struct {
	Sequence  int64
	Timestamp time.Time
	RoomEventData
}
