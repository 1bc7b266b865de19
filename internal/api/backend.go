package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/abhisek/rehearse/internal/media"
)

// Status is a practice session status understood by the backend.
type Status string

const (
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusCanceled Status = "canceled"
)

// StatusUpdate is the body of a session status change.
type StatusUpdate struct {
	Status    Status     `json:"status"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Running marks a session started at the given time.
func Running(at time.Time) StatusUpdate {
	t := at.UTC()
	return StatusUpdate{Status: StatusRunning, StartedAt: &t}
}

// Done marks a session completed at the given time.
func Done(at time.Time) StatusUpdate {
	t := at.UTC()
	return StatusUpdate{Status: StatusDone, EndedAt: &t}
}

// Canceled marks a session abandoned at the given time.
func Canceled(at time.Time) StatusUpdate {
	t := at.UTC()
	return StatusUpdate{Status: StatusCanceled, EndedAt: &t}
}

// Storage locates an uploaded recording.
type Storage struct {
	Bucket string `json:"bucket"`
	Path   string `json:"path"`
	URL    string `json:"url,omitempty"`
}

// Attempt is the backend's record of one uploaded answer.
type Attempt struct {
	// ID is the attempt id as text; backends send either a string or an
	// integer.
	ID      string  `json:"attempt_id"`
	Storage Storage `json:"storage"`
}

// UnmarshalJSON accepts a string or numeric attempt_id.
func (a *Attempt) UnmarshalJSON(data []byte) error {
	var wire struct {
		ID      json.RawMessage `json:"attempt_id"`
		Storage Storage         `json:"storage"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	id := bytes.TrimSpace(wire.ID)
	switch {
	case len(id) == 0 || bytes.Equal(id, []byte("null")):
		a.ID = ""
	case id[0] == '"':
		if err := json.Unmarshal(id, &a.ID); err != nil {
			return fmt.Errorf("attempt_id: %w", err)
		}
	default:
		var n json.Number
		if err := json.Unmarshal(id, &n); err != nil {
			return fmt.Errorf("attempt_id: %w", err)
		}
		a.ID = n.String()
	}
	a.Storage = wire.Storage
	return nil
}

// Backend is the subset of the practice API the room consumes.
type Backend interface {
	// UpdateStatus changes the session status and waits for the result.
	UpdateStatus(ctx context.Context, sessionID string, u StatusUpdate) error

	// UploadRecording stores the answer to question index and returns the
	// attempt the backend created for it.
	UploadRecording(ctx context.Context, sessionID string, index int, blob media.Blob) (*Attempt, error)

	// Beacon sends a status change without waiting for, or reporting, the
	// outcome. It must not block the caller.
	Beacon(sessionID string, u StatusUpdate)
}

// Flusher is implemented by backends that send beacons in the background.
type Flusher interface {
	// Flush waits for outstanding beacons or until ctx is done.
	Flush(ctx context.Context) error
}

// Flush waits for b's outstanding beacons when b supports it.
func Flush(ctx context.Context, b Backend) error {
	if f, ok := b.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}
