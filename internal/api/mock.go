package api

import (
	"context"
	"sync"

	"github.com/abhisek/rehearse/internal/media"
)

// MockUpload is a canned result for MockBackend.UploadRecording.
type MockUpload struct {
	AttemptID string
	Err       error
}

// StatusCall records one UpdateStatus or Beacon call.
type StatusCall struct {
	SessionID string
	Update    StatusUpdate
}

// UploadCall records one UploadRecording call.
type UploadCall struct {
	SessionID string
	Index     int
	Blob      media.Blob
}

// MockBackend is a deterministic Backend for testing.
// Uploads return canned results in FIFO order; all calls are recorded.
type MockBackend struct {
	mu        sync.Mutex
	uploads   []MockUpload
	statusErr []error

	StatusCalls []StatusCall
	UploadCalls []UploadCall
	BeaconCalls []StatusCall

	// BeforeUpload, when set, runs at the start of every upload outside the lock.
	BeforeUpload func()
}

// NewMockBackend creates a MockBackend with the given canned upload results.
func NewMockBackend(uploads ...MockUpload) *MockBackend {
	return &MockBackend{uploads: uploads}
}

// UpdateStatus returns the next queued status error, or nil.
func (m *MockBackend) UpdateStatus(_ context.Context, sessionID string, u StatusUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StatusCalls = append(m.StatusCalls, StatusCall{SessionID: sessionID, Update: u})
	if len(m.statusErr) == 0 {
		return nil
	}
	err := m.statusErr[0]
	m.statusErr = m.statusErr[1:]
	return err
}

// UploadRecording returns the next canned result or ErrUnavailable if the
// queue is empty.
func (m *MockBackend) UploadRecording(_ context.Context, sessionID string, index int, blob media.Blob) (*Attempt, error) {
	if m.BeforeUpload != nil {
		m.BeforeUpload()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.UploadCalls = append(m.UploadCalls, UploadCall{SessionID: sessionID, Index: index, Blob: blob})
	if len(m.uploads) == 0 {
		return nil, &ErrUnavailable{}
	}
	next := m.uploads[0]
	m.uploads = m.uploads[1:]
	if next.Err != nil {
		return nil, next.Err
	}
	return &Attempt{ID: next.AttemptID}, nil
}

// Beacon records the call.
func (m *MockBackend) Beacon(sessionID string, u StatusUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BeaconCalls = append(m.BeaconCalls, StatusCall{SessionID: sessionID, Update: u})
}

// AddUpload appends a canned upload result.
func (m *MockBackend) AddUpload(u MockUpload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, u)
}

// FailStatus queues errors returned by the next UpdateStatus calls.
func (m *MockBackend) FailStatus(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusErr = append(m.statusErr, errs...)
}

// Statuses returns the statuses sent through UpdateStatus, in order.
func (m *MockBackend) Statuses() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, len(m.StatusCalls))
	for i, c := range m.StatusCalls {
		out[i] = c.Update.Status
	}
	return out
}

// UploadCount returns the number of UploadRecording calls made.
func (m *MockBackend) UploadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.UploadCalls)
}

// BeaconCount returns the number of Beacon calls made.
func (m *MockBackend) BeaconCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.BeaconCalls)
}
