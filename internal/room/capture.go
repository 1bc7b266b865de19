package room

import (
	"bytes"
	"sync"

	"github.com/abhisek/rehearse/internal/media"
)

// CaptureState tracks one question's recording through the upload pipeline.
type CaptureState int

const (
	CaptureIdle CaptureState = iota
	CaptureArmed
	CaptureCapturing
	CaptureCaptured
	CaptureUploading
	CaptureUploaded
	CaptureUploadFailed
)

func (s CaptureState) String() string {
	switch s {
	case CaptureIdle:
		return "idle"
	case CaptureArmed:
		return "armed"
	case CaptureCapturing:
		return "capturing"
	case CaptureCaptured:
		return "captured"
	case CaptureUploading:
		return "uploading"
	case CaptureUploaded:
		return "uploaded"
	case CaptureUploadFailed:
		return "upload failed"
	}
	return "unknown"
}

// chunkBuffer collects recorder output. It has its own lock because the
// recorder delivers chunks from its own goroutine, including during Stop.
type chunkBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *chunkBuffer) write(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(chunk)
}

func (b *chunkBuffer) seal(mimeType string) media.Blob {
	b.mu.Lock()
	defer b.mu.Unlock()
	blob := media.NewBlob(b.buf.Bytes(), mimeType)
	b.buf.Reset()
	return blob
}

// slot is the per-question capture record.
type slot struct {
	state     CaptureState
	recorder  media.Recorder
	chunks    *chunkBuffer
	blob      *media.Blob
	attemptID string
	attempts  int
	err       error
}
