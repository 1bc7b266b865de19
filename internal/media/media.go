package media

import (
	"context"
	"errors"
)

var (
	ErrPermissionDenied = errors.New("camera or microphone access denied")
	ErrDeviceNotFound   = errors.New("capture device not found")
	ErrStreamStopped    = errors.New("stream already stopped")
	ErrRecorderActive   = errors.New("recorder already started")
)

// TrackKind identifies the media carried by a Track.
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Constraints selects which capture devices Open should acquire.
type Constraints struct {
	Audio bool
	Video bool
}

// Devices acquires live capture streams.
type Devices interface {
	// Open requests access to the devices named by c. The returned stream
	// holds the devices until Stop is called.
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// Track is one live audio or video source inside a Stream.
type Track interface {
	Kind() TrackKind
	Label() string
	Stop()
}

// Stream is a live audio/video capture handle. Only its owner may stop it;
// recorders read from it through short-lived Recorder handles.
type Stream interface {
	ID() string
	Tracks() []Track

	// NewRecorder returns an unstarted recorder reading from this stream.
	NewRecorder() (Recorder, error)

	// Stop stops every track and releases the devices.
	Stop()
}

// Recorder encodes a stream into periodic chunks.
type Recorder interface {
	// Start begins encoding. onChunk is called with each encoded chunk, possibly
	// from another goroutine; it must not retain the slice.
	Start(onChunk func([]byte)) error

	// Stop finalizes the recording. Every chunk has been delivered to onChunk
	// by the time Stop returns.
	Stop() error

	// MIMEType reports the container type of the emitted chunks.
	MIMEType() string
}

// Preview is a surface that shows the live stream to the user.
type Preview interface {
	Attach(s Stream)
	Play() error
}

// StopAll stops every track of s. Safe to call with a nil stream.
func StopAll(s Stream) {
	if s == nil {
		return
	}
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
