// Package synthetic provides capture devices that emit generated WebM data.
// They stand in for a camera when none is available and drive tests and the
// development backend demo.
package synthetic

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/rehearse/internal/media"
)

// ebmlHeader is a minimal Matroska EBML header with DocType "webm".
var ebmlHeader = []byte{
	0x1A, 0x45, 0xDF, 0xA3, 0x9F,
	0x42, 0x86, 0x81, 0x01,
	0x42, 0xF7, 0x81, 0x01,
	0x42, 0xF2, 0x81, 0x04,
	0x42, 0xF3, 0x81, 0x08,
	0x42, 0x82, 0x84, 'w', 'e', 'b', 'm',
	0x42, 0x87, 0x81, 0x04,
	0x42, 0x85, 0x81, 0x02,
}

// Options configures the synthetic devices.
type Options struct {
	// Timeslice is the interval between emitted chunks.
	Timeslice time.Duration

	// ChunkSize is the payload size of every chunk after the header.
	ChunkSize int

	// Deny makes Open fail with media.ErrPermissionDenied.
	Deny bool
}

// DefaultOptions returns one 4 KiB chunk per second.
func DefaultOptions() Options {
	return Options{
		Timeslice: time.Second,
		ChunkSize: 4096,
	}
}

// Devices implements media.Devices.
type Devices struct {
	opts Options

	mu     sync.Mutex
	opened int
}

var _ media.Devices = (*Devices)(nil)

// New creates synthetic devices.
func New(opts Options) *Devices {
	if opts.Timeslice <= 0 {
		opts.Timeslice = time.Second
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 4096
	}
	return &Devices{opts: opts}
}

func (d *Devices) Open(ctx context.Context, c media.Constraints) (media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.opts.Deny {
		return nil, media.ErrPermissionDenied
	}
	if !c.Audio && !c.Video {
		return nil, media.ErrDeviceNotFound
	}

	d.mu.Lock()
	d.opened++
	d.mu.Unlock()

	s := &stream{id: uuid.NewString(), opts: d.opts}
	if c.Video {
		s.tracks = append(s.tracks, &track{kind: media.KindVideo, label: "Synthetic Camera"})
	}
	if c.Audio {
		s.tracks = append(s.tracks, &track{kind: media.KindAudio, label: "Synthetic Microphone"})
	}
	return s, nil
}

// OpenCount reports how many streams have been opened.
func (d *Devices) OpenCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opened
}

type track struct {
	kind  media.TrackKind
	label string

	mu      sync.Mutex
	stopped bool
}

func (t *track) Kind() media.TrackKind { return t.kind }
func (t *track) Label() string         { return t.label }

func (t *track) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *track) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type stream struct {
	id     string
	opts   Options
	tracks []*track
}

func (s *stream) ID() string { return s.id }

func (s *stream) Tracks() []media.Track {
	out := make([]media.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *stream) live() bool {
	for _, t := range s.tracks {
		if !t.isStopped() {
			return true
		}
	}
	return false
}

func (s *stream) NewRecorder() (media.Recorder, error) {
	if !s.live() {
		return nil, media.ErrStreamStopped
	}
	return &recorder{opts: s.opts}, nil
}

func (s *stream) Stop() {
	media.StopAll(s)
}

type recorder struct {
	opts Options

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

func (r *recorder) MIMEType() string { return media.DefaultMIMEType }

func (r *recorder) Start(onChunk func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return media.ErrRecorderActive
	}
	r.started = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go r.run(onChunk)
	return nil
}

func (r *recorder) run(onChunk func([]byte)) {
	defer close(r.done)

	seq := uint32(0)
	onChunk(r.chunk(seq, true))

	ticker := time.NewTicker(r.opts.Timeslice)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			seq++
			onChunk(r.chunk(seq, false))
			return
		case <-ticker.C:
			seq++
			onChunk(r.chunk(seq, false))
		}
	}
}

// chunk builds a payload whose first four bytes carry the sequence number.
func (r *recorder) chunk(seq uint32, first bool) []byte {
	var buf []byte
	if first {
		buf = append(buf, ebmlHeader...)
	}
	payload := make([]byte, r.opts.ChunkSize)
	if len(payload) >= 4 {
		binary.BigEndian.PutUint32(payload, seq)
	}
	return append(buf, payload...)
}

func (r *recorder) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	stop, done := r.stop, r.done
	r.started = false
	r.mu.Unlock()

	close(stop)
	<-done
	return nil
}
