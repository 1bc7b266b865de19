package room

import (
	"context"
	"errors"
	"sync"

	"github.com/abhisek/rehearse/internal/media"
)

type fakeTrack struct {
	kind  media.TrackKind
	mu    sync.Mutex
	stops int
}

func (t *fakeTrack) Kind() media.TrackKind { return t.kind }
func (t *fakeTrack) Label() string         { return string(t.kind) }

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

func (t *fakeTrack) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

type fakeRecorder struct {
	mu      sync.Mutex
	onChunk func([]byte)
	starts  int
	stops   int
	empty   bool
}

func (r *fakeRecorder) MIMEType() string { return media.DefaultMIMEType }

func (r *fakeRecorder) Start(onChunk func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.starts > 0 {
		return media.ErrRecorderActive
	}
	r.starts++
	r.onChunk = onChunk
	if !r.empty {
		onChunk([]byte{0x1A, 0x45, 0xDF, 0xA3})
	}
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	if !r.empty && r.onChunk != nil {
		r.onChunk([]byte("final"))
	}
	r.onChunk = nil
	return nil
}

type fakeStream struct {
	tracks []*fakeTrack

	mu           sync.Mutex
	recorders    []*fakeRecorder
	emptyRecords bool
	recorderErr  error
}

func newFakeStream() *fakeStream {
	return &fakeStream{tracks: []*fakeTrack{{kind: media.KindVideo}, {kind: media.KindAudio}}}
}

func (s *fakeStream) ID() string { return "fake" }

func (s *fakeStream) Tracks() []media.Track {
	out := make([]media.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *fakeStream) NewRecorder() (media.Recorder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recorderErr != nil {
		return nil, s.recorderErr
	}
	r := &fakeRecorder{empty: s.emptyRecords}
	s.recorders = append(s.recorders, r)
	return r, nil
}

func (s *fakeStream) Stop() { media.StopAll(s) }

func (s *fakeStream) recorderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recorders)
}

type fakeDevices struct {
	stream *fakeStream
	err    error
	opens  int
}

func (d *fakeDevices) Open(_ context.Context, c media.Constraints) (media.Stream, error) {
	d.opens++
	if !c.Audio || !c.Video {
		return nil, errors.New("expected audio and video")
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

type fakePreview struct {
	attached media.Stream
	plays    int
	playErr  error
}

func (p *fakePreview) Attach(s media.Stream) { p.attached = s }

func (p *fakePreview) Play() error {
	p.plays++
	return p.playErr
}
