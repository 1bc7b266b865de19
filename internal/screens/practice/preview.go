package practice

import (
	"sync"

	"github.com/abhisek/rehearse/internal/media"
)

// Preview is the terminal stand-in for a video element: it shows which
// tracks are attached and whether playback started. Attach and Play are
// called from the room's Enter command, off the UI goroutine.
type Preview struct {
	mu      sync.Mutex
	labels  []string
	playing bool
}

var _ media.Preview = (*Preview)(nil)

func (p *Preview) Attach(s media.Stream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels = p.labels[:0]
	p.playing = false
	for _, t := range s.Tracks() {
		p.labels = append(p.labels, t.Label())
	}
}

func (p *Preview) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.labels) == 0 {
		return media.ErrStreamStopped
	}
	p.playing = true
	return nil
}

func (p *Preview) snapshot() ([]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.labels...), p.playing
}
