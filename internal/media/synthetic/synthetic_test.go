package synthetic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/rehearse/internal/media"
)

func TestOpen_Tracks(t *testing.T) {
	d := New(DefaultOptions())
	s, err := d.Open(context.Background(), media.Constraints{Audio: true, Video: true})
	require.NoError(t, err)
	require.Len(t, s.Tracks(), 2)
	assert.Equal(t, media.KindVideo, s.Tracks()[0].Kind())
	assert.Equal(t, media.KindAudio, s.Tracks()[1].Kind())
	assert.Equal(t, 1, d.OpenCount())
}

func TestOpen_Denied(t *testing.T) {
	d := New(Options{Deny: true})
	_, err := d.Open(context.Background(), media.Constraints{Audio: true, Video: true})
	assert.True(t, errors.Is(err, media.ErrPermissionDenied))
}

func TestRecorder_EmitsWebM(t *testing.T) {
	d := New(Options{Timeslice: time.Millisecond, ChunkSize: 16})
	s, err := d.Open(context.Background(), media.Constraints{Audio: true, Video: true})
	require.NoError(t, err)

	rec, err := s.NewRecorder()
	require.NoError(t, err)

	var mu sync.Mutex
	var data []byte
	require.NoError(t, rec.Start(func(b []byte) {
		mu.Lock()
		data = append(data, b...)
		mu.Unlock()
	}))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, rec.Stop())

	mu.Lock()
	blob := media.NewBlob(data, "")
	mu.Unlock()
	assert.Equal(t, "video/webm", blob.MIMEType())
	assert.Greater(t, blob.Size(), len(ebmlHeader))
}

func TestRecorder_StartTwice(t *testing.T) {
	d := New(Options{Timeslice: time.Hour, ChunkSize: 4})
	s, err := d.Open(context.Background(), media.Constraints{Video: true})
	require.NoError(t, err)
	rec, err := s.NewRecorder()
	require.NoError(t, err)

	require.NoError(t, rec.Start(func([]byte) {}))
	assert.ErrorIs(t, rec.Start(func([]byte) {}), media.ErrRecorderActive)
	require.NoError(t, rec.Stop())
}

func TestStoppedStreamRefusesRecorder(t *testing.T) {
	d := New(DefaultOptions())
	s, err := d.Open(context.Background(), media.Constraints{Audio: true})
	require.NoError(t, err)
	s.Stop()

	_, err = s.NewRecorder()
	assert.ErrorIs(t, err, media.ErrStreamStopped)
}
