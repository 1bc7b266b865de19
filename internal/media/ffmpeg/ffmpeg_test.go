package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/rehearse/internal/media"
)

func TestCaptureArgs(t *testing.T) {
	opts := Options{Video: "/dev/video2", Audio: "hw:1"}

	tests := []struct {
		name string
		goos string
		c    media.Constraints
		want []string
	}{
		{
			name: "linux audio+video",
			goos: "linux",
			c:    media.Constraints{Audio: true, Video: true},
			want: []string{
				"-hide_banner", "-loglevel", "error",
				"-f", "v4l2", "-i", "/dev/video2",
				"-f", "alsa", "-i", "hw:1",
				"-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1M",
				"-c:a", "libopus",
				"-f", "webm", "pipe:1",
			},
		},
		{
			name: "linux audio only",
			goos: "linux",
			c:    media.Constraints{Audio: true},
			want: []string{
				"-hide_banner", "-loglevel", "error",
				"-f", "alsa", "-i", "hw:1",
				"-c:a", "libopus",
				"-f", "webm", "pipe:1",
			},
		},
		{
			name: "darwin video only",
			goos: "darwin",
			c:    media.Constraints{Video: true},
			want: []string{
				"-hide_banner", "-loglevel", "error",
				"-f", "avfoundation", "-framerate", "30", "-i", "/dev/video2:none",
				"-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1M",
				"-f", "webm", "pipe:1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, captureArgs(tt.goos, opts, tt.c))
		})
	}
}

func TestOpen_MissingBinary(t *testing.T) {
	d := New(Options{Path: "definitely-not-ffmpeg-xyz"}, zerolog.Nop())
	_, err := d.Open(context.Background(), media.Constraints{Audio: true, Video: true})
	assert.True(t, errors.Is(err, media.ErrDeviceNotFound))
}

func TestCheckDevice_Missing(t *testing.T) {
	err := checkDevice("/nonexistent/video99")
	assert.ErrorIs(t, err, media.ErrDeviceNotFound)
}

// hungBinary writes a stand-in for ffmpeg that emits some output and then
// ignores the quit request on stdin.
func hungBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nprintf webm\nexec sleep 30 </dev/null\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRecorderStop_KillsHungProcess(t *testing.T) {
	d := New(Options{Path: hungBinary(t), StopTimeout: 500 * time.Millisecond}, zerolog.Nop())
	s, err := d.Open(context.Background(), media.Constraints{Audio: true})
	require.NoError(t, err)
	rec, err := s.NewRecorder()
	require.NoError(t, err)

	var got []byte
	require.NoError(t, rec.Start(func(b []byte) {
		got = append(got, b...)
	}))

	start := time.Now()
	assert.NoError(t, rec.Stop())
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, "webm", string(got))

	// A second stop is a no-op.
	assert.NoError(t, rec.Stop())
}
