// Package ffmpeg captures camera and microphone input by running ffmpeg and
// reading a WebM stream from its stdout.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abhisek/rehearse/internal/media"
)

// Options configures the ffmpeg capture backend.
type Options struct {
	// Path is the ffmpeg binary. Resolved through PATH when not absolute.
	Path string

	// Video is the camera device: a v4l2 path on Linux, an avfoundation
	// index on macOS.
	Video string

	// Audio is the microphone device: an ALSA name on Linux, an avfoundation
	// index on macOS.
	Audio string

	// ChunkSize is the read size for stdout; each read becomes one chunk.
	ChunkSize int

	// StopTimeout bounds how long Stop waits for ffmpeg to flush and exit
	// before the process is killed.
	StopTimeout time.Duration
}

const defaultStopTimeout = 5 * time.Second

// DefaultOptions returns platform defaults.
func DefaultOptions() Options {
	opts := Options{Path: "ffmpeg", ChunkSize: 32 * 1024, StopTimeout: defaultStopTimeout}
	switch runtime.GOOS {
	case "darwin":
		opts.Video = "0"
		opts.Audio = "0"
	default:
		opts.Video = "/dev/video0"
		opts.Audio = "default"
	}
	return opts
}

// Devices implements media.Devices on top of ffmpeg.
type Devices struct {
	opts Options
	goos string
	log  zerolog.Logger
}

var _ media.Devices = (*Devices)(nil)

// New creates ffmpeg-backed devices.
func New(opts Options, log zerolog.Logger) *Devices {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 32 * 1024
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	return &Devices{
		opts: opts,
		goos: runtime.GOOS,
		log:  log.With().Str("component", "ffmpeg").Logger(),
	}
}

func (d *Devices) Open(ctx context.Context, c media.Constraints) (media.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bin, err := exec.LookPath(d.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not available: %v", media.ErrDeviceNotFound, err)
	}
	if c.Video && d.goos == "linux" {
		if err := checkDevice(d.opts.Video); err != nil {
			return nil, err
		}
	}

	s := &stream{
		id:   uuid.NewString(),
		bin:  bin,
		args: captureArgs(d.goos, d.opts, c),
		opts: d.opts,
		log:  d.log,
	}
	if c.Video {
		s.tracks = append(s.tracks, &track{kind: media.KindVideo, label: d.opts.Video})
	}
	if c.Audio {
		s.tracks = append(s.tracks, &track{kind: media.KindAudio, label: d.opts.Audio})
	}
	d.log.Debug().Str("stream", s.id).Strs("args", s.args).Msg("Stream opened")
	return s, nil
}

func checkDevice(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("%w: %s", media.ErrPermissionDenied, path)
		}
		return fmt.Errorf("%w: %s", media.ErrDeviceNotFound, path)
	}
	return f.Close()
}

// captureArgs builds the ffmpeg argument list for the platform.
func captureArgs(goos string, opts Options, c media.Constraints) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	switch goos {
	case "darwin":
		video, audio := "none", "none"
		if c.Video {
			video = opts.Video
		}
		if c.Audio {
			audio = opts.Audio
		}
		args = append(args, "-f", "avfoundation", "-framerate", "30", "-i", video+":"+audio)
	default:
		if c.Video {
			args = append(args, "-f", "v4l2", "-i", opts.Video)
		}
		if c.Audio {
			args = append(args, "-f", "alsa", "-i", opts.Audio)
		}
	}

	if c.Video {
		args = append(args, "-c:v", "libvpx", "-deadline", "realtime", "-b:v", "1M")
	}
	if c.Audio {
		args = append(args, "-c:a", "libopus")
	}
	return append(args, "-f", "webm", "pipe:1")
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
	bin    string
	args   []string
	opts   Options
	tracks []*track
	log    zerolog.Logger
}

func (s *stream) ID() string { return s.id }

func (s *stream) Tracks() []media.Track {
	out := make([]media.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

func (s *stream) NewRecorder() (media.Recorder, error) {
	for _, t := range s.tracks {
		if t.isStopped() {
			return nil, media.ErrStreamStopped
		}
	}
	return &recorder{
		bin:         s.bin,
		args:        s.args,
		chunkSize:   s.opts.ChunkSize,
		stopTimeout: s.opts.StopTimeout,
		log:         s.log,
	}, nil
}

func (s *stream) Stop() {
	media.StopAll(s)
}

// recorder runs one ffmpeg process per recording.
type recorder struct {
	bin         string
	args        []string
	chunkSize   int
	stopTimeout time.Duration
	log         zerolog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	readWG sync.WaitGroup
}

func (r *recorder) MIMEType() string { return media.DefaultMIMEType }

func (r *recorder) Start(onChunk func([]byte)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return media.ErrRecorderActive
	}

	cmd := exec.Command(r.bin, r.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	r.cmd = cmd
	r.stdin = stdin
	r.readWG.Add(1)
	go r.pump(stdout, onChunk)
	return nil
}

func (r *recorder) pump(stdout io.Reader, onChunk func([]byte)) {
	defer r.readWG.Done()
	buf := make([]byte, r.chunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			onChunk(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.log.Warn().Err(err).Msg("Read ffmpeg output")
			}
			return
		}
	}
}

// Stop asks ffmpeg to finish the file with "q" and waits for the last chunk.
// A process that has not exited within the stop timeout is killed; whatever
// was read before then is kept.
func (r *recorder) Stop() error {
	r.mu.Lock()
	cmd, stdin := r.cmd, r.stdin
	r.cmd, r.stdin = nil, nil
	r.mu.Unlock()
	if cmd == nil {
		return nil
	}

	if _, err := io.WriteString(stdin, "q\n"); err != nil {
		r.log.Debug().Err(err).Msg("Write quit to ffmpeg")
	}
	_ = stdin.Close()

	done := make(chan error, 1)
	go func() {
		// Reads must drain before Wait closes the stdout pipe.
		r.readWG.Wait()
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(r.stopTimeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		r.log.Warn().Dur("timeout", r.stopTimeout).Msg("ffmpeg did not exit, killing")
		if kerr := cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			r.log.Debug().Err(kerr).Msg("Kill ffmpeg")
		}
		err = <-done
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// ffmpeg exits non-zero when interrupted mid-frame; the output is still valid.
			r.log.Debug().Int("code", exitErr.ExitCode()).Msg("ffmpeg exited")
			return nil
		}
		return fmt.Errorf("wait ffmpeg: %w", err)
	}
	return nil
}
