package api

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/abhisek/rehearse/internal/media"
	"github.com/abhisek/rehearse/internal/store"
)

// Operation names recorded in the journal.
const (
	OpUpdateStatus = "update_status"
	OpUpload       = "upload_recording"
	OpBeacon       = "beacon"
)

// LoggingBackend is a decorator that logs every backend call and records it
// as a request event.
type LoggingBackend struct {
	inner     Backend
	log       zerolog.Logger
	eventRepo store.EventRepo
}

// WithLogging wraps a Backend with logging. repo may be nil.
func WithLogging(b Backend, log zerolog.Logger, repo store.EventRepo) Backend {
	return &LoggingBackend{
		inner:     b,
		log:       log.With().Str("component", "backend").Logger(),
		eventRepo: repo,
	}
}

func (l *LoggingBackend) UpdateStatus(ctx context.Context, sessionID string, u StatusUpdate) error {
	start := time.Now()
	err := l.inner.UpdateStatus(ctx, sessionID, u)
	l.record(ctx, OpUpdateStatus, sessionID, start, err, func(e *zerolog.Event) {
		e.Str("status", string(u.Status))
	})
	return err
}

func (l *LoggingBackend) UploadRecording(ctx context.Context, sessionID string, index int, blob media.Blob) (*Attempt, error) {
	start := time.Now()
	a, err := l.inner.UploadRecording(ctx, sessionID, index, blob)
	l.record(ctx, OpUpload, sessionID, start, err, func(e *zerolog.Event) {
		e.Int("question_index", index).Int("bytes", blob.Size())
		if a != nil {
			e.Str("attempt_id", a.ID)
		}
	})
	return a, err
}

// Beacon is recorded at dispatch time; the outcome is never observed.
func (l *LoggingBackend) Beacon(sessionID string, u StatusUpdate) {
	l.inner.Beacon(sessionID, u)
	l.record(context.Background(), OpBeacon, sessionID, time.Now(), nil, func(e *zerolog.Event) {
		e.Str("status", string(u.Status))
	})
}

// Flush forwards to the wrapped backend.
func (l *LoggingBackend) Flush(ctx context.Context) error {
	return Flush(ctx, l.inner)
}

func (l *LoggingBackend) record(ctx context.Context, op, sessionID string, start time.Time, err error, fields func(*zerolog.Event)) {
	latency := time.Since(start)

	ev := l.log.Info()
	if err != nil {
		ev = l.log.Warn().Err(err)
	}
	ev = ev.Str("op", op).Str("session_id", sessionID).Dur("latency", latency)
	fields(ev)
	ev.Msg("backend call")

	if l.eventRepo == nil {
		return
	}
	data := store.RequestEventData{
		Operation: op,
		SessionID: sessionID,
		LatencyMs: latency.Milliseconds(),
		Success:   err == nil,
	}
	if err != nil {
		data.ErrorMessage = err.Error()
	}
	// The journal is best effort; a write failure never fails the call.
	if logErr := l.eventRepo.AppendRequestEvent(context.WithoutCancel(ctx), data); logErr != nil {
		l.log.Warn().Err(logErr).Msg("failed to record request event")
	}
}
