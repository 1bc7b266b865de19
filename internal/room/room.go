package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/abhisek/rehearse/internal/api"
	"github.com/abhisek/rehearse/internal/media"
	"github.com/abhisek/rehearse/internal/store"
)

var (
	ErrNoQuestions     = errors.New("room needs at least one question")
	ErrNoStream        = errors.New("camera and microphone are not available")
	ErrBusy            = errors.New("an upload is in progress")
	ErrNotReady        = errors.New("current answer is not finished")
	ErrNoPendingUpload = errors.New("no failed upload is waiting for a decision")
	ErrFinished        = errors.New("room is finished")
)

// Options configures a Room. Backend and Devices are required.
type Options struct {
	Backend  api.Backend
	Devices  media.Devices
	Preview  media.Preview
	Notifier Notifier
	Limits   Limits

	// Journal records room events locally. May be nil.
	Journal store.EventRepo
	Log     zerolog.Logger

	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// State is a read-only snapshot of the room for views.
type State struct {
	Index        int
	Total        int
	Question     Question
	Timer        Timer
	Limits       Limits
	Capture      CaptureState
	HasStream    bool
	Busy         bool
	RetryPending bool
	Finished     bool
	Uploaded     int

	// Cycles counts timer resets, one per question reached.
	Cycles int
}

// AdvanceResult reports what an Advance or ResolveUpload did.
type AdvanceResult struct {
	// Index is the current question after the call.
	Index int

	// RetryOffered is set when the upload failed and the caller must call
	// ResolveUpload before the room moves on.
	RetryOffered bool

	// Finished is set when the last question was passed; Handoff is then
	// populated.
	Finished bool
	Handoff  Handoff
}

// Room is one practice-room run: it owns the media stream, the per-question
// timer, the capture pipeline and the session lifecycle calls.
//
// All methods are safe for concurrent use. Backend calls are made without
// holding the room lock so Tick keeps running during an upload.
type Room struct {
	mu sync.Mutex

	launch   Launch
	limits   Limits
	backend  api.Backend
	devices  media.Devices
	preview  media.Preview
	notifier Notifier
	journal  store.EventRepo
	log      zerolog.Logger
	now      func() time.Time
	runID    string

	entered  bool
	stream   media.Stream
	closed   bool
	index    int
	timer    Timer
	cycles   int
	slots    []slot
	busy     bool
	retry    bool
	finished bool
	doneSent bool
}

// New creates a room for launch. It does not touch devices or the network
// until Enter.
func New(launch Launch, opts Options) (*Room, error) {
	if len(launch.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("room backend is required")
	}
	if opts.Devices == nil {
		return nil, fmt.Errorf("room devices are required")
	}
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	qs := make([]Question, len(launch.Questions))
	copy(qs, launch.Questions)
	launch.Questions = qs

	limits := opts.Limits.normalized()
	runID := uuid.NewString()

	return &Room{
		launch:   launch,
		limits:   limits,
		backend:  opts.Backend,
		devices:  opts.Devices,
		preview:  opts.Preview,
		notifier: opts.Notifier,
		journal:  opts.Journal,
		log:      opts.Log.With().Str("component", "room").Str("run_id", runID).Str("session_id", launch.SessionID).Logger(),
		now:      opts.Now,
		runID:    runID,
		timer:    ResetTimer(limits),
		cycles:   1,
		slots:    make([]slot, len(qs)),
	}, nil
}

// RunID identifies this run in the local journal.
func (r *Room) RunID() string { return r.runID }

// Enter marks the session running and acquires the camera and microphone.
// Failures become notices; the room stays usable. Only the first call has
// any effect.
func (r *Room) Enter(ctx context.Context) {
	r.mu.Lock()
	if r.entered || r.closed {
		r.mu.Unlock()
		return
	}
	r.entered = true
	r.mu.Unlock()

	r.record(store.ActionEnter, -1, nil)

	if r.launch.SessionID != "" {
		if err := r.backend.UpdateStatus(ctx, r.launch.SessionID, api.Running(r.now())); err != nil {
			r.log.Warn().Err(err).Msg("mark session running failed")
			r.notify(LevelWarning, "Could not mark the session as started. You can keep practicing.")
		}
	}

	stream, err := r.devices.Open(ctx, media.Constraints{Audio: true, Video: true})
	if err != nil {
		r.log.Error().Err(err).Msg("media acquisition failed")
		r.record(store.ActionMediaFailed, -1, withError(err))
		r.notify(LevelError, mediaMessage(err))
		return
	}

	r.mu.Lock()
	if r.closed {
		// Abandoned while the devices were opening.
		r.mu.Unlock()
		media.StopAll(stream)
		return
	}
	r.stream = stream
	r.mu.Unlock()

	if r.preview != nil {
		r.preview.Attach(stream)
		if err := r.preview.Play(); err != nil {
			r.log.Warn().Err(err).Msg("preview playback failed")
			r.notify(LevelWarning, "Camera preview did not start; recording still works.")
		}
	}
}

// Tick advances the active countdown by one second.
func (r *Room) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || r.closed {
		return
	}
	r.stepLocked(EventTick)
}

// StartAnswering skips the rest of the think phase. It returns ErrNoStream
// when there is nothing to record from. Calling it outside the think phase
// does nothing.
func (r *Room) StartAnswering() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || r.closed {
		return ErrFinished
	}
	if r.timer.Phase != PhaseThinking {
		return nil
	}
	if r.stream == nil {
		r.notify(LevelError, "Cannot start recording: camera and microphone are not available.")
		return ErrNoStream
	}
	r.stepLocked(EventStartAnswering)
	return nil
}

// EndAnswering stops the recording early. Calling it outside the recording
// phase does nothing.
func (r *Room) EndAnswering() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished || r.closed {
		return ErrFinished
	}
	r.stepLocked(EventEndAnswering)
	return nil
}

// Advance uploads the current answer, if one was captured, and moves to the
// next question. Past the last question it marks the session done and
// returns the handoff. A failed upload leaves the room on the current
// question with RetryOffered set; see ResolveUpload.
func (r *Room) Advance(ctx context.Context) (AdvanceResult, error) {
	r.mu.Lock()
	if err := r.checkIdleLocked(); err != nil {
		r.mu.Unlock()
		return AdvanceResult{}, err
	}
	if r.retry {
		r.mu.Unlock()
		return AdvanceResult{}, ErrNotReady
	}
	s := &r.slots[r.index]
	ready := r.timer.Phase == PhaseRecordingEnded ||
		(r.stream == nil && s.state == CaptureIdle)
	if !ready {
		r.mu.Unlock()
		return AdvanceResult{}, ErrNotReady
	}

	if s.state != CaptureCaptured {
		return r.moveOnLocked(ctx)
	}
	if r.launch.SessionID == "" {
		r.notify(LevelWarning, fmt.Sprintf("Answer %d was not uploaded: no session.", r.index+1))
		return r.moveOnLocked(ctx)
	}

	ok := r.uploadLocked(ctx, r.index)
	if r.closed {
		r.mu.Unlock()
		return AdvanceResult{}, ErrFinished
	}
	if !ok {
		r.retry = true
		res := AdvanceResult{Index: r.index, RetryOffered: true}
		r.mu.Unlock()
		return res, nil
	}
	return r.moveOnLocked(ctx)
}

// ResolveUpload answers the retry offer of a failed upload. With retry set
// the upload is attempted exactly once more. Either way the room then moves
// on, leaving the attempt empty if the upload never succeeded.
func (r *Room) ResolveUpload(ctx context.Context, retry bool) (AdvanceResult, error) {
	r.mu.Lock()
	if err := r.checkIdleLocked(); err != nil {
		r.mu.Unlock()
		return AdvanceResult{}, err
	}
	if !r.retry {
		r.mu.Unlock()
		return AdvanceResult{}, ErrNoPendingUpload
	}
	r.retry = false

	if retry {
		ok := r.uploadLocked(ctx, r.index)
		if r.closed {
			r.mu.Unlock()
			return AdvanceResult{}, ErrFinished
		}
		if !ok {
			r.notify(LevelWarning, fmt.Sprintf("Answer %d was not saved. Moving on.", r.index+1))
		}
	}
	return r.moveOnLocked(ctx)
}

// Abandon handles the user leaving mid-room. While an answer is being
// recorded a best-effort cancel is sent; the partial recording is discarded
// and never uploaded. The stream is released.
func (r *Room) Abandon() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	recording := r.timer.Phase == PhaseRecording && !r.finished
	if recording {
		s := &r.slots[r.index]
		if s.recorder != nil {
			if err := s.recorder.Stop(); err != nil {
				r.log.Warn().Err(err).Msg("stop recorder on abandon")
			}
			s.recorder = nil
			s.chunks = nil
		}
		s.state = CaptureIdle
	}
	r.finished = true
	r.closeLocked()
	r.mu.Unlock()

	if recording && r.launch.SessionID != "" {
		r.backend.Beacon(r.launch.SessionID, api.Canceled(r.now()))
	}
	r.record(store.ActionCanceled, -1, nil)
}

// Close releases the media stream. It is safe to call more than once and
// from every exit path.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

// State returns a snapshot for rendering.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	uploaded := 0
	for _, s := range r.slots {
		if s.attemptID != "" {
			uploaded++
		}
	}
	return State{
		Index:        r.index,
		Total:        len(r.launch.Questions),
		Question:     r.launch.Questions[r.index],
		Timer:        r.timer,
		Limits:       r.limits,
		Capture:      r.slots[r.index].state,
		HasStream:    r.stream != nil,
		Busy:         r.busy,
		RetryPending: r.retry,
		Finished:     r.finished,
		Uploaded:     uploaded,
		Cycles:       r.cycles,
	}
}

// Handoff returns the session id and the attempt ids collected so far.
func (r *Room) Handoff() Handoff {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handoffLocked()
}

func (r *Room) checkIdleLocked() error {
	if r.finished || r.closed {
		return ErrFinished
	}
	if r.busy {
		return ErrBusy
	}
	return nil
}

// stepLocked feeds ev to the timer and performs the resulting transition.
func (r *Room) stepLocked(ev Event) {
	next, tr := Step(r.timer, ev, r.limits)
	r.timer = next

	switch tr {
	case TransitionBeginRecording:
		r.armLocked()
	case TransitionEndRecording:
		r.finalizeLocked()
	}
}

// armLocked creates and starts a recorder for the current question.
func (r *Room) armLocked() {
	s := &r.slots[r.index]
	if r.stream == nil {
		r.notify(LevelError, "Recording did not start: camera and microphone are not available.")
		return
	}

	rec, err := r.stream.NewRecorder()
	if err != nil {
		r.log.Error().Err(err).Int("question_index", r.index).Msg("create recorder failed")
		s.err = err
		r.notify(LevelError, "Recording did not start: "+err.Error())
		return
	}
	s.recorder = rec
	s.chunks = &chunkBuffer{}
	s.state = CaptureArmed

	if err := rec.Start(s.chunks.write); err != nil {
		r.log.Error().Err(err).Int("question_index", r.index).Msg("start recorder failed")
		s.recorder = nil
		s.chunks = nil
		s.state = CaptureIdle
		s.err = err
		r.notify(LevelError, "Recording did not start: "+err.Error())
		return
	}
	s.state = CaptureCapturing
}

// finalizeLocked stops the recorder and seals its output into a blob.
func (r *Room) finalizeLocked() {
	s := &r.slots[r.index]
	if s.state != CaptureCapturing || s.recorder == nil {
		return
	}

	if err := s.recorder.Stop(); err != nil {
		r.log.Warn().Err(err).Int("question_index", r.index).Msg("stop recorder failed")
	}
	blob := s.chunks.seal(s.recorder.MIMEType())
	s.recorder = nil
	s.chunks = nil

	if blob.Size() == 0 {
		s.state = CaptureIdle
		r.notify(LevelWarning, "Nothing was recorded for this answer.")
		return
	}
	s.blob = &blob
	s.state = CaptureCaptured
	r.record(store.ActionRecorded, r.index, func(d *store.RoomEventData) { d.Bytes = blob.Size() })
}

// uploadLocked sends the blob for index. It is entered and returns with the
// lock held, releasing it for the network call.
func (r *Room) uploadLocked(ctx context.Context, index int) bool {
	s := &r.slots[index]
	blob := *s.blob
	s.state = CaptureUploading
	s.attempts++
	r.busy = true
	r.mu.Unlock()

	attempt, err := r.backend.UploadRecording(ctx, r.launch.SessionID, index, blob)

	r.mu.Lock()
	r.busy = false
	s = &r.slots[index]
	if err != nil {
		s.state = CaptureUploadFailed
		s.err = err
		r.log.Warn().Err(err).Int("question_index", index).Int("attempt", s.attempts).Msg("upload failed")
		r.record(store.ActionUploadFailed, index, withError(err))
		switch {
		case api.IsAuthError(err):
			r.notify(LevelError, fmt.Sprintf("Upload of answer %d was rejected: sign in again with `rehearse login`.", index+1))
		case s.attempts == 1:
			r.notify(LevelError, fmt.Sprintf("Upload of answer %d failed. Retry?", index+1))
		}
		return false
	}

	s.state = CaptureUploaded
	s.attemptID = attempt.ID
	s.err = nil
	r.record(store.ActionUploaded, index, func(d *store.RoomEventData) {
		d.AttemptID = attempt.ID
		d.Bytes = blob.Size()
	})
	r.notify(LevelInfo, fmt.Sprintf("Answer %d saved.", index+1))
	return true
}

// moveOnLocked goes to the next question or completes the room. It is
// entered with the lock held and releases it.
func (r *Room) moveOnLocked(ctx context.Context) (AdvanceResult, error) {
	if r.index < len(r.launch.Questions)-1 {
		r.index++
		r.timer = ResetTimer(r.limits)
		r.cycles++
		res := AdvanceResult{Index: r.index}
		r.mu.Unlock()
		return res, nil
	}

	r.finished = true
	sendDone := !r.doneSent && r.launch.SessionID != ""
	r.doneSent = true
	handoff := r.handoffLocked()
	r.closeLocked()
	r.mu.Unlock()

	if sendDone {
		if err := r.backend.UpdateStatus(ctx, r.launch.SessionID, api.Done(r.now())); err != nil {
			r.log.Warn().Err(err).Msg("mark session done failed")
		}
	}
	r.record(store.ActionCompleted, -1, nil)

	return AdvanceResult{Index: r.index, Finished: true, Handoff: handoff}, nil
}

func (r *Room) handoffLocked() Handoff {
	ids := make([]string, len(r.slots))
	for i, s := range r.slots {
		ids[i] = s.attemptID
	}
	return Handoff{SessionID: r.launch.SessionID, AttemptIDs: ids}
}

// closeLocked stops any active recorder and every stream track, once.
func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	for i := range r.slots {
		if rec := r.slots[i].recorder; rec != nil {
			_ = rec.Stop()
			r.slots[i].recorder = nil
		}
	}
	if r.stream != nil {
		media.StopAll(r.stream)
		r.stream = nil
	}
}

func (r *Room) notify(level Level, msg string) {
	r.notifier.Notify(Notice{Level: level, Message: msg})
}

// record appends to the journal. Journal failures are logged only.
func (r *Room) record(action string, index int, fill func(*store.RoomEventData)) {
	if r.journal == nil {
		return
	}
	data := store.RoomEventData{
		RunID:         r.runID,
		SessionID:     r.launch.SessionID,
		Action:        action,
		QuestionIndex: index,
	}
	if fill != nil {
		fill(&data)
	}
	if err := r.journal.AppendRoomEvent(context.Background(), data); err != nil {
		r.log.Warn().Err(err).Str("action", action).Msg("journal write failed")
	}
}

func withError(err error) func(*store.RoomEventData) {
	return func(d *store.RoomEventData) { d.ErrorMessage = err.Error() }
}

func mediaMessage(err error) string {
	switch {
	case errors.Is(err, media.ErrPermissionDenied):
		return "Camera or microphone access was denied. Recording is disabled."
	case errors.Is(err, media.ErrDeviceNotFound):
		return "No camera or microphone was found. Recording is disabled."
	}
	return "Could not open camera and microphone: " + err.Error()
}
