package room

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/rehearse/internal/api"
	"github.com/abhisek/rehearse/internal/media"
	"github.com/abhisek/rehearse/internal/media/synthetic"
	"github.com/abhisek/rehearse/internal/store"
)

type harness struct {
	room    *Room
	backend *api.MockBackend
	devices *fakeDevices
	stream  *fakeStream
	preview *fakePreview
	notices *NoticeQueue
}

func questions(n int) []Question {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{ID: string(rune('a' + i)), Text: "Question text"}
	}
	return qs
}

func newHarness(t *testing.T, n int, uploads ...api.MockUpload) *harness {
	t.Helper()
	h := &harness{
		backend: api.NewMockBackend(uploads...),
		stream:  newFakeStream(),
		preview: &fakePreview{},
		notices: &NoticeQueue{},
	}
	h.devices = &fakeDevices{stream: h.stream}

	r, err := New(Launch{SessionID: "sess-1", Questions: questions(n)}, Options{
		Backend:  h.backend,
		Devices:  h.devices,
		Preview:  h.preview,
		Notifier: h.notices,
		Limits:   DefaultLimits(),
	})
	require.NoError(t, err)
	h.room = r
	return h
}

func (h *harness) ticks(n int) {
	for range n {
		h.room.Tick()
	}
}

// answer runs one question through think, record and end.
func (h *harness) answer(t *testing.T) {
	t.Helper()
	require.NoError(t, h.room.StartAnswering())
	h.ticks(3)
	require.NoError(t, h.room.EndAnswering())
	require.Equal(t, PhaseRecordingEnded, h.room.State().Timer.Phase)
}

func hasNotice(notices []Notice, level Level) bool {
	for _, n := range notices {
		if n.Level == level {
			return true
		}
	}
	return false
}

func TestNew_NoQuestions(t *testing.T) {
	_, err := New(Launch{SessionID: "s"}, Options{Backend: api.NewMockBackend(), Devices: &fakeDevices{}})
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestEnter_AcquiresMediaAndMarksRunning(t *testing.T) {
	h := newHarness(t, 1)
	h.room.Enter(context.Background())
	h.room.Enter(context.Background())

	assert.Equal(t, 1, h.devices.opens)
	assert.Equal(t, []api.Status{api.StatusRunning}, h.backend.Statuses())
	assert.NotNil(t, h.backend.StatusCalls[0].Update.StartedAt)
	assert.Same(t, h.stream, h.preview.attached)
	assert.Equal(t, 1, h.preview.plays)
	assert.True(t, h.room.State().HasStream)
	assert.Empty(t, h.notices.Drain())
}

func TestEnter_StatusFailureIsNonBlocking(t *testing.T) {
	h := newHarness(t, 1)
	h.backend.FailStatus(&api.ErrUnavailable{})
	h.room.Enter(context.Background())

	assert.True(t, hasNotice(h.notices.Drain(), LevelWarning))
	assert.True(t, h.room.State().HasStream)
}

func TestEnter_PreviewPlayFailureWarns(t *testing.T) {
	h := newHarness(t, 1)
	h.preview.playErr = errors.New("autoplay blocked")
	h.room.Enter(context.Background())

	assert.True(t, hasNotice(h.notices.Drain(), LevelWarning))
	assert.NoError(t, h.room.StartAnswering())
}

func TestMediaDenied(t *testing.T) {
	h := newHarness(t, 2)
	h.devices.err = media.ErrPermissionDenied
	h.room.Enter(context.Background())

	notices := h.notices.Drain()
	require.True(t, hasNotice(notices, LevelError))
	assert.Contains(t, notices[len(notices)-1].Message, "denied")

	assert.ErrorIs(t, h.room.StartAnswering(), ErrNoStream)
	assert.Equal(t, PhaseThinking, h.room.State().Timer.Phase)
	assert.True(t, hasNotice(h.notices.Drain(), LevelError))

	// Think expiry still moves the user along without a recorder.
	h.ticks(DefaultThinkSeconds)
	st := h.room.State()
	assert.Equal(t, PhaseRecording, st.Timer.Phase)
	assert.Equal(t, CaptureIdle, st.Capture)
	assert.True(t, hasNotice(h.notices.Drain(), LevelError))

	// No capture exists, so the user can move on without waiting.
	res, err := h.room.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Zero(t, h.backend.UploadCount())
}

func TestThinkExpiryArmsOneRecorder(t *testing.T) {
	h := newHarness(t, 1)
	h.room.Enter(context.Background())

	h.ticks(DefaultThinkSeconds)
	st := h.room.State()
	assert.Equal(t, PhaseRecording, st.Timer.Phase)
	assert.Equal(t, CaptureCapturing, st.Capture)
	assert.Equal(t, 1, h.stream.recorderCount())

	// A late manual start is a no-op.
	require.NoError(t, h.room.StartAnswering())
	assert.Equal(t, 1, h.stream.recorderCount())
}

func TestManualStartArmsOneRecorder(t *testing.T) {
	h := newHarness(t, 1)
	h.room.Enter(context.Background())

	h.ticks(5)
	require.NoError(t, h.room.StartAnswering())
	require.NoError(t, h.room.StartAnswering())
	h.ticks(2)

	assert.Equal(t, 1, h.stream.recorderCount())
	assert.Equal(t, CaptureCapturing, h.room.State().Capture)
}

func TestRecordCapFinalizesOneBlob(t *testing.T) {
	h := newHarness(t, 1)
	h.room.Enter(context.Background())
	require.NoError(t, h.room.StartAnswering())

	h.ticks(DefaultRecordSeconds)
	st := h.room.State()
	assert.Equal(t, PhaseRecordingEnded, st.Timer.Phase)
	assert.Equal(t, DefaultRecordSeconds, st.Timer.RecordElapsed)
	assert.Equal(t, CaptureCaptured, st.Capture)

	require.NoError(t, h.room.EndAnswering())
	h.ticks(5)

	rec := h.stream.recorders[0]
	assert.Equal(t, 1, rec.stops)
	assert.Equal(t, CaptureCaptured, h.room.State().Capture)
}

func TestAdvance_NotReady(t *testing.T) {
	h := newHarness(t, 2)
	h.room.Enter(context.Background())

	_, err := h.room.Advance(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, h.room.StartAnswering())
	_, err = h.room.Advance(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestAdvance_EmptyRecordingIsNotUploaded(t *testing.T) {
	h := newHarness(t, 2)
	h.stream.emptyRecords = true
	h.room.Enter(context.Background())
	h.answer(t)

	assert.Equal(t, CaptureIdle, h.room.State().Capture)
	res, err := h.room.Advance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Zero(t, h.backend.UploadCount())
}

func TestScenario_AnswerEarlyAndUpload(t *testing.T) {
	h := newHarness(t, 3, api.MockUpload{AttemptID: "101"})
	h.room.Enter(context.Background())

	h.ticks(5)
	assert.Equal(t, 55, h.room.State().Timer.ThinkRemaining)

	require.NoError(t, h.room.StartAnswering())
	st := h.room.State()
	assert.Equal(t, PhaseRecording, st.Timer.Phase)
	assert.Equal(t, 0, st.Timer.RecordElapsed)

	h.ticks(20)
	require.NoError(t, h.room.EndAnswering())
	assert.Equal(t, CaptureCaptured, h.room.State().Capture)

	res, err := h.room.Advance(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Finished)
	assert.False(t, res.RetryOffered)

	require.Equal(t, 1, h.backend.UploadCount())
	call := h.backend.UploadCalls[0]
	assert.Equal(t, "sess-1", call.SessionID)
	assert.Equal(t, 0, call.Index)
	assert.Positive(t, call.Blob.Size())

	assert.Equal(t, []string{"101", "", ""}, h.room.Handoff().AttemptIDs)

	st = h.room.State()
	assert.Equal(t, 1, st.Index)
	assert.Equal(t, Timer{Phase: PhaseThinking, ThinkRemaining: 60}, st.Timer)
	assert.Equal(t, CaptureIdle, st.Capture)
	assert.True(t, hasNotice(h.notices.Drain(), LevelInfo))
}

func TestScenario_FailedUploadDeclinedLeavesGap(t *testing.T) {
	h := newHarness(t, 4,
		api.MockUpload{AttemptID: "a0"},
		api.MockUpload{AttemptID: "a1"},
		api.MockUpload{Err: &api.ErrUnavailable{}},
		api.MockUpload{AttemptID: "a3"},
	)
	h.room.Enter(context.Background())
	ctx := context.Background()

	for range 2 {
		h.answer(t)
		_, err := h.room.Advance(ctx)
		require.NoError(t, err)
	}

	h.answer(t)
	res, err := h.room.Advance(ctx)
	require.NoError(t, err)
	assert.True(t, res.RetryOffered)
	assert.Equal(t, 2, res.Index)
	st := h.room.State()
	assert.True(t, st.RetryPending)
	assert.Equal(t, CaptureUploadFailed, st.Capture)

	_, err = h.room.Advance(ctx)
	assert.ErrorIs(t, err, ErrNotReady)

	res, err = h.room.ResolveUpload(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Index)

	h.answer(t)
	res, err = h.room.Advance(ctx)
	require.NoError(t, err)
	require.True(t, res.Finished)

	assert.Equal(t, []string{"a0", "a1", "", "a3"}, res.Handoff.AttemptIDs)
	assert.Equal(t, []int{2}, res.Handoff.Missing())
	assert.Equal(t, 4, h.backend.UploadCount())
	assert.Equal(t, []api.Status{api.StatusRunning, api.StatusDone}, h.backend.Statuses())
}

func TestRetryAccepted(t *testing.T) {
	h := newHarness(t, 2,
		api.MockUpload{Err: &api.ErrUnavailable{}},
		api.MockUpload{AttemptID: "second-try"},
	)
	h.room.Enter(context.Background())
	h.answer(t)

	res, err := h.room.Advance(context.Background())
	require.NoError(t, err)
	require.True(t, res.RetryOffered)

	res, err = h.room.ResolveUpload(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, []string{"second-try", ""}, h.room.Handoff().AttemptIDs)
	assert.Equal(t, 2, h.backend.UploadCount())

	_, err = h.room.ResolveUpload(context.Background(), true)
	assert.ErrorIs(t, err, ErrNoPendingUpload)
}

func TestRetryFailsAgainStillMovesOn(t *testing.T) {
	h := newHarness(t, 2,
		api.MockUpload{Err: &api.ErrUnavailable{}},
		api.MockUpload{Err: &api.ErrUnavailable{}},
	)
	h.room.Enter(context.Background())
	h.answer(t)

	_, err := h.room.Advance(context.Background())
	require.NoError(t, err)
	res, err := h.room.ResolveUpload(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Index)
	assert.False(t, h.room.State().RetryPending)
	assert.Equal(t, 2, h.backend.UploadCount())
	assert.Equal(t, []string{"", ""}, h.room.Handoff().AttemptIDs)
}

func TestUploadUnauthorizedAsksToSignIn(t *testing.T) {
	h := newHarness(t, 2, api.MockUpload{Err: &api.StatusError{Code: 401}})
	h.room.Enter(context.Background())
	h.answer(t)

	res, err := h.room.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, res.RetryOffered)

	var signIn bool
	for _, n := range h.notices.Drain() {
		if n.Level == LevelError && strings.Contains(n.Message, "rehearse login") {
			signIn = true
		}
	}
	assert.True(t, signIn)
}

func TestSingleUploadInFlight(t *testing.T) {
	h := newHarness(t, 2, api.MockUpload{AttemptID: "a0"})
	h.room.Enter(context.Background())
	h.answer(t)

	started := make(chan struct{})
	release := make(chan struct{})
	h.backend.BeforeUpload = func() {
		close(started)
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.room.Advance(context.Background())
		done <- err
	}()
	<-started

	st := h.room.State()
	assert.True(t, st.Busy)
	assert.Equal(t, CaptureUploading, st.Capture)

	_, err := h.room.Advance(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = h.room.ResolveUpload(context.Background(), true)
	assert.ErrorIs(t, err, ErrBusy)

	// Ticks are not blocked by the upload.
	h.room.Tick()

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("advance did not return")
	}
	assert.Equal(t, 1, h.backend.UploadCount())
	assert.Equal(t, 1, h.room.State().Index)
}

func TestCompletionExactlyOnce(t *testing.T) {
	h := newHarness(t, 1)
	h.room.Enter(context.Background())
	h.answer(t)

	// The only upload fails and the retry is declined.
	res, err := h.room.Advance(context.Background())
	require.NoError(t, err)
	require.True(t, res.RetryOffered)
	res, err = h.room.ResolveUpload(context.Background(), false)
	require.NoError(t, err)
	require.True(t, res.Finished)
	assert.Equal(t, Handoff{SessionID: "sess-1", AttemptIDs: []string{""}}, res.Handoff)

	_, err = h.room.Advance(context.Background())
	assert.ErrorIs(t, err, ErrFinished)
	h.room.Abandon()
	h.room.Close()

	assert.Equal(t, []api.Status{api.StatusRunning, api.StatusDone}, h.backend.Statuses())
	assert.Zero(t, h.backend.BeaconCount())
	for _, tr := range h.stream.tracks {
		assert.Equal(t, 1, tr.stopCount())
	}
}

func TestAbandonDuringRecording(t *testing.T) {
	h := newHarness(t, 3)
	h.room.Enter(context.Background())
	require.NoError(t, h.room.StartAnswering())
	h.ticks(10)

	h.room.Abandon()

	require.Equal(t, 1, h.backend.BeaconCount())
	beacon := h.backend.BeaconCalls[0]
	assert.Equal(t, api.StatusCanceled, beacon.Update.Status)
	assert.NotNil(t, beacon.Update.EndedAt)
	assert.Zero(t, h.backend.UploadCount())
	assert.Equal(t, 1, h.stream.recorders[0].stops)
	for _, tr := range h.stream.tracks {
		assert.Equal(t, 1, tr.stopCount())
	}

	assert.ErrorIs(t, h.room.EndAnswering(), ErrFinished)
	_, err := h.room.Advance(context.Background())
	assert.ErrorIs(t, err, ErrFinished)

	h.room.Abandon()
	assert.Equal(t, 1, h.backend.BeaconCount())
}

func TestAbandonOutsideRecordingSendsNoBeacon(t *testing.T) {
	h := newHarness(t, 2)
	h.room.Enter(context.Background())
	h.ticks(3)

	h.room.Abandon()
	assert.Zero(t, h.backend.BeaconCount())
	for _, tr := range h.stream.tracks {
		assert.Equal(t, 1, tr.stopCount())
	}
}

func TestEmptySessionSkipsLifecycle(t *testing.T) {
	backend := api.NewMockBackend(api.MockUpload{AttemptID: "x"})
	stream := newFakeStream()
	r, err := New(Launch{Questions: questions(1)}, Options{
		Backend: backend,
		Devices: &fakeDevices{stream: stream},
	})
	require.NoError(t, err)

	r.Enter(context.Background())
	require.NoError(t, r.StartAnswering())
	require.NoError(t, r.EndAnswering())
	res, err := r.Advance(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Finished)

	r2, err := New(Launch{Questions: questions(1)}, Options{Backend: backend, Devices: &fakeDevices{stream: newFakeStream()}})
	require.NoError(t, err)
	r2.Enter(context.Background())
	require.NoError(t, r2.StartAnswering())
	r2.Abandon()

	assert.Empty(t, backend.Statuses())
	assert.Zero(t, backend.BeaconCount())
	assert.Zero(t, backend.UploadCount())
}

func TestNQuestionsCycles(t *testing.T) {
	const n = 5
	uploads := make([]api.MockUpload, n)
	for i := range uploads {
		uploads[i] = api.MockUpload{AttemptID: string(rune('A' + i))}
	}
	h := newHarness(t, n, uploads...)
	h.room.Enter(context.Background())

	var res AdvanceResult
	for i := range n {
		assert.Equal(t, i+1, h.room.State().Cycles)
		h.answer(t)
		var err error
		res, err = h.room.Advance(context.Background())
		require.NoError(t, err)
	}

	require.True(t, res.Finished)
	assert.Equal(t, n, h.room.State().Cycles)
	assert.Equal(t, n, h.backend.UploadCount())
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, res.Handoff.AttemptIDs)
	for i, call := range h.backend.UploadCalls {
		assert.Equal(t, i, call.Index)
	}
	assert.Equal(t, n, h.stream.recorderCount())
}

func TestCloseReleasesStreamOnce(t *testing.T) {
	h := newHarness(t, 1)
	h.room.Enter(context.Background())
	require.NoError(t, h.room.StartAnswering())

	h.room.Close()
	h.room.Close()
	h.room.Abandon()

	for _, tr := range h.stream.tracks {
		assert.Equal(t, 1, tr.stopCount())
	}
	assert.Equal(t, 1, h.stream.recorders[0].stops)
	assert.False(t, h.room.State().HasStream)
}

func TestRecorderFailureNotifies(t *testing.T) {
	h := newHarness(t, 1)
	h.stream.recorderErr = media.ErrStreamStopped
	h.room.Enter(context.Background())

	require.NoError(t, h.room.StartAnswering())
	assert.Equal(t, CaptureIdle, h.room.State().Capture)
	assert.True(t, hasNotice(h.notices.Drain(), LevelError))
}

func TestJournal(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer st.Close()

	backend := api.NewMockBackend(api.MockUpload{AttemptID: "a0"}, api.MockUpload{Err: &api.ErrUnavailable{}})
	r, err := New(Launch{SessionID: "sess-1", Questions: questions(2)}, Options{
		Backend: backend,
		Devices: &fakeDevices{stream: newFakeStream()},
		Journal: st.EventRepo(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	r.Enter(ctx)
	for range 2 {
		require.NoError(t, r.StartAnswering())
		require.NoError(t, r.EndAnswering())
		res, err := r.Advance(ctx)
		require.NoError(t, err)
		if res.RetryOffered {
			_, err = r.ResolveUpload(ctx, false)
			require.NoError(t, err)
		}
	}

	events, err := st.EventRepo().RoomEvents(ctx, r.RunID())
	require.NoError(t, err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		store.ActionEnter,
		store.ActionRecorded, store.ActionUploaded,
		store.ActionRecorded, store.ActionUploadFailed,
		store.ActionCompleted,
	}, actions)

	runs, err := st.EventRepo().RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Uploaded)
	assert.Equal(t, 1, runs[0].Failed)
	assert.True(t, runs[0].Completed)
}

func TestWithSyntheticDevices(t *testing.T) {
	backend := api.NewMockBackend(api.MockUpload{AttemptID: "syn"})
	devices := synthetic.New(synthetic.Options{Timeslice: 5 * time.Millisecond, ChunkSize: 64})
	r, err := New(Launch{SessionID: "s", Questions: questions(1)}, Options{Backend: backend, Devices: devices})
	require.NoError(t, err)

	r.Enter(context.Background())
	require.NoError(t, r.StartAnswering())
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, r.EndAnswering())

	res, err := r.Advance(context.Background())
	require.NoError(t, err)
	require.True(t, res.Finished)
	assert.Equal(t, 1, devices.OpenCount())

	blob := backend.UploadCalls[0].Blob
	assert.Equal(t, media.DefaultMIMEType, blob.MIMEType())
	assert.Equal(t, []byte{0x1A, 0x45, 0xDF, 0xA3}, blob.Bytes()[:4])
}
