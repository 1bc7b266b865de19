package practice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/rehearse/internal/room"
	"github.com/abhisek/rehearse/internal/router"
	"github.com/abhisek/rehearse/internal/screen"
	"github.com/abhisek/rehearse/internal/ui/layout"
)

// maxNotices is how many recent notices stay on screen.
const maxNotices = 3

// FinishFunc builds the screen shown after the last question.
type FinishFunc func(room.Handoff) screen.Screen

// Screen drives a room.Room from the terminal.
type Screen struct {
	room    *room.Room
	notices *room.NoticeQueue
	preview *Preview
	finish  FinishFunc
	keys    keyMap

	entered     bool
	pending     bool // Advance or ResolveUpload in flight
	quitConfirm bool
	shown       []room.Notice
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)
var _ screen.StatusProvider = (*Screen)(nil)

// New creates the room screen. r must have been built with notices as its
// Notifier and preview as its Preview.
func New(r *room.Room, notices *room.NoticeQueue, preview *Preview, finish FinishFunc) *Screen {
	return &Screen{
		room:    r,
		notices: notices,
		preview: preview,
		finish:  finish,
		keys:    defaultKeyMap(),
	}
}

func (s *Screen) Init() tea.Cmd {
	r := s.room
	return func() tea.Msg {
		r.Enter(context.Background())
		return enteredMsg{}
	}
}

func (s *Screen) Title() string {
	return "Practice Room"
}

// Status shows the question counter and the recording indicator.
func (s *Screen) Status() string {
	st := s.room.State()
	if st.Finished {
		return "Done"
	}
	status := fmt.Sprintf("Q %d/%d", st.Index+1, st.Total)
	if st.Capture == room.CaptureCapturing {
		status += "  ● REC"
	}
	return status
}

// Room returns the underlying room.
func (s *Screen) Room() *room.Room { return s.room }

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case enteredMsg:
		s.entered = true
		s.drainNotices()
		return s, tickCmd()

	case tickMsg:
		s.room.Tick()
		s.drainNotices()
		if s.room.State().Finished {
			return s, nil
		}
		return s, tickCmd()

	case advanceMsg:
		return s.handleAdvance(msg)

	case tea.KeyMsg:
		return s.handleKey(msg)
	}
	return s, nil
}

func (s *Screen) handleKey(msg tea.KeyMsg) (screen.Screen, tea.Cmd) {
	if !s.entered {
		return s, nil
	}

	if s.quitConfirm {
		switch {
		case key.Matches(msg, s.keys.Yes):
			s.quitConfirm = false
			s.room.Abandon()
			return s, tea.Quit
		case key.Matches(msg, s.keys.No):
			s.quitConfirm = false
		}
		return s, nil
	}

	st := s.room.State()

	if st.RetryPending && !s.pending {
		switch {
		case key.Matches(msg, s.keys.Quit):
			s.quitConfirm = true
		case key.Matches(msg, s.keys.Yes):
			return s.resolve(true)
		case key.Matches(msg, s.keys.No):
			return s.resolve(false)
		}
		return s, nil
	}

	if key.Matches(msg, s.keys.Quit) {
		s.quitConfirm = true
		return s, nil
	}

	if s.pending || st.Busy {
		return s, nil
	}

	switch {
	case key.Matches(msg, s.keys.Start):
		_ = s.room.StartAnswering()
	case key.Matches(msg, s.keys.End):
		_ = s.room.EndAnswering()
	case key.Matches(msg, s.keys.Next):
		return s.advance()
	case key.Matches(msg, s.keys.Primary):
		switch st.Timer.Phase {
		case room.PhaseThinking:
			_ = s.room.StartAnswering()
		case room.PhaseRecording:
			if st.Capture == room.CaptureIdle && !st.HasStream {
				return s.advance()
			}
			_ = s.room.EndAnswering()
		case room.PhaseRecordingEnded:
			return s.advance()
		}
	}
	s.drainNotices()
	return s, nil
}

func (s *Screen) advance() (screen.Screen, tea.Cmd) {
	s.pending = true
	r := s.room
	return s, func() tea.Msg {
		res, err := r.Advance(context.Background())
		return advanceMsg{Result: res, Err: err}
	}
}

func (s *Screen) resolve(retry bool) (screen.Screen, tea.Cmd) {
	s.pending = true
	r := s.room
	return s, func() tea.Msg {
		res, err := r.ResolveUpload(context.Background(), retry)
		return advanceMsg{Result: res, Err: err}
	}
}

func (s *Screen) handleAdvance(msg advanceMsg) (screen.Screen, tea.Cmd) {
	s.pending = false
	s.drainNotices()

	switch {
	case errors.Is(msg.Err, room.ErrNotReady):
		s.push(room.Notice{Level: room.LevelWarning, Message: "Finish your answer before moving on."})
		return s, nil
	case msg.Err != nil:
		s.push(room.Notice{Level: room.LevelError, Message: msg.Err.Error()})
		return s, nil
	}

	if msg.Result.Finished && s.finish != nil {
		next := s.finish(msg.Result.Handoff)
		return s, func() tea.Msg { return router.ReplaceScreenMsg{Screen: next} }
	}
	return s, nil
}

func (s *Screen) drainNotices() {
	for _, n := range s.notices.Drain() {
		s.push(n)
	}
}

func (s *Screen) push(n room.Notice) {
	s.shown = append(s.shown, n)
	if len(s.shown) > maxNotices {
		s.shown = s.shown[len(s.shown)-maxNotices:]
	}
}

func (s *Screen) KeyHints() []layout.KeyHint {
	if s.quitConfirm {
		return []layout.KeyHint{
			{Key: "Y", Description: "Leave room"},
			{Key: "N", Description: "Stay"},
		}
	}
	st := s.room.State()
	if st.RetryPending {
		return []layout.KeyHint{
			{Key: "Y", Description: "Retry upload"},
			{Key: "N", Description: "Skip"},
			hint(s.keys.Quit),
		}
	}
	if s.pending || st.Busy {
		return []layout.KeyHint{{Key: "…", Description: "Uploading"}}
	}

	var hints []layout.KeyHint
	switch st.Timer.Phase {
	case room.PhaseThinking:
		hints = append(hints, hint(s.keys.Start))
	case room.PhaseRecording:
		hints = append(hints, hint(s.keys.End))
	case room.PhaseRecordingEnded:
		h := hint(s.keys.Next)
		if st.Index == st.Total-1 {
			h.Description = "Finish"
		}
		hints = append(hints, h)
	}
	return append(hints, hint(s.keys.Quit))
}

func hint(b key.Binding) layout.KeyHint {
	h := b.Help()
	return layout.KeyHint{Key: h.Key, Description: h.Desc}
}

// tickCmd returns a command that sends a tickMsg after 1 second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
