package room

// Default phase lengths in seconds.
const (
	DefaultThinkSeconds  = 60
	DefaultRecordSeconds = 60
)

// Phase is the room's sub-state for the active question.
type Phase int

const (
	PhaseThinking       Phase = iota // Counting down before the answer
	PhaseRecording                   // Counting up while the answer is captured
	PhaseRecordingEnded              // Answer finished, waiting for advance
)

func (p Phase) String() string {
	switch p {
	case PhaseThinking:
		return "thinking"
	case PhaseRecording:
		return "recording"
	case PhaseRecordingEnded:
		return "recording ended"
	}
	return "unknown"
}

// Limits are the per-question phase lengths in seconds.
type Limits struct {
	ThinkSeconds  int
	RecordSeconds int
}

// DefaultLimits returns the standard 60/60 limits.
func DefaultLimits() Limits {
	return Limits{ThinkSeconds: DefaultThinkSeconds, RecordSeconds: DefaultRecordSeconds}
}

func (l Limits) normalized() Limits {
	if l.ThinkSeconds <= 0 {
		l.ThinkSeconds = DefaultThinkSeconds
	}
	if l.RecordSeconds <= 0 {
		l.RecordSeconds = DefaultRecordSeconds
	}
	return l
}

// Timer is the think/record countdown for one question. Only the counter
// belonging to the current phase moves.
type Timer struct {
	Phase          Phase
	ThinkRemaining int
	RecordElapsed  int
}

// Event drives the timer.
type Event int

const (
	EventTick Event = iota
	EventStartAnswering
	EventEndAnswering
)

// Transition is the side effect a Step asks the caller to perform.
type Transition int

const (
	TransitionNone           Transition = iota
	TransitionBeginRecording            // Arm and start the recorder
	TransitionEndRecording              // Finalize the capture
)

// ResetTimer returns the timer state at the start of a question.
func ResetTimer(limits Limits) Timer {
	limits = limits.normalized()
	return Timer{Phase: PhaseThinking, ThinkRemaining: limits.ThinkSeconds}
}

// Step applies ev to t. Think expiry and an explicit start share one path,
// as do the record cap and an explicit end. Events that do not apply to the
// current phase leave the timer unchanged, so a start racing the final think
// tick produces a single BeginRecording.
func Step(t Timer, ev Event, limits Limits) (Timer, Transition) {
	limits = limits.normalized()

	switch t.Phase {
	case PhaseThinking:
		switch ev {
		case EventTick:
			if t.ThinkRemaining > 0 {
				t.ThinkRemaining--
			}
			if t.ThinkRemaining > 0 {
				return t, TransitionNone
			}
			return beginRecording(t), TransitionBeginRecording
		case EventStartAnswering:
			return beginRecording(t), TransitionBeginRecording
		}

	case PhaseRecording:
		switch ev {
		case EventTick:
			if t.RecordElapsed < limits.RecordSeconds {
				t.RecordElapsed++
			}
			if t.RecordElapsed < limits.RecordSeconds {
				return t, TransitionNone
			}
			return endRecording(t), TransitionEndRecording
		case EventEndAnswering:
			return endRecording(t), TransitionEndRecording
		}
	}

	return t, TransitionNone
}

func beginRecording(t Timer) Timer {
	t.Phase = PhaseRecording
	t.RecordElapsed = 0
	return t
}

func endRecording(t Timer) Timer {
	t.Phase = PhaseRecordingEnded
	return t
}
