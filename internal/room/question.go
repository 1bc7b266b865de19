package room

// LoadingText stands in for a question whose text is missing.
const LoadingText = "Loading question…"

// Question is one prompt the user answers on camera.
type Question struct {
	ID   string
	Text string
}

// DisplayText returns the question text or the loading placeholder.
func (q Question) DisplayText() string {
	if q.Text == "" {
		return LoadingText
	}
	return q.Text
}

// Launch is the context a room is opened with.
type Launch struct {
	// SessionID identifies the server-side session. Empty skips every
	// status call.
	SessionID string

	// Questions is the fixed, ordered question list.
	Questions []Question
}

// Handoff is what the room passes to the feedback view on completion.
type Handoff struct {
	SessionID string

	// AttemptIDs has one entry per question; "" marks a question whose
	// upload never succeeded.
	AttemptIDs []string
}

// Missing returns the indexes of questions without an attempt.
func (h Handoff) Missing() []int {
	var out []int
	for i, id := range h.AttemptIDs {
		if id == "" {
			out = append(out, i)
		}
	}
	return out
}
