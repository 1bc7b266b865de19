package practice

import (
	"time"

	"github.com/abhisek/rehearse/internal/room"
)

// enteredMsg is sent once the room has marked the session running and
// opened the devices.
type enteredMsg struct{}

// tickMsg is sent every second while the room is active.
type tickMsg time.Time

// advanceMsg carries the outcome of an Advance or ResolveUpload call.
type advanceMsg struct {
	Result room.AdvanceResult
	Err    error
}
