package practice

import (
	"fmt"
	"image/color"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/rehearse/internal/room"
	"github.com/abhisek/rehearse/internal/ui/components"
	"github.com/abhisek/rehearse/internal/ui/theme"
)

func (s *Screen) View(width, height int) string {
	if !s.entered {
		return renderLoading(width)
	}
	if s.quitConfirm {
		return renderQuitConfirm(width, s.room.State().Timer.Phase == room.PhaseRecording)
	}

	st := s.room.State()
	if st.RetryPending && !s.pending {
		return s.renderRetry(width, st)
	}
	return s.renderRoom(width, st)
}

func (s *Screen) renderRoom(width int, st room.State) string {
	var b strings.Builder

	infoLeft := lipgloss.NewStyle().
		Foreground(theme.Secondary).
		Bold(true).
		Render(fmt.Sprintf("  Question %d of %d", st.Index+1, st.Total))
	infoRight := renderPhase(st)

	infoLine := infoLeft
	rightPad := width - lipgloss.Width(infoLeft) - lipgloss.Width(infoRight) - 4
	if rightPad > 0 {
		infoLine += strings.Repeat(" ", rightPad) + infoRight
	}
	b.WriteString(infoLine)
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("─", max(width-4, 0))))
	b.WriteString("\n\n")

	b.WriteString(lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Foreground(theme.Text).
		Bold(true).
		Render(st.Question.DisplayText()))
	b.WriteString("\n\n")

	barWidth := min(width-8, 60)
	var bar components.ProgressBar
	switch st.Timer.Phase {
	case room.PhaseThinking:
		bar = components.NewCountdown("Think ", st.Timer.ThinkRemaining, st.Limits.ThinkSeconds, theme.Secondary, barWidth)
	default:
		bar = components.NewCountdown("Answer", st.Timer.RecordElapsed, st.Limits.RecordSeconds, theme.Live, barWidth)
	}
	b.WriteString(center(width, bar.View()))
	b.WriteString("\n\n")

	b.WriteString(center(width, s.renderDevices(st)))
	b.WriteString("\n")
	b.WriteString(center(width, renderCapture(st)))
	b.WriteString("\n\n")

	for _, n := range s.shown {
		b.WriteString(center(width, renderNotice(n)))
		b.WriteString("\n")
	}

	return b.String()
}

func renderPhase(st room.State) string {
	switch st.Timer.Phase {
	case room.PhaseThinking:
		return lipgloss.NewStyle().Foreground(theme.TextDim).Render("Thinking")
	case room.PhaseRecording:
		if st.Capture == room.CaptureCapturing {
			return theme.OnAir.Render("● REC")
		}
		return theme.Caution.Render("Answering (not recorded)")
	}
	return lipgloss.NewStyle().Foreground(theme.TextDim).Render("Answer finished")
}

func (s *Screen) renderDevices(st room.State) string {
	if !st.HasStream {
		return theme.Failed.Render("Camera and microphone unavailable")
	}
	var labels []string
	playing := false
	if s.preview != nil {
		labels, playing = s.preview.snapshot()
	}
	text := strings.Join(labels, " + ")
	if text == "" {
		text = "Camera ready"
	}
	if playing {
		return lipgloss.NewStyle().Foreground(theme.Text).Render(text) + "  " + theme.Saved.Render("live")
	}
	return lipgloss.NewStyle().Foreground(theme.TextDim).Render(text + "  (preview paused)")
}

func renderCapture(st room.State) string {
	label := fmt.Sprintf("Uploaded %d of %d", st.Uploaded, st.Total)
	switch st.Capture {
	case room.CaptureUploading:
		return theme.Caution.Render("Uploading answer…")
	case room.CaptureUploaded:
		return theme.Saved.Render("Answer saved") + "  " + hintStyle(label)
	case room.CaptureUploadFailed:
		return theme.Failed.Render("Upload failed") + "  " + hintStyle(label)
	case room.CaptureCaptured:
		return lipgloss.NewStyle().Foreground(theme.Text).Render("Answer recorded, ready to upload") + "  " + hintStyle(label)
	}
	return hintStyle(label)
}

func renderNotice(n room.Notice) string {
	switch n.Level {
	case room.LevelError:
		return theme.Failed.Render("✗ " + n.Message)
	case room.LevelWarning:
		return theme.Caution.Render("! " + n.Message)
	}
	return theme.Saved.Render("✓ " + n.Message)
}

func (s *Screen) renderRetry(width int, st room.State) string {
	var b strings.Builder
	b.WriteString("\n\n\n")
	b.WriteString(title(width, fmt.Sprintf("Upload of answer %d failed", st.Index+1)))
	b.WriteString("\n")
	b.WriteString(subtitle(width, "Retry once, or skip and keep going. Skipped answers are not saved."))
	b.WriteString("\n\n")
	b.WriteString(choice(width, theme.Success, "[Y] Retry upload"))
	b.WriteString("\n")
	b.WriteString(choice(width, theme.Primary, "[N] Skip"))
	b.WriteString("\n")
	b.WriteString(choice(width, theme.Primary, "[Esc] Leave room"))
	b.WriteString("\n\n")
	for _, n := range s.shown {
		b.WriteString(center(width, renderNotice(n)))
		b.WriteString("\n")
	}
	return b.String()
}

// renderQuitConfirm renders the leave-room dialog.
func renderQuitConfirm(width int, recording bool) string {
	var b strings.Builder
	b.WriteString("\n\n\n")
	b.WriteString(title(width, "Leave the practice room?"))
	b.WriteString("\n")
	msg := "Answers already uploaded are kept."
	if recording {
		msg = "The answer being recorded will be discarded and the session canceled."
	}
	b.WriteString(subtitle(width, msg))
	b.WriteString("\n\n")
	b.WriteString(choice(width, theme.Error, "[Y] Yes, leave"))
	b.WriteString("\n")
	b.WriteString(choice(width, theme.Primary, "[N] No, keep practicing"))
	return b.String()
}

func renderLoading(width int) string {
	return lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Foreground(theme.TextDim).
		Render("\n\n\n  Opening camera and microphone...")
}

func title(width int, s string) string {
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.Text).Bold(true).Render(s)
}

func subtitle(width int, s string) string {
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).Render(s)
}

func choice(width int, c color.Color, s string) string {
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(c).Render(s)
}

func center(width int, s string) string {
	return lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(s)
}

func hintStyle(s string) string {
	return lipgloss.NewStyle().Foreground(theme.TextDim).Render(s)
}
