// Package feedback is the screen shown after the last question: what was
// uploaded and where the feedback will appear.
package feedback

import (
	"fmt"
	"net/url"
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/rehearse/internal/room"
	"github.com/abhisek/rehearse/internal/screen"
	"github.com/abhisek/rehearse/internal/ui/layout"
	"github.com/abhisek/rehearse/internal/ui/theme"
)

// Screen renders a room.Handoff.
type Screen struct {
	handoff room.Handoff
	baseURL string
	done    key.Binding
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)

// New creates the feedback screen. baseURL is the practice API base URL.
func New(h room.Handoff, baseURL string) *Screen {
	return &Screen{
		handoff: h,
		baseURL: strings.TrimRight(baseURL, "/"),
		done:    key.NewBinding(key.WithKeys("enter", "q", "esc"), key.WithHelp("Enter", "Done")),
	}
}

func (s *Screen) Init() tea.Cmd { return nil }

func (s *Screen) Title() string { return "Feedback" }

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && key.Matches(msg, s.done) {
		return s, tea.Quit
	}
	return s, nil
}

// URL returns where feedback for the session is published, or "" without a
// session.
func (s *Screen) URL() string {
	if s.handoff.SessionID == "" {
		return ""
	}
	return s.baseURL + "/sessions/" + url.PathEscape(s.handoff.SessionID) + "/feedback"
}

func (s *Screen) View(width, height int) string {
	var b strings.Builder

	saved := len(s.handoff.AttemptIDs) - len(s.handoff.Missing())
	b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.Text).Bold(true).
		Render("Practice complete"))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
		Render(fmt.Sprintf("%d of %d answers saved", saved, len(s.handoff.AttemptIDs))))
	b.WriteString("\n\n")

	var rows []string
	for i, id := range s.handoff.AttemptIDs {
		label := lipgloss.NewStyle().Foreground(theme.Text).Render(fmt.Sprintf("Answer %d  ", i+1))
		if id == "" {
			rows = append(rows, label+theme.Failed.Render("not uploaded"))
			continue
		}
		rows = append(rows, label+theme.Saved.Render(id))
	}
	card := theme.Card.Render(strings.Join(rows, "\n"))
	b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Render(card))
	b.WriteString("\n\n")

	if u := s.URL(); u != "" {
		b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.TextDim).
			Render("Session " + s.handoff.SessionID))
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.Secondary).
			Render("Feedback will appear at " + u))
	} else {
		b.WriteString(theme.Caution.Width(width).Align(lipgloss.Center).
			Render("No session: answers were kept local only."))
	}

	return b.String()
}

func (s *Screen) KeyHints() []layout.KeyHint {
	h := s.done.Help()
	return []layout.KeyHint{{Key: h.Key, Description: h.Desc}}
}
