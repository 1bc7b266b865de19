package app

import (
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/rehearse/internal/screen"
	"github.com/abhisek/rehearse/internal/ui/layout"
)

type stubScreen struct {
	keys []string
}

func (s *stubScreen) Init() tea.Cmd { return nil }
func (s *stubScreen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	if k, ok := msg.(tea.KeyMsg); ok {
		s.keys = append(s.keys, k.String())
	}
	return s, nil
}
func (s *stubScreen) View(int, int) string { return "stub body" }
func (s *stubScreen) Title() string        { return "Stub" }
func (s *stubScreen) Status() string       { return "Q 1/3" }
func (s *stubScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{{Key: "Space", Description: "Start answering"}}
}

func TestAppModel_CtrlCQuits(t *testing.T) {
	m := NewAppModel(&stubScreen{})
	_, cmd := m.Update(tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl})
	if cmd == nil {
		t.Fatal("expected a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestAppModel_EscReachesScreen(t *testing.T) {
	s := &stubScreen{}
	m := NewAppModel(s)
	m.Update(tea.KeyPressMsg{Code: tea.KeyEscape})
	if len(s.keys) != 1 || s.keys[0] != "esc" {
		t.Errorf("screen keys = %v, want [esc]", s.keys)
	}
}

func TestAppModel_View(t *testing.T) {
	var model tea.Model = NewAppModel(&stubScreen{})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	view := model.(AppModel).frame()
	for _, want := range []string{"Rehearse", "Stub", "Q 1/3", "stub body", "Start answering", "Ctrl+C"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestAppModel_NoSizeYet(t *testing.T) {
	m := NewAppModel(&stubScreen{})
	if got := m.frame(); got != "" {
		t.Errorf("frame before WindowSizeMsg = %q, want empty", got)
	}
}

func TestAppModel_TooSmall(t *testing.T) {
	var model tea.Model = NewAppModel(&stubScreen{})
	model, _ = model.Update(tea.WindowSizeMsg{Width: 40, Height: 10})
	if !strings.Contains(model.(AppModel).frame(), "Terminal too small") {
		t.Error("expected the min size message")
	}
}
