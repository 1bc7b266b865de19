package practice

import "charm.land/bubbles/v2/key"

type keyMap struct {
	Start   key.Binding
	End     key.Binding
	Next    key.Binding
	Primary key.Binding
	Yes     key.Binding
	No      key.Binding
	Quit    key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Start:   key.NewBinding(key.WithKeys("space", "s"), key.WithHelp("Space", "Start answering")),
		End:     key.NewBinding(key.WithKeys("e"), key.WithHelp("E", "End answer")),
		Next:    key.NewBinding(key.WithKeys("n"), key.WithHelp("N", "Next question")),
		Primary: key.NewBinding(key.WithKeys("enter"), key.WithHelp("Enter", "Continue")),
		Yes:     key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("Y", "Yes")),
		No:      key.NewBinding(key.WithKeys("n", "N", "esc"), key.WithHelp("N", "No")),
		Quit:    key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("Esc", "Leave room")),
	}
}
