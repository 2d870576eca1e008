package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up       key.Binding
	down     key.Binding
	enter    key.Binding
	back     key.Binding
	upload   key.Binding
	refresh  key.Binding
	analyze  key.Binding
	generate key.Binding
	play     key.Binding
	pitch    key.Binding
	mode     key.Binding
	quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		enter:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		upload:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "upload")),
		refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		analyze:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "analyze")),
		generate: key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "generate")),
		play:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "play")),
		pitch:    key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "pitch")),
		mode:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "mode")),
		quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.enter, k.back},
		{k.upload, k.refresh, k.analyze, k.generate, k.play},
		{k.mode, k.pitch, k.quit},
	}
}
