package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings for the ports view.
type KeyMap struct {
	Up          key.Binding
	Down        key.Binding
	Preview     key.Binding
	Open        key.Binding
	MakePublic  key.Binding
	MakePrivate key.Binding
	Copy        key.Binding
	Dismiss     key.Binding
	Help        key.Binding
	Quit        key.Binding
}

// DefaultKeyMap returns a KeyMap with default bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("↓/j", "down"),
		),
		Preview: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "preview"),
		),
		Open: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open browser"),
		),
		MakePublic: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "make public"),
		),
		MakePrivate: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "make private"),
		),
		Copy: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy URL"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "dismiss prompt"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q/ctrl+c", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Preview, k.Open, k.MakePublic, k.MakePrivate, k.Copy, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.Preview, k.Open, k.Copy},
		{k.MakePublic, k.MakePrivate},
		{k.Dismiss, k.Help, k.Quit},
	}
}
