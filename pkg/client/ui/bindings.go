package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Scope decides when a binding is live
type Scope int

const (
	// ScopeGlobal bindings match regardless of focus
	ScopeGlobal Scope = iota
	// ScopeList bindings match while no text field has focus
	ScopeList
	// ScopeInput bindings match while a text field has focus
	ScopeInput
)

func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeList:
		return "list"
	case ScopeInput:
		return "input"
	default:
		return "unknown"
	}
}

// Binding ties a key to a handler for one render pass. Frames carry a fresh
// set of bindings every time they are built, so handlers may close over the
// snapshot they were rendered from.
type Binding struct {
	Scope   Scope
	Key     key.Binding
	Handler func() tea.Cmd
}

// bind builds a Binding. The first key doubles as the help label.
func bind(scope Scope, desc string, handler func() tea.Cmd, keys ...string) Binding {
	return Binding{
		Scope:   scope,
		Key:     key.NewBinding(key.WithKeys(keys...), key.WithHelp(keys[0], desc)),
		Handler: handler,
	}
}

// Match returns the first binding that accepts msg in the active scope.
// Global bindings are always candidates.
func Match(bindings []Binding, msg tea.KeyMsg, active Scope) (Binding, bool) {
	for _, b := range bindings {
		if b.Scope != ScopeGlobal && b.Scope != active {
			continue
		}
		if key.Matches(msg, b.Key) {
			return b, true
		}
	}
	return Binding{}, false
}

var helpKeyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)

// footerHelp renders the help line for the bindings live in scope
func footerHelp(bindings []Binding, active Scope) string {
	var parts []string
	for _, b := range bindings {
		if b.Scope != ScopeGlobal && b.Scope != active {
			continue
		}
		help := b.Key.Help()
		if help.Desc == "" {
			continue
		}
		parts = append(parts, helpKeyStyle.Render(help.Key)+" "+help.Desc)
	}
	return strings.Join(parts, "  ")
}
