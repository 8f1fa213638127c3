package ui

import (
	"fmt"
	"log"

	"github.com/aeolun/kindred/pkg/metrics"
	"github.com/aeolun/kindred/pkg/store"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Frame is one rendered screen plus the key bindings that belong to it
type Frame struct {
	Page     Page
	Content  string
	Bindings []Binding
	// Err is set when the page failed to render and Content is the placeholder
	Err error
}

// BuildFunc turns a snapshot into a frame. It may panic; the scheduler
// contains the failure.
type BuildFunc func(snap store.Snapshot) Frame

// Scheduler redraws the current frame after every Store mutation
type Scheduler struct {
	source  func() store.Snapshot
	build   BuildFunc
	reload  func() tea.Cmd
	quit    func() tea.Cmd
	logger  *log.Logger
	metrics *metrics.Metrics

	frame Frame
}

// NewScheduler creates a scheduler reading snapshots from source. reload is
// offered on the error placeholder.
func NewScheduler(source func() store.Snapshot, build BuildFunc, reload func() tea.Cmd, logger *log.Logger) *Scheduler {
	return &Scheduler{
		source: source,
		build:  build,
		reload: reload,
		quit:   func() tea.Cmd { return tea.Quit },
		logger: logger,
	}
}

// SetMetrics enables render counters
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Render rebuilds the frame from a fresh snapshot
func (s *Scheduler) Render() {
	snap := s.source()
	frame, err := s.safeBuild(snap)
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("render of %s failed: %v", Route(snap), err)
		}
		s.metrics.RecordRenderFailure()
		s.frame = s.placeholder(Route(snap), err)
		return
	}
	s.metrics.RecordRender()
	s.frame = frame
}

// Frame returns the last rendered frame
func (s *Scheduler) Frame() Frame {
	return s.frame
}

func (s *Scheduler) safeBuild(snap store.Snapshot) (frame Frame, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.build(snap), nil
}

var placeholderStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(lipgloss.Color("196")).
	Padding(1, 2)

func (s *Scheduler) placeholder(page Page, err error) Frame {
	bindings := []Binding{
		bind(ScopeGlobal, "reload", s.reload, "ctrl+r"),
		bind(ScopeGlobal, "quit", s.quit, "ctrl+c"),
	}
	body := fmt.Sprintf("Something went wrong while drawing %s.\n\n%v\n\n%s",
		page, err, footerHelp(bindings, ScopeGlobal))

	return Frame{
		Page:     page,
		Content:  placeholderStyle.Render(body),
		Bindings: bindings,
		Err:      err,
	}
}
