package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer shows a spinner and progress bar with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	model   *ingestModel
	program *tea.Program
	started bool
	done    chan struct{}
}

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	model := newIngestModel()
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}
	return &TUIRenderer{cfg: cfg, model: model, done: make(chan struct{})}, nil
}

func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func (r *TUIRenderer) UpdateProgress(event ProgressEvent) { r.send(progressMsg(event)) }
func (r *TUIRenderer) AddError(event ErrorEvent)          { r.send(errorMsg(event)) }
func (r *TUIRenderer) Complete(stats CompletionStats)     { r.send(completeMsg(stats)) }

// Stop waits briefly for the program to render its final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	select {
	case <-r.done:
	case <-time.After(500 * time.Millisecond):
		p.Quit()
		select {
		case <-r.done:
		case <-time.After(2 * time.Second):
		}
	}
	return nil
}

type (
	progressMsg ProgressEvent
	errorMsg    ErrorEvent
	completeMsg CompletionStats
)

type ingestModel struct {
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
	current  ProgressEvent
	errors   []ErrorEvent
	stats    CompletionStats
	complete bool
	quitting bool
}

func newIngestModel() *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &ingestModel{
		spinner: s,
		bar:     progress.New(progress.WithSolidFill(ColorAccent), progress.WithWidth(40)),
		styles:  DefaultStyles(),
	}
}

func (m *ingestModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-30, 20), 80)
	case progressMsg:
		m.current = ProgressEvent(msg)
	case errorMsg:
		m.errors = append(m.errors, ErrorEvent(msg))
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ingestModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}

	var sb strings.Builder
	for _, e := range m.errors {
		sb.WriteString(m.styles.Error.Render(fmt.Sprintf("✗ %s: %v", e.File, e.Err)))
		sb.WriteString("\n")
	}

	if m.complete {
		line := fmt.Sprintf("✓ %d of %d files added in %s", m.stats.Added, m.stats.Files,
			m.stats.Duration.Round(100*time.Millisecond))
		if m.stats.Failed > 0 {
			sb.WriteString(m.styles.Warning.Render(line + fmt.Sprintf(" (%d failed)", m.stats.Failed)))
		} else {
			sb.WriteString(m.styles.Success.Render(line))
		}
		sb.WriteString("\n")
		return sb.String()
	}

	pct := 0.0
	if m.current.Total > 0 {
		pct = float64(m.current.Current-1) / float64(m.current.Total)
	}
	fmt.Fprintf(&sb, "%s %s %s\n  %s\n",
		m.spinner.View(),
		m.styles.Header.Render("Adding"),
		m.styles.Label.Render(fmt.Sprintf("%d/%d", m.current.Current, m.current.Total)),
		m.bar.ViewAs(max(pct, 0)))
	if m.current.File != "" {
		sb.WriteString("  " + m.styles.Dim.Render(m.current.File) + "\n")
	}
	return sb.String()
}
