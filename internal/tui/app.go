// Package tui provides the terminal user interface for flume.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/rkoval/flume/internal/executor"
	"github.com/rkoval/flume/pkg/models"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("33"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	skipStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	footerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("246"))
)

// EventMsg wraps an executor event for the TUI.
type EventMsg struct {
	Event executor.Event
}

// DoneMsg signals that the executor run finished and its event channel closed.
type DoneMsg struct{}

// stepRow is the display state of one workflow step.
type stepRow struct {
	id       string
	role     models.Role
	status   models.StepStatus
	err      error
	duration time.Duration
}

// LogEntry represents a log message displayed below the step list.
type LogEntry struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// App is the main bubbletea model for the flume TUI.
type App struct {
	// description is the task being executed.
	description string
	// rows holds step display state in creation order.
	rows []*stepRow
	// logs is the list of log entries.
	logs []LogEntry
	// usage is the aggregate usage reported so far.
	usage models.Usage
	// spinner animates running steps.
	spinner spinner.Model
	// width is the terminal width.
	width int
	// quitting indicates the app is shutting down.
	quitting bool
	// done indicates the workflow has finished.
	done bool
	// runErr holds the workflow failure, if any.
	runErr error
}

// New creates a new App instance for the given task description.
func New(description string) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &App{
		description: description,
		spinner:     sp,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return a.spinner.Tick
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.handleEvent(msg.Event)

	case DoneMsg:
		a.done = true
	}

	return a, nil
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return ""
	}

	view := titleStyle.Render("flume: "+a.description) + "\n\n"
	for _, row := range a.rows {
		view += a.renderRow(row) + "\n"
	}

	if len(a.logs) > 0 {
		view += "\n"
		start := 0
		if len(a.logs) > 10 {
			start = len(a.logs) - 10
		}
		for _, entry := range a.logs[start:] {
			ts := entry.Timestamp.Format("15:04:05")
			view += footerStyle.Render(fmt.Sprintf("  %s [%s] %s", ts, entry.Level, entry.Message)) + "\n"
		}
	}

	view += "\n" + a.viewFooter()
	return view
}

// renderRow renders one step line with a status marker.
func (a *App) renderRow(row *stepRow) string {
	label := fmt.Sprintf("%-12s %s", row.role, shortID(row.id))
	switch row.status {
	case models.StepStatusRunning:
		return fmt.Sprintf("  %s %s", a.spinner.View(), runningStyle.Render(label))
	case models.StepStatusCompleted:
		return doneStyle.Render(fmt.Sprintf("  ✓ %s (%s)", label, row.duration.Round(time.Second)))
	case models.StepStatusFailed:
		return failStyle.Render(fmt.Sprintf("  ✗ %s: %v", label, row.err))
	case models.StepStatusSkipped:
		return skipStyle.Render(fmt.Sprintf("  - %s (skipped)", label))
	default:
		return pendingStyle.Render(fmt.Sprintf("  · %s", label))
	}
}

// viewFooter renders token usage and help text.
func (a *App) viewFooter() string {
	stats := fmt.Sprintf("tokens: %d  cost: $%.4f", a.usage.TotalTokens(), a.usage.Cost)
	if a.done {
		if a.runErr != nil {
			return failStyle.Render("✗ workflow failed") + "  " + footerStyle.Render(stats+" | press q to exit")
		}
		return doneStyle.Render("✓ workflow complete") + "  " + footerStyle.Render(stats+" | press q to exit")
	}
	return footerStyle.Render(stats + " | press q to abort")
}

// handleEvent applies an executor event to the display state.
func (a *App) handleEvent(ev executor.Event) {
	switch ev.Type {
	case executor.EventStepCreated:
		a.rows = append(a.rows, &stepRow{id: ev.StepID, role: ev.Role, status: models.StepStatusPending})

	case executor.EventStepStarted:
		if row := a.findRow(ev.StepID); row != nil {
			row.status = models.StepStatusRunning
		}

	case executor.EventStepCompleted:
		if row := a.findRow(ev.StepID); row != nil {
			row.status = models.StepStatusCompleted
			row.duration = ev.Duration
		}
		a.usage.Add(ev.Usage)

	case executor.EventStepFailed:
		if row := a.findRow(ev.StepID); row != nil {
			row.status = models.StepStatusFailed
			row.err = ev.Error
			row.duration = ev.Duration
		}
		a.usage.Add(ev.Usage)
		a.logs = append(a.logs, LogEntry{
			Timestamp: ev.Timestamp,
			Level:     "ERROR",
			Message:   fmt.Sprintf("step %s failed: %v", shortID(ev.StepID), ev.Error),
		})

	case executor.EventStepSkipped:
		if row := a.findRow(ev.StepID); row != nil {
			row.status = models.StepStatusSkipped
		}

	case executor.EventWorkflowDone:
		a.done = true
		a.runErr = ev.Error
		a.usage = ev.Usage
	}
}

// findRow finds a step row by ID.
func (a *App) findRow(id string) *stepRow {
	for _, row := range a.rows {
		if row.id == id {
			return row
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Run displays the TUI while pumping executor events into it. It returns
// when the user quits after the workflow finishes.
func Run(description string, events <-chan executor.Event) error {
	app := New(description)
	p := tea.NewProgram(app, tea.WithAltScreen())

	go func() {
		for ev := range events {
			p.Send(EventMsg{Event: ev})
		}
		p.Send(DoneMsg{})
	}()

	_, err := p.Run()
	return err
}
