package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1F47E/imagery-dater/pkg/batch"
)

const maxRecentFailures = 5

var (
	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF79C6")).
			Background(lipgloss.Color("#282A36")).
			Padding(0, 1).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))

	statStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFB86C"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#BD93F9")).
			Padding(0, 2).
			MarginTop(1)
)

type progressMsg batch.Progress
type doneMsg batch.Outcome

type model struct {
	title    string
	total    int
	spinner  spinner.Model
	progress progress.Model

	last     batch.Progress
	failures []string
	outcome  *batch.Outcome
}

func newModel(title string, total int) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return model{
		title:    title,
		total:    total,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = msg.Width - 10
		if m.progress.Width > 80 {
			m.progress.Width = 80
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case progressMsg:
		p := batch.Progress(msg)
		m.last = p
		if p.Err != nil {
			m.failures = append(m.failures, fmt.Sprintf("%s: %v", p.Query.Location, p.Err))
			if len(m.failures) > maxRecentFailures {
				m.failures = m.failures[1:]
			}
		}
		return m, m.progress.SetPercent(p.Fraction())

	case doneMsg:
		o := batch.Outcome(msg)
		m.outcome = &o
		return m, tea.Quit
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	if m.outcome != nil {
		line := successStyle.Render("✓ " + summary(*m.outcome))
		if m.outcome.Partial() {
			line = errorStyle.Render("✗ " + summary(*m.outcome))
		}
		b.WriteString(boxStyle.Render(line))
		b.WriteString("\n")
		return b.String()
	}

	indicator := m.spinner.View()
	if m.total > 0 && m.last.Done() {
		indicator = successStyle.Render("✓")
	}
	fmt.Fprintf(&b, "%s %s\n", indicator, m.progress.View())
	fmt.Fprintf(&b, "  %s %s   %s %s\n",
		dimStyle.Render("done:"), statStyle.Render(fmt.Sprintf("%d/%d", m.last.Completed, m.total)),
		dimStyle.Render("failed:"), statStyle.Render(fmt.Sprint(m.last.Failed)))

	for _, f := range m.failures {
		b.WriteString("  " + errorStyle.Render(f) + "\n")
	}
	return b.String()
}
