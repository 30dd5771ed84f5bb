// Package ui renders the terminal progress view of a tracing run.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Event reports run progress. Events without a domain carry run-wide
// updates: the current segment or a final error.
type Event struct {
	Domain  string
	Edges   uint64
	Time    uint64
	Segment string
	Err     error
}

// Domain describes one clock domain row of the view.
type Domain struct {
	Name  string
	Total uint64 // edges expected by the end of the run
}

type progressModel struct {
	title   string
	events  <-chan Event
	spinner spinner.Model
	prog    progress.Model
	rows    []domainRow
	index   map[string]int
	segment string
	now     uint64
	width   int
	err     error
	done    bool
}

type domainRow struct {
	name  string
	edges uint64
	total uint64
}

type eventMsg Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders the edge counts
// of each domain as they arrive on events. The model quits when events is
// closed.
func NewProgressModel(title string, domains []Domain, events <-chan Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	rows := make([]domainRow, 0, len(domains))
	index := make(map[string]int, len(domains))
	for i, d := range domains {
		rows = append(rows, domainRow{name: d.Name, total: d.Total})
		index[d.Name] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		rows:    rows,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		cmd := m.applyEvent(Event(msg))
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := fmt.Sprintf("%s @ %d", m.title, m.now)
	if m.segment != "" {
		header = fmt.Sprintf("%s (%s)", header, m.segment)
	}
	switch {
	case m.err != nil:
		header = "failed: " + header
	case m.done:
		header = "done: " + header
	default:
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := m.width - 30
	if nameWidth < 12 {
		nameWidth = 12
	}
	for _, r := range m.rows {
		count := fmt.Sprintf("%10d / %-10d", r.edges, r.total)
		fmt.Fprintf(&b, "  %s %s\n", rowStyle(r).Render(count), truncate(r.name, nameWidth))
	}
	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done && m.err == nil {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev Event) tea.Cmd {
	if ev.Time > m.now {
		m.now = ev.Time
	}
	if ev.Segment != "" {
		m.segment = ev.Segment
	}
	if ev.Err != nil {
		m.err = ev.Err
	}
	if idx, ok := m.index[ev.Domain]; ok {
		m.rows[idx].edges = ev.Edges
	}
	return m.prog.SetPercent(m.fraction())
}

// fraction is the share of expected edges stepped so far.
func (m *progressModel) fraction() float64 {
	var done, total uint64
	for _, r := range m.rows {
		done += min(r.edges, r.total)
		total += r.total
	}
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total)
}

func rowStyle(r domainRow) lipgloss.Style {
	if r.total > 0 && r.edges >= r.total {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
