package main

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"checkin-backend/scanner"
)

const maxLogLines = 200

type keyMap struct {
	Submit key.Binding
	Clear  key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Submit: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "scan or run command")),
	Clear:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "clear input")),
	Quit:   key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type (
	resultMsg scanner.ScanResult
	reportMsg scanner.DrainReport
	replyMsg  string
	statusMsg string
)

// model is the bubbletea front end of the scan console.
type model struct {
	console *console
	reports <-chan scanner.DrainReport
	input   textinput.Model
	lines   []string
	status  string
	height  int
}

func newModel(c *console, reports <-chan scanner.DrainReport) model {
	input := textinput.New()
	input.Placeholder = "scan a guest code or type /help"
	input.Prompt = "› "
	input.CharLimit = 512
	input.Focus()
	return model{console: c, reports: reports, input: input, height: 24}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		listenForResult(m.console.loop.Results()),
		listenForReport(m.reports),
		refreshStatus(m.console),
	)
}

func listenForResult(ch <-chan scanner.ScanResult) tea.Cmd {
	return func() tea.Msg {
		res, ok := <-ch
		if !ok {
			return nil
		}
		return resultMsg(res)
	}
}

func listenForReport(ch <-chan scanner.DrainReport) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return reportMsg(r)
	}
}

func refreshStatus(c *console) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(c.status(context.Background()))
	}
}

func runCommand(c *console, cmd command) tea.Cmd {
	return func() tea.Msg {
		return replyMsg(c.execute(context.Background(), cmd))
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Clear):
			m.input.Reset()
			return m, nil
		case key.Matches(msg, keys.Submit):
			line := m.input.Value()
			m.input.Reset()
			cmd, err := parseCommand(line)
			if err != nil {
				m.push("✗ " + err.Error())
				return m, nil
			}
			switch cmd.kind {
			case cmdNone:
				return m, nil
			case cmdQuit:
				return m, tea.Quit
			}
			return m, runCommand(m.console, cmd)
		}

	case resultMsg:
		m.push(formatResult(scanner.ScanResult(msg)))
		return m, tea.Batch(listenForResult(m.console.loop.Results()), refreshStatus(m.console))

	case reportMsg:
		m.push(formatReport(scanner.DrainReport(msg)))
		return m, tea.Batch(listenForReport(m.reports), refreshStatus(m.console))

	case replyMsg:
		if msg != "" {
			m.push(string(msg))
		}
		return m, refreshStatus(m.console)

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *model) push(text string) {
	m.lines = append(m.lines, strings.Split(text, "\n")...)
	if over := len(m.lines) - maxLogLines; over > 0 {
		m.lines = m.lines[over:]
	}
}

func (m model) View() string {
	var b strings.Builder

	sess := m.console.sc.Session
	b.WriteString(titleStyle.Render("check-in · "+sess.EventID) + dimStyle.Render("  "+sess.ScannerID))
	b.WriteByte('\n')
	if strings.HasPrefix(m.status, "ONLINE") {
		b.WriteString(onlineStyle.Render(m.status))
	} else {
		b.WriteString(offlineStyle.Render(m.status))
	}
	b.WriteString("\n\n")

	visible := m.height - 6
	if visible < 3 {
		visible = 3
	}
	start := 0
	if len(m.lines) > visible {
		start = len(m.lines) - visible
	}
	for _, line := range m.lines[start:] {
		b.WriteString(styleLine(line))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.input.View())
	b.WriteByte('\n')
	b.WriteString(dimStyle.Render("enter scan · /help commands · ctrl+c quit"))
	return b.String()
}

func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "✓"):
		return okStyle.Render(line)
	case strings.HasPrefix(line, "!"):
		return warnStyle.Render(line)
	case strings.HasPrefix(line, "✗"):
		return errStyle.Render(line)
	default:
		return line
	}
}
