// Package tui is the full-screen console for aurras interact --tui.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/aurras/internal/assistant"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)

	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D9CFF")).Bold(true)
	botStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00D787")).Bold(true)
	metaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Responder answers prompts.
type Responder interface {
	Respond(ctx context.Context, source, prompt string) assistant.Reply
}

type replyMsg assistant.Reply

// Chat is the bubbletea model of the conversation screen.
type Chat struct {
	ctx       context.Context
	responder Responder

	input    textinput.Model
	viewport viewport.Model
	lines    []string
	pending  bool
	turns    int

	width  int
	height int
}

// NewChat builds the conversation model.
func NewChat(ctx context.Context, r Responder) Chat {
	in := textinput.New()
	in.Prompt = assistant.Prompt
	in.Placeholder = "ask something, or type exit"
	in.CharLimit = 1024
	in.Focus()

	return Chat{
		ctx:       ctx,
		responder: r,
		input:     in,
		viewport:  viewport.New(80, 10),
	}
}

// Run shows the chat until the user quits or ctx is cancelled.
func Run(ctx context.Context, r Responder) error {
	_, err := tea.NewProgram(NewChat(ctx, r), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Chat) Init() tea.Cmd {
	return textinput.Blink
}

// --- Update ---

func (m Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = max(m.width-8, 20)
		m.viewport.Height = max(m.height-10, 3)
		m.input.Width = max(m.width-10, 10)
		m.refresh()

	case replyMsg:
		m.pending = false
		m.turns++
		m.appendReply(assistant.Reply(msg))
		m.refresh()
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Chat) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	if assistant.IsExit(line) {
		return m, tea.Quit
	}
	prompt := strings.TrimSpace(line)
	if prompt == "" || m.pending {
		return m, nil
	}

	m.input.Reset()
	m.pending = true
	m.lines = append(m.lines, userStyle.Render("you")+"  "+prompt)
	m.refresh()

	ctx, r := m.ctx, m.responder
	return m, func() tea.Msg {
		return replyMsg(r.Respond(ctx, assistant.SourceTUI, prompt))
	}
}

func (m *Chat) appendReply(r assistant.Reply) {
	m.lines = append(m.lines, botStyle.Render("aurras")+"  "+r.Envelope.Response)

	var meta string
	switch {
	case r.Result.OK():
		meta = fmt.Sprintf("%s → %s (%s)", r.Classification.Intent, r.Result.Plugin, r.Duration.Round(1e6))
	case r.Classification.Intent != "":
		meta = failStyle.Render(fmt.Sprintf("%s → %s", r.Classification.Intent, r.Result.Kind))
	default:
		meta = failStyle.Render(string(r.Result.Kind))
	}
	m.lines = append(m.lines, metaStyle.Render("        "+meta), "")
}

func (m *Chat) refresh() {
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}

// Transcript returns the conversation so far without styling applied to the
// prompt prefix. Intended for tests and for dumping the session on exit.
func (m Chat) Transcript() []string {
	return append([]string(nil), m.lines...)
}

// --- View ---

func (m Chat) View() string {
	status := "ready"
	if m.pending {
		status = "thinking…"
	}
	header := titleStyle.Render("aurras") + metaStyle.Render(fmt.Sprintf("  %s · %d turns", status, m.turns))

	body := borderStyle.Render(m.viewport.View())
	help := helpStyle.Render(" [enter] send • [esc/ctrl+c] quit • type exit to leave")

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		m.input.View(),
		help,
	))
}
