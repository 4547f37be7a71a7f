// Interactive chat interface using bubbletea.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"storynerd/internal/agent"
	"storynerd/internal/workspace"
)

type chatStyles struct {
	Title   lipgloss.Style
	Prompt  lipgloss.Style
	User    lipgloss.Style
	Agent   lipgloss.Style
	Notice  lipgloss.Style
	Status  lipgloss.Style
	ErrText lipgloss.Style
}

func defaultChatStyles() chatStyles {
	return chatStyles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13")),
		Prompt:  lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		User:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		Agent:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		Notice:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true),
		Status:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		ErrText: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

type chatMessage struct {
	role    string // "user", "agent" or "notice"
	content string
	time    time.Time
}

// Messages for tea updates
type (
	turnDoneMsg struct {
		result *agent.TurnResult
		err    error
	}
	docChangedMsg workspace.DocEvent
)

// chatModel is the main model for the interactive chat interface.
type chatModel struct {
	textinput textinput.Model
	viewport  viewport.Model
	spinner   spinner.Model
	styles    chatStyles
	renderer  *glamour.TermRenderer

	history   []chatMessage
	isLoading bool
	width     int
	height    int
	ready     bool

	app     *app
	watcher *workspace.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
}

func initChat(a *app) (chatModel, error) {
	styles := defaultChatStyles()

	ti := textinput.New()
	ti.Placeholder = "Tell the novelist what to write... (Enter to send, Ctrl+C to exit)"
	ti.Focus()
	ti.Prompt = "│ "
	ti.CharLimit = 8192
	ti.Width = 80
	ti.PromptStyle = styles.Prompt

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Prompt

	vp := viewport.New(80, 20)
	vp.SetContent("")

	renderer, _ := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)

	ctx, cancel := context.WithCancel(context.Background())

	watcher, err := workspace.NewWatcher(a.ws)
	if err == nil {
		if startErr := watcher.Start(ctx); startErr != nil {
			watcher = nil
		}
	} else {
		watcher = nil
	}

	return chatModel{
		textinput: ti,
		viewport:  vp,
		spinner:   sp,
		styles:    styles,
		renderer:  renderer,
		history:   []chatMessage{},
		app:       a,
		watcher:   watcher,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (m chatModel) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.watcher != nil {
		cmds = append(cmds, m.waitForDocEvent())
	}
	return tea.Batch(cmds...)
}

// waitForDocEvent blocks on the watcher channel as a tea command.
func (m chatModel) waitForDocEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.watcher.Events()
		if !ok {
			return nil
		}
		return docChangedMsg(ev)
	}
}

func (m chatModel) runTurn(input string) tea.Cmd {
	return func() tea.Msg {
		result, err := m.app.loop.RunTurn(m.ctx, input)
		return turnDoneMsg{result: result, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancel()
			if m.watcher != nil {
				_ = m.watcher.Close()
			}
			return m, tea.Quit

		case tea.KeyEnter:
			if m.isLoading {
				return m, nil
			}
			input := strings.TrimSpace(m.textinput.Value())
			if input == "" {
				return m, nil
			}
			m.textinput.Reset()
			m.history = append(m.history, chatMessage{role: "user", content: input, time: time.Now()})
			m.isLoading = true
			m.refreshViewport()
			return m, tea.Batch(m.runTurn(input), m.spinner.Tick)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := 3
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - headerHeight - footerHeight
		m.textinput.Width = msg.Width - 4
		m.ready = true
		m.refreshViewport()

	case turnDoneMsg:
		m.isLoading = false
		m.history = append(m.history, m.renderTurn(msg))
		m.refreshViewport()
		m.viewport.GotoBottom()

	case docChangedMsg:
		m.history = append(m.history, chatMessage{
			role:    "notice",
			content: fmt.Sprintf("%s changed on disk; the next turn will read the new content", msg.Name),
			time:    msg.Time,
		})
		m.refreshViewport()
		return m, m.waitForDocEvent()

	case spinner.TickMsg:
		if m.isLoading {
			m.spinner, spCmd = m.spinner.Update(msg)
			return m, spCmd
		}
	}

	m.textinput, tiCmd = m.textinput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(tiCmd, vpCmd)
}

// renderTurn converts a finished turn into a chat history entry.
func (m chatModel) renderTurn(msg turnDoneMsg) chatMessage {
	now := time.Now()
	if msg.result == nil {
		return chatMessage{role: "agent", content: fmt.Sprintf("error: %v", msg.err), time: now}
	}
	switch msg.result.State {
	case agent.StateDone:
		content := msg.result.Text
		if len(msg.result.FinalizedChapters) > 0 {
			content += fmt.Sprintf("\n\n*(finalized chapters: %v)*", msg.result.FinalizedChapters)
		}
		return chatMessage{role: "agent", content: content, time: now}
	default:
		reason := string(msg.result.FailReason)
		detail := ""
		if msg.err != nil {
			detail = ": " + msg.err.Error()
		}
		return chatMessage{
			role:    "agent",
			content: fmt.Sprintf("turn failed (%s)%s", reason, detail),
			time:    now,
		}
	}
}

func (m *chatModel) refreshViewport() {
	var b strings.Builder
	for _, msg := range m.history {
		switch msg.role {
		case "user":
			b.WriteString(m.styles.User.Render("You") + "\n")
			b.WriteString(msg.content + "\n\n")
		case "notice":
			b.WriteString(m.styles.Notice.Render("• "+msg.content) + "\n\n")
		default:
			b.WriteString(m.styles.Agent.Render("storyNERD") + "\n")
			rendered := msg.content
			if m.renderer != nil {
				if out, err := m.renderer.Render(msg.content); err == nil {
					rendered = out
				}
			}
			b.WriteString(rendered + "\n")
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "loading..."
	}

	header := m.styles.Title.Render(" storyNERD ") + m.styles.Status.Render(" "+m.app.client.Model())

	status := ""
	if m.isLoading {
		status = m.spinner.View() + " writing..."
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, m.viewport.View(), status, m.textinput.View())
}

// runChat builds the session and hands the terminal to bubbletea.
func runChat() error {
	app, err := buildApp(context.Background())
	if err != nil {
		return err
	}

	model, err := initChat(app)
	if err != nil {
		return err
	}

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
