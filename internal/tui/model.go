package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ragchat/internal/conversation"
	"ragchat/internal/domain"
	"ragchat/internal/log"
)

// EngineSource returns the answer engine, creating it on first use.
type EngineSource func(ctx context.Context) (domain.Answerer, error)

// Options control when the engine is created.
type Options struct {
	Title string
	// Lazy shows the chat immediately and creates the engine on the first question.
	Lazy bool
}

type phase int

const (
	phaseBooting phase = iota
	phaseChat
	phaseFatal
)

type bootMsg struct {
	answerer domain.Answerer
	err      error
}

type answerMsg struct {
	answerer domain.Answerer
	text     string
	err      error
}

// Model is the Bubble Tea model for the chat view.
type Model struct {
	source   EngineSource
	answerer domain.Answerer
	opts     Options
	conv     *conversation.Conversation

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	phase phase
	fatal error
	ready bool
	width int
}

// New creates a new chat model.
func New(source EngineSource, opts Options) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type your message..."
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	if opts.Title == "" {
		opts.Title = "RAG Chatbot"
	}
	m := Model{
		source:   source,
		opts:     opts,
		conv:     conversation.New(),
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		phase:    phaseBooting,
	}
	if opts.Lazy {
		m.phase = phaseChat
	}
	return m
}

// Init starts the cursor blink and spinner and, unless lazy, the bootstrap.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick}
	if m.phase == phaseBooting {
		cmds = append(cmds, m.bootstrap())
	}
	return tea.Batch(cmds...)
}

// Messages returns the conversation log in display order.
func (m Model) Messages() []domain.Message { return m.conv.Messages() }

// Fatal returns the bootstrap error that blocked the chat, if any.
func (m Model) Fatal() error { return m.fatal }

func (m Model) bootstrap() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		a, err := source(context.Background())
		return bootMsg{answerer: a, err: err}
	}
}

func (m Model) ask(question string, history []domain.Message) tea.Cmd {
	answerer, source := m.answerer, m.source
	return func() tea.Msg {
		ctx := context.Background()
		if answerer == nil {
			a, err := source(ctx)
			if err != nil {
				return answerMsg{err: &domain.UpstreamError{Stage: domain.StageBootstrap, Err: err}}
			}
			answerer = a
		}
		text, err := answerer.AnswerWithHistory(ctx, question, history)
		return answerMsg{answerer: answerer, text: text, err: err}
	}
}

// Update handles key, window and engine events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		tfw, tfh := transcriptBoxStyle.GetFrameSize()
		_, ifh := inputBoxStyle.GetFrameSize()
		reserved := 3 + tfh + ifh // title, input line, status
		m.viewport.Width = max(20, msg.Width-tfw)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-8)
		m.refresh()
		return m, nil

	case bootMsg:
		if msg.err != nil {
			log.Error("[tui] bootstrap failed", msg.err)
			m.phase = phaseFatal
			m.fatal = msg.err
			m.input.Blur()
			return m, nil
		}
		m.answerer = msg.answerer
		m.phase = phaseChat
		m.refresh()
		return m, nil

	case answerMsg:
		if msg.answerer != nil {
			m.answerer = msg.answerer
		}
		if msg.err != nil {
			log.Error("[tui] answer failed", msg.err)
			m.conv.Reject(msg.err)
		} else {
			m.conv.Resolve(msg.text)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if m.phase == phaseFatal {
			if msg.String() == "q" {
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "enter":
			if m.phase != phaseChat {
				return m, nil
			}
			history := m.conv.History()
			q, ok := m.conv.Submit(m.input.Value())
			if !ok {
				return m, nil
			}
			m.input.Reset()
			m.refresh()
			return m, m.ask(q, history)
		case "ctrl+l":
			if m.conv.Reset() {
				m.refresh()
			}
			return m, nil
		case "pgup":
			m.viewport.LineUp(max(1, m.viewport.Height-1))
			return m, nil
		case "pgdown":
			m.viewport.LineDown(max(1, m.viewport.Height-1))
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refresh re-renders the transcript and scrolls to the newest message.
func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the current phase.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	switch m.phase {
	case phaseFatal:
		return m.renderFatal()
	case phaseBooting:
		return titleStyle.Render(m.opts.Title) + "\n\n" + m.spinner.View() + " Connecting to the answer engine..."
	}
	title := titleStyle.Render(m.opts.Title)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	return title + "\n" + transcript + "\n" + input + "\n" + m.renderStatus()
}

func (m Model) renderStatus() string {
	if m.conv.State() == conversation.AwaitingResponse {
		return statusStyle.Render(m.spinner.View() + " Thinking...")
	}
	return helpStyle.Render("enter send • pgup/pgdown scroll • ctrl+l clear • esc quit")
}

func (m Model) renderTranscript() string {
	msgs := m.conv.Messages()
	if len(msgs) == 0 {
		return dimStyle.Render("Ask a question to get started.")
	}
	width := max(10, m.viewport.Width-2)
	body := lipgloss.NewStyle().Width(width)
	var sb strings.Builder
	for i, msg := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		if msg.Sender == domain.SenderUser {
			sb.WriteString(userRoleStyle.Render("You"))
		} else {
			sb.WriteString(assistantRoleStyle.Render("Assistant"))
		}
		sb.WriteString("\n")
		sb.WriteString(body.Render(msg.Text))
	}
	return sb.String()
}

func (m Model) renderFatal() string {
	var hint string
	var cfgErr *domain.ConfigurationError
	var connErr *domain.ConnectionError
	switch {
	case errors.As(m.fatal, &cfgErr):
		hint = "Set the missing values in the environment or a .env file, then restart."
	case errors.As(m.fatal, &connErr):
		hint = "Check the vector index credentials, environment and name, then restart."
	default:
		hint = "See the log file for details."
	}
	width := max(20, min(m.width-6, 80))
	body := fatalTitleStyle.Render("Unable to start the chat") + "\n\n" +
		lipgloss.NewStyle().Width(width).Render(m.fatal.Error()) + "\n\n" +
		dimStyle.Width(width).Render(hint) + "\n\n" +
		helpStyle.Render("press q to quit")
	return fatalBoxStyle.Render(body)
}
