package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"ragflow/internal/llm"
	"ragflow/internal/rag"
	"ragflow/internal/retriever"
	"ragflow/internal/store"
)

// maxHistory bounds the conversation replayed to the generator.
const maxHistory = 20

type chatState int

const (
	chatIdle chatState = iota
	chatAnswering
)

type chatModel struct {
	viewport    viewport.Model
	input       textinput.Model
	spinner     spinner.Model
	renderer    *glamour.TermRenderer
	messages    []chatMessage
	history     []llm.Message
	config      Config
	state       chatState
	width       int
	height      int
	initialized bool
}

type chatMessage struct {
	role    string
	content string
}

// answerMsg is sent when a RAG query completes.
type answerMsg struct {
	answer *rag.Answer
	err    error
}

func newChatModel(cfg Config) chatModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle

	ti := textinput.New()
	ti.Placeholder = "Ask a question about your documents..."
	ti.CharLimit = 2000
	ti.Focus()

	return chatModel{
		spinner: sp,
		input:   ti,
		config:  cfg,
		state:   chatIdle,
	}
}

func (m *chatModel) initViewport(width, height int) {
	m.width = width
	m.height = height

	// Layout: viewport + status bar (1 line) + input (1 line) + borders/gaps (1 line).
	vpHeight := max(height-3, 5)
	m.viewport = viewport.New(width, vpHeight)
	m.viewport.SetContent(dimStyle.Render("Ask a question about your documents.\n\nCommands: /help, /clear, /exit"))

	m.input.Width = width - 4

	// Create glamour renderer matched to current width.
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(max(width-2, 20)),
	)
	if err == nil {
		m.renderer = r
	}

	m.initialized = true
}

func askQuestion(cfg Config, question string, history []llm.Message) tea.Cmd {
	return func() tea.Msg {
		ans, err := cfg.Engine.Query(cfg.Ctx, question, rag.QueryOptions{
			SystemPrompt: cfg.SystemPrompt,
			Params:       cfg.Params,
			History:      history,
		})
		return answerMsg{answer: ans, err: err}
	}
}

func (m chatModel) Update(msg tea.Msg) (chatModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.initViewport(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case answerMsg:
		m.state = chatIdle
		if msg.err != nil {
			m.messages = append(m.messages, chatMessage{role: "error", content: msg.err.Error()})
		} else {
			m.messages = append(m.messages, chatMessage{role: llm.RoleAssistant, content: msg.answer.Text})
			if len(msg.answer.Contexts) > 0 {
				m.messages = append(m.messages, chatMessage{role: "sources", content: formatSources(msg.answer.Contexts)})
			}
			m.history = append(m.history, llm.Message{Role: llm.RoleAssistant, Content: msg.answer.Text})
			if len(m.history) > maxHistory {
				m.history = m.history[len(m.history)-maxHistory:]
			}
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.state != chatIdle {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			// Re-render viewport so the spinner frame updates.
			m.refresh()
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyMsg:
		if m.state != chatIdle {
			return m, nil
		}
		if msg.Type == tea.KeyEnter {
			question := strings.TrimSpace(m.input.Value())
			if question == "" {
				return m, nil
			}
			m.input.Reset()

			switch question {
			case "/exit", "/quit":
				return m, tea.Quit
			case "/clear":
				m.messages = nil
				m.history = nil
				m.viewport.SetContent(dimStyle.Render("Conversation cleared."))
				return m, nil
			case "/help":
				helpText := "Commands:\n  /clear  - clear conversation history\n  /exit   - quit\n  /help   - show this help"
				m.messages = append(m.messages, chatMessage{role: RoleSystemNote, content: helpText})
				m.refresh()
				return m, nil
			}

			m.messages = append(m.messages, chatMessage{role: llm.RoleUser, content: question})
			prior := append([]llm.Message(nil), m.history...)
			m.history = append(m.history, llm.Message{Role: llm.RoleUser, Content: question})
			m.state = chatAnswering
			m.refresh()

			return m, tea.Batch(m.spinner.Tick, askQuestion(m.config, question, prior))
		}
	}

	// Update text input.
	if m.state == chatIdle {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	// Update viewport (scrolling).
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// RoleSystemNote marks local help output that is never sent to the generator.
const RoleSystemNote = "note"

func (m *chatModel) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}

func formatSources(chunks []retriever.RetrievedChunk) string {
	lines := make([]string, 0, len(chunks))
	for i, c := range chunks {
		src := store.SourceOf(c.Metadata)
		if src == "" {
			src = "unknown"
		}
		lines = append(lines, fmt.Sprintf("  [%d] %s (similarity %.3f)", i+1, src, c.Similarity))
	}
	return "Sources:\n" + strings.Join(lines, "\n")
}

func (m chatModel) renderMarkdown(content string) string {
	if m.renderer == nil {
		return assistantMsgStyle.Render(content)
	}
	rendered, err := m.renderer.Render(content)
	if err != nil {
		return assistantMsgStyle.Render(content)
	}
	return strings.TrimRight(rendered, "\n")
}

func (m chatModel) renderMessages() string {
	var sb strings.Builder
	for _, msg := range m.messages {
		switch msg.role {
		case llm.RoleUser:
			sb.WriteString(userMsgStyle.Render("You: ") + msg.content + "\n\n")
		case llm.RoleAssistant:
			sb.WriteString(m.renderMarkdown(msg.content) + "\n\n")
		case "error":
			sb.WriteString(errorStyle.Render("Error: "+msg.content) + "\n\n")
		case "sources", RoleSystemNote:
			sb.WriteString(dimStyle.Render(msg.content) + "\n\n")
		}
	}

	if m.state != chatIdle {
		sb.WriteString(m.spinner.View() + " " + dimStyle.Render("Retrieving and generating...") + "\n")
	}

	return sb.String()
}

func (m chatModel) View(width, height int) string {
	if !m.initialized {
		return ""
	}

	statusText := "idle"
	if m.state == chatAnswering {
		statusText = "answering..."
	}
	statusBar := statusBarStyle.
		Width(m.width).
		Render(fmt.Sprintf(" ragflow chat • %s", statusText))

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.viewport.View(),
		statusBar,
		m.input.View(),
	)
}
