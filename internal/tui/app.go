// Package tui renders the chat interface: a status bar, a scrolling
// conversation panel, and an input line, driven by session events.
package tui

import (
	"context"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"relay/internal/agent"
	"relay/internal/filter"
)

const defaultAppWidth = 100

// AppConfig configures the root BubbleTea model.
type AppConfig struct {
	Version   string
	Provider  string
	ModelName string
	ThemeName string
	Session   *agent.Session
}

type streamReadMsg struct {
	Event  agent.Event
	Closed bool
}

// App is the root TUI model.
type App struct {
	theme   Theme
	session *agent.Session

	width  int
	height int

	status StatusModel
	chat   ChatModel
	input  InputModel

	// contentFilter holds back tool-call JSON the model leaks into the
	// visible content channel.
	contentFilter   *filter.Buffer
	assistantBuffer strings.Builder
	reasoningBuffer strings.Builder
	activeStream    <-chan agent.Event
}

// NewApp constructs the root TUI model with defaults.
func NewApp(cfg AppConfig) *App {
	model := &App{
		theme:         ResolveTheme(cfg.ThemeName),
		session:       cfg.Session,
		status:        NewStatusModel(cfg.Version, cfg.Provider, cfg.ModelName),
		chat:          NewChatModel(0),
		input:         NewInputModel(">", "Type message and press Enter"),
		contentFilter: filter.NewBuffer(0),
	}
	if model.width == 0 {
		model.width = defaultAppWidth
	}
	model.status.SetState("idle")
	return model
}

// Init starts background commands if needed.
func (m *App) Init() tea.Cmd {
	return nil
}

// Update applies state changes from user input and runtime events.
func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chat.SetViewportHeight(m.chatViewportHeight())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if strings.TrimSpace(m.input.Value()) == "" && m.activeStream == nil {
				return m, tea.Quit
			}
		}

		if m.handleChatScrollKey(msg) {
			return m, nil
		}

		if submitted := m.input.HandleKey(msg); submitted {
			content := strings.TrimSpace(m.input.Value())
			m.input.Clear()
			return m, m.handleInputSubmit(content)
		}
		return m, nil

	case streamReadMsg:
		if msg.Closed {
			m.finishStream()
			return m, nil
		}
		m.consumeEvent(msg.Event)
		if m.activeStream != nil {
			return m, readStreamEventCommand(m.activeStream)
		}
		return m, nil
	}

	return m, nil
}

// View renders status bar, chat panel, and input line.
func (m *App) View() string {
	width := m.width
	if width <= 0 {
		width = defaultAppWidth
	}

	statusLine := m.status.Render(width, m.theme)
	m.chat.SetViewportHeight(m.chatViewportHeight())
	body := m.chat.Render(width, m.theme)
	inputLine := m.input.Render(width, m.theme)
	return strings.Join([]string{statusLine, body, inputLine}, "\n")
}

func (m *App) handleInputSubmit(content string) tea.Cmd {
	if content == "" {
		return nil
	}
	if m.session == nil {
		m.appendErrorMessage("session is not initialized")
		return nil
	}
	if m.activeStream != nil {
		m.appendErrorMessage("agent is busy")
		return nil
	}

	m.chat.Append("user", content)

	stream, err := m.session.Stream(context.Background(), content)
	if err != nil {
		m.appendErrorMessage(err.Error())
		return nil
	}
	return m.startStream(stream)
}

func (m *App) startStream(stream <-chan agent.Event) tea.Cmd {
	if stream == nil {
		return nil
	}
	m.activeStream = stream
	m.status.SetState("streaming")
	return readStreamEventCommand(stream)
}

func readStreamEventCommand(stream <-chan agent.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-stream
		if !ok {
			return streamReadMsg{Closed: true}
		}
		return streamReadMsg{Event: event}
	}
}

func (m *App) consumeEvent(ev agent.Event) {
	switch ev.Kind {
	case agent.EventContentDelta:
		emit, suppressed := m.contentFilter.AddChunk(ev.Text)
		if emit != "" {
			m.assistantBuffer.WriteString(emit)
		}
		if suppressed {
			m.status.SetState("tool_executing")
		} else {
			m.status.SetState("streaming")
		}
	case agent.EventReasoningDelta:
		m.reasoningBuffer.WriteString(ev.Text)
	case agent.EventToolOutput:
		m.flushReasoningBuffer()
		m.flushAssistantBuffer()
		m.chat.Append("tool", ev.ToolName+": "+ev.Text)
		m.status.SetState("tool_executing")
	case agent.EventToolOutputError:
		m.flushReasoningBuffer()
		m.flushAssistantBuffer()
		m.chat.Append("tool", ev.ToolName+": "+ev.Text)
		m.status.SetState("tool_executing")
	case agent.EventRawChunk:
		// Provider-native chunks are for programmatic consumers; the
		// chat view ignores them.
	case agent.EventFinal:
		m.assistantBuffer.WriteString(m.contentFilter.Flush())
		m.flushReasoningBuffer()
		m.flushAssistantBuffer()
		m.status.SetState("idle")
	case agent.EventError:
		m.assistantBuffer.WriteString(m.contentFilter.Flush())
		m.flushReasoningBuffer()
		m.flushAssistantBuffer()
		errText := "stream error"
		if ev.Err != nil {
			errText = ev.Err.Error()
		}
		m.appendErrorMessage(errText)
	}
}

func (m *App) finishStream() {
	m.assistantBuffer.WriteString(m.contentFilter.Flush())
	m.flushReasoningBuffer()
	m.flushAssistantBuffer()
	m.activeStream = nil
	if m.status.State != "error" {
		m.status.SetState("idle")
	}
}

func (m *App) appendErrorMessage(errText string) {
	message := "Error: " + strings.TrimSpace(errText)
	m.chat.Append("assistant", message)
	m.status.SetState("error")
}

func (m *App) flushAssistantBuffer() {
	text := strings.TrimSpace(m.assistantBuffer.String())
	if text != "" {
		m.chat.Append("assistant", text)
	}
	m.assistantBuffer.Reset()
}

func (m *App) flushReasoningBuffer() {
	text := strings.TrimSpace(m.reasoningBuffer.String())
	if text != "" {
		m.chat.Append("reasoning", text)
	}
	m.reasoningBuffer.Reset()
}

func (m *App) handleChatScrollKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyUp:
		m.chat.ScrollUp(1)
		return true
	case tea.KeyDown:
		m.chat.ScrollDown(1)
		return true
	case tea.KeyPgUp:
		m.chat.PageUp()
		return true
	case tea.KeyPgDown:
		m.chat.PageDown()
		return true
	case tea.KeyHome:
		m.chat.ScrollToTop()
		return true
	case tea.KeyEnd:
		m.chat.ScrollToBottom()
		return true
	default:
		return false
	}
}

func (m *App) chatViewportHeight() int {
	if m.height <= 0 {
		return 0
	}

	const nonBodyRows = 2 // status + input
	bodyHeight := m.height - nonBodyRows
	if bodyHeight < 1 {
		return 1
	}

	contentHeight := bodyHeight - m.theme.PanelStyle.GetVerticalFrameSize()
	if contentHeight < 1 {
		return 1
	}
	return contentHeight
}
