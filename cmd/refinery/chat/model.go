// Package chat implements the interactive terminal interface: a transcript
// viewport over the active session, a task input, and slash commands for
// session management, constraints, export, and translation.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"refinery/internal/config"
	"refinery/internal/constraints"
	"refinery/internal/engine"
	"refinery/internal/logging"
	"refinery/internal/protocol"
	"refinery/internal/session"
	"refinery/internal/store"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const defaultPlaceholder = "Describe a task... (Enter to send, Shift+Enter for newline, Ctrl+C to quit)"

// Model is the main model for the interactive chat interface
type Model struct {
	// UI components
	textarea textarea.Model
	viewport viewport.Model
	spinner  spinner.Model
	styles   Styles
	renderer *glamour.TermRenderer

	// Backend
	engine      *engine.Engine
	constraints *constraints.Store
	mirror      *store.Mirror
	cfg         config.Config

	// State
	isLoading     bool
	pendingUpd    <-chan engine.TurnUpdate
	status        string
	statusExpires time.Time
	err           error
	width         int
	height        int
	ready         bool

	// Attachment staged for the next submission
	pendingAttachment *session.Attachment

	// notice is transient UI-only text (help, listings) shown under the
	// transcript; it never enters the session.
	notice string

	// Input history
	inputHistory []string
	historyIndex int
}

// Messages for tea updates
type (
	turnUpdateMsg engine.TurnUpdate

	// turnClosedMsg fires when the update channel closes after Done.
	turnClosedMsg struct{}

	// translationDoneMsg reports the outcome of a background translation.
	translationDoneMsg struct {
		messageID string
		err       error
	}

	errMsg error
)

// Deps carries the backend collaborators for the chat interface. Constraints
// and Mirror are optional.
type Deps struct {
	Engine      *engine.Engine
	Constraints *constraints.Store
	Mirror      *store.Mirror
	Config      config.Config
}

// New assembles the chat model around a ready engine.
func New(deps Deps) Model {
	eng := deps.Engine
	cfg := deps.Config
	ta := textarea.New()
	ta.Placeholder = defaultPlaceholder
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	styles := NewStyles(ThemeByName(cfg.Theme))
	sp.Style = styles.Spinner

	glamourStyle := "light"
	if styles.Theme.IsDark {
		glamourStyle = "dark"
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(glamourStyle),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		renderer = nil
		logging.Get(logging.CategoryUI).Warn("glamour renderer unavailable: %v", err)
	}

	return Model{
		textarea:    ta,
		spinner:     sp,
		styles:      styles,
		renderer:    renderer,
		engine:      eng,
		constraints: deps.Constraints,
		mirror:      deps.Mirror,
		cfg:         cfg,
	}
}

// Init initializes the interactive chat model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.spinner.Tick}

	// A store with no sessions means first run: seed one.
	if m.engine.Sessions().Len() == 0 {
		cmds = append(cmds, m.createSession())
	}
	return tea.Batch(cmds...)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		taCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			logging.CloseAll()
			return m, tea.Quit
		case tea.KeyEnter:
			if msg.Alt {
				break // Alt+Enter inserts a newline via the textarea
			}
			return m.handleSubmit()
		case tea.KeyUp:
			if m.textarea.Value() == "" && len(m.inputHistory) > 0 {
				if m.historyIndex > 0 {
					m.historyIndex--
				}
				m.textarea.SetValue(m.inputHistory[m.historyIndex])
				return m, nil
			}
		case tea.KeyDown:
			if m.historyIndex < len(m.inputHistory)-1 {
				m.historyIndex++
				m.textarea.SetValue(m.inputHistory[m.historyIndex])
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		headerHeight := 2
		footerHeight := 2
		inputHeight := m.textarea.Height() + 1
		vpHeight := msg.Height - headerHeight - footerHeight - inputHeight
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.textarea.SetWidth(msg.Width - 2)
		m.refreshTranscript()
		return m, nil

	case turnUpdateMsg:
		upd := engine.TurnUpdate(msg)
		if upd.Done {
			m.isLoading = false
			if upd.Err != nil {
				m.err = upd.Err
			}
		}
		m.refreshTranscript()
		if m.pendingUpd != nil {
			return m, m.waitForTurn(m.pendingUpd)
		}
		return m, nil

	case turnClosedMsg:
		m.isLoading = false
		m.pendingUpd = nil
		m.refreshTranscript()
		return m, nil

	case translationDoneMsg:
		// Failure is already recorded on the message itself as a placeholder
		// translation; the footer only gets a transient note.
		if msg.err != nil {
			m.setStatus("translation failed")
		} else {
			m.setStatus("translation added")
		}
		m.refreshTranscript()
		return m, nil

	case errMsg:
		m.err = msg
		m.isLoading = false
		return m, nil

	case spinner.TickMsg:
		m.spinner, spCmd = m.spinner.Update(msg)
		return m, spCmd
	}

	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

func (m Model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}

	if strings.HasPrefix(input, "/") {
		m.textarea.Reset()
		return m.handleCommand(input)
	}

	if m.isLoading {
		m.setStatus("a turn is already in flight")
		return m, nil
	}
	if !m.engine.Stage().CanSubmit() {
		m.setStatus(fmt.Sprintf("not accepting input (stage: %s)", m.engine.Stage()))
		return m, nil
	}

	att := m.pendingAttachment
	m.pendingAttachment = nil

	updates, err := m.engine.Submit(context.Background(), input, att)
	if err != nil {
		m.err = err
		return m, nil
	}

	if len(m.inputHistory) == 0 || m.inputHistory[len(m.inputHistory)-1] != input {
		m.inputHistory = append(m.inputHistory, input)
	}
	m.historyIndex = len(m.inputHistory)

	m.textarea.Reset()
	m.err = nil
	m.notice = ""
	m.isLoading = true
	m.pendingUpd = updates
	m.refreshTranscript()

	return m, tea.Batch(m.spinner.Tick, m.waitForTurn(updates))
}

// waitForTurn delivers the next stream update as a tea message.
func (m Model) waitForTurn(ch <-chan engine.TurnUpdate) tea.Cmd {
	return func() tea.Msg {
		upd, ok := <-ch
		if !ok {
			return turnClosedMsg{}
		}
		return turnUpdateMsg(upd)
	}
}

// createSession kicks off the directive handshake for a fresh session.
func (m *Model) createSession() tea.Cmd {
	updates, err := m.engine.CreateSession(context.Background())
	if err != nil {
		return func() tea.Msg { return errMsg(err) }
	}
	m.isLoading = true
	m.pendingUpd = updates
	return tea.Batch(m.spinner.Tick, m.waitForTurn(updates))
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusExpires = time.Now().Add(5 * time.Second)
}

func (m *Model) appendNotice(text string) {
	m.notice = text
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "booting..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.textarea.View())
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	name := "no session"
	if sess := m.engine.Sessions().Active(); sess != nil {
		name = sess.Name
	}
	title := fmt.Sprintf(" refinery · %s", name)
	return m.styles.Header.Width(m.width).Render(title)
}

func (m Model) renderFooter() string {
	var parts []string

	stage := m.engine.Stage()
	badge := m.styles.StageBadge.Render(stage.String())
	if stage == protocol.StageError {
		badge = m.styles.Error.Render(stage.String())
	}
	parts = append(parts, badge)

	if m.engine.ChainMode() {
		parts = append(parts, m.styles.ChainBadge.Render("chain"))
	}
	if m.pendingAttachment != nil {
		parts = append(parts, m.styles.Muted.Render("📎 "+m.pendingAttachment.Name))
	}
	if m.isLoading {
		parts = append(parts, m.spinner.View()+m.styles.Muted.Render(" thinking"))
	}
	if m.err != nil {
		parts = append(parts, m.styles.Error.Render(m.err.Error()))
	} else if m.status != "" && time.Now().Before(m.statusExpires) {
		parts = append(parts, m.styles.Muted.Render(m.status))
	}

	parts = append(parts, m.styles.Muted.Render("/help for commands"))
	return m.styles.Footer.Width(m.width).Render(" " + strings.Join(parts, "  "))
}
