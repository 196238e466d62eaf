package chat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"refinery/internal/export"
	"refinery/internal/logging"
	"refinery/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

const helpText = `Commands:
  /new                     start a fresh session
  /sessions                list sessions
  /switch <n>              switch to session n from the list
  /rename <name>           rename the active session
  /delete                  delete the active session
  /chain                   toggle autonomous (chain) mode
  /attach <path>           stage a file for the next task
  /translate <language>    translate the last response
  /export [text|md|json]   export the transcript (default: text)
  /search <term>           search across all sessions
  /constraints             list standing constraints
  /constraint add <rule>   add a standing constraint
  /constraint rm <n>       remove constraint n
  /help                    show this help
  /quit                    exit`

// maxAttachmentSize bounds inline attachments; the exchange history carries
// the bytes verbatim on every turn.
const maxAttachmentSize = 4 << 20

func (m Model) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	cmd := fields[0]
	args := fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(input, cmd))

	logging.Get(logging.CategoryUI).Debug("command: %s", cmd)

	switch cmd {
	case "/help":
		m.setStatus("see transcript for command list")
		m.appendNotice(helpText)
		return m, nil

	case "/quit", "/exit":
		logging.CloseAll()
		return m, tea.Quit

	case "/new":
		if m.isLoading {
			m.setStatus("a turn is already in flight")
			return m, nil
		}
		c := m.createSession()
		m.refreshTranscript()
		return m, c

	case "/sessions":
		m.appendNotice(m.sessionList())
		return m, nil

	case "/switch":
		return m.switchSession(args)

	case "/rename":
		if rest == "" {
			m.setStatus("usage: /rename <name>")
			return m, nil
		}
		sess := m.engine.Sessions().Active()
		if sess == nil {
			m.setStatus("no active session")
			return m, nil
		}
		if err := m.engine.Rename(sess.ID, rest); err != nil {
			m.err = err
			return m, nil
		}
		m.setStatus("renamed")
		return m, nil

	case "/delete":
		return m.deleteActive()

	case "/chain":
		on := !m.engine.ChainMode()
		m.engine.SetChainMode(on)
		if on {
			m.setStatus("chain mode on: five refinement passes per task")
		} else {
			m.setStatus("chain mode off")
		}
		return m, nil

	case "/attach":
		return m.attachFile(rest)

	case "/translate":
		return m.translateLast(rest)

	case "/export":
		format := "text"
		if len(args) > 0 {
			format = args[0]
		}
		return m.exportActive(format)

	case "/search":
		return m.searchAll(rest)

	case "/constraints":
		m.appendNotice(m.constraintList())
		return m, nil

	case "/constraint":
		return m.editConstraints(args, rest)

	default:
		m.setStatus(fmt.Sprintf("unknown command %s (try /help)", cmd))
		return m, nil
	}
}

func (m Model) sessionList() string {
	var sb strings.Builder
	sb.WriteString("Sessions:\n")
	activeID := m.engine.Sessions().ActiveID()
	for i, s := range m.engine.Sessions().Sessions() {
		marker := " "
		if s.ID == activeID {
			marker = "*"
		}
		sb.WriteString(fmt.Sprintf("%s %2d. %s (%d messages, %s)\n",
			marker, i+1, s.Name, len(s.Messages), s.CreatedAt.Format("Jan 2 15:04")))
	}
	return sb.String()
}

func (m Model) switchSession(args []string) (tea.Model, tea.Cmd) {
	if len(args) != 1 {
		m.setStatus("usage: /switch <n>")
		return m, nil
	}
	n, err := strconv.Atoi(args[0])
	sessions := m.engine.Sessions().Sessions()
	if err != nil || n < 1 || n > len(sessions) {
		m.setStatus(fmt.Sprintf("no session %s (see /sessions)", args[0]))
		return m, nil
	}
	if err := m.engine.Activate(sessions[n-1].ID); err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.refreshTranscript()
	m.setStatus(fmt.Sprintf("switched to %q", sessions[n-1].Name))
	return m, nil
}

func (m Model) deleteActive() (tea.Model, tea.Cmd) {
	sess := m.engine.Sessions().Active()
	if sess == nil {
		m.setStatus("no active session")
		return m, nil
	}
	remaining, err := m.engine.Delete(sess.ID)
	if err != nil {
		m.err = err
		return m, nil
	}
	if remaining == 0 {
		// The store never stays empty: seed a fresh session.
		c := m.createSession()
		m.refreshTranscript()
		return m, c
	}
	m.refreshTranscript()
	m.setStatus("session deleted")
	return m, nil
}

func (m Model) attachFile(path string) (tea.Model, tea.Cmd) {
	if path == "" {
		m.setStatus("usage: /attach <path>")
		return m, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		m.err = fmt.Errorf("cannot attach: %w", err)
		return m, nil
	}
	if info.Size() > maxAttachmentSize {
		m.setStatus("attachment too large (4MB limit)")
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		m.err = fmt.Errorf("cannot attach: %w", err)
		return m, nil
	}
	m.pendingAttachment = &session.Attachment{
		Name:     filepath.Base(path),
		MIMEType: mimeTypeFor(path),
		Size:     info.Size(),
		Data:     data,
	}
	m.err = nil
	m.setStatus(fmt.Sprintf("attached %s, it will ride on the next task", m.pendingAttachment.Name))
	return m, nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	default:
		return "text/plain"
	}
}

func (m Model) translateLast(lang string) (tea.Model, tea.Cmd) {
	if lang == "" {
		m.setStatus("usage: /translate <language>")
		return m, nil
	}
	sess := m.engine.Sessions().Active()
	if sess == nil {
		m.setStatus("no active session")
		return m, nil
	}
	var target *session.Message
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Author == session.AuthorAI {
			target = &sess.Messages[i]
			break
		}
	}
	if target == nil {
		m.setStatus("nothing to translate yet")
		return m, nil
	}

	id := target.ID
	eng := m.engine
	m.setStatus(fmt.Sprintf("translating to %s...", lang))
	return m, func() tea.Msg {
		err := eng.Translate(context.Background(), id, lang)
		return translationDoneMsg{messageID: id, err: err}
	}
}

func (m Model) exportActive(format string) (tea.Model, tea.Cmd) {
	sess := m.engine.Sessions().Active()
	if sess == nil {
		m.setStatus("no active session")
		return m, nil
	}
	exporter, err := export.NewExporter(format)
	if err != nil {
		m.setStatus(err.Error())
		return m, nil
	}
	path, err := export.WriteFile(exporter, sess, "exports")
	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	m.setStatus("exported to " + path)
	return m, nil
}

func (m Model) searchAll(term string) (tea.Model, tea.Cmd) {
	if term == "" {
		m.setStatus("usage: /search <term>")
		return m, nil
	}
	if m.mirror == nil {
		m.setStatus("search index unavailable")
		return m, nil
	}
	hits, err := m.mirror.Search(term, 20)
	if err != nil {
		m.err = err
		return m, nil
	}
	if len(hits) == 0 {
		m.setStatus(fmt.Sprintf("no matches for %q", term))
		return m, nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Matches for %q:\n", term))
	for _, h := range hits {
		snippet := strings.ReplaceAll(h.Content, "\n", " ")
		if len(snippet) > 80 {
			snippet = snippet[:80] + "..."
		}
		sb.WriteString(fmt.Sprintf("  [%s] %s: %s\n", h.SessionName, h.Author, snippet))
	}
	m.appendNotice(sb.String())
	return m, nil
}

func (m Model) constraintList() string {
	if m.constraints == nil {
		return "standing constraints unavailable"
	}
	rules := m.constraints.Rules()
	if len(rules) == 0 {
		return "No standing constraints. Add one with /constraint add <rule>."
	}
	var sb strings.Builder
	sb.WriteString("Standing constraints:\n")
	for i, r := range rules {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, r))
	}
	return sb.String()
}

func (m Model) editConstraints(args []string, rest string) (tea.Model, tea.Cmd) {
	if m.constraints == nil {
		m.setStatus("standing constraints unavailable")
		return m, nil
	}
	if len(args) == 0 {
		m.setStatus("usage: /constraint add <rule> | /constraint rm <n>")
		return m, nil
	}
	switch args[0] {
	case "add":
		rule := strings.TrimSpace(strings.TrimPrefix(rest, "add"))
		if err := m.constraints.Add(rule); err != nil {
			m.setStatus(err.Error())
			return m, nil
		}
		m.setStatus("constraint added")
	case "rm", "remove":
		if len(args) != 2 {
			m.setStatus("usage: /constraint rm <n>")
			return m, nil
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			m.setStatus("usage: /constraint rm <n>")
			return m, nil
		}
		if err := m.constraints.Remove(n); err != nil {
			m.setStatus(err.Error())
			return m, nil
		}
		m.setStatus("constraint removed")
	default:
		m.setStatus("usage: /constraint add <rule> | /constraint rm <n>")
	}
	return m, nil
}
