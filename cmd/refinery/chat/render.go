package chat

import (
	"fmt"
	"strings"

	"refinery/internal/protocol"
	"refinery/internal/session"
)

// renderTranscript builds the viewport content for the active session.
func (m Model) renderTranscript() string {
	sess := m.engine.Sessions().Active()
	if sess == nil {
		return m.styles.Muted.Render("No session. /new to start one.")
	}

	var sb strings.Builder
	for i, msg := range sess.Messages {
		if i > 0 {
			sb.WriteString("\n" + m.styles.Divider.Render(strings.Repeat("─", max(m.width-2, 10))) + "\n\n")
		}
		m.renderMessage(&sb, msg)
	}

	if m.notice != "" {
		sb.WriteString("\n" + m.styles.Muted.Render(m.notice) + "\n")
	}
	return sb.String()
}

func (m Model) renderMessage(sb *strings.Builder, msg session.Message) {
	if msg.Author == session.AuthorUser {
		sb.WriteString(m.styles.UserLabel.Render("You") + "\n")
		sb.WriteString(msg.Content + "\n")
		if msg.Attachment != nil {
			sb.WriteString(m.styles.Muted.Render(fmt.Sprintf("📎 %s (%d bytes)", msg.Attachment.Name, msg.Attachment.Size)) + "\n")
		}
		m.renderExtras(sb, msg)
		return
	}

	sb.WriteString(m.styles.AILabel.Render("Refinery") + "\n")

	parsed := msg.Parsed
	if parsed == nil {
		parsed = protocol.Parse(msg.Content)
	}

	if len(parsed.Sections) == 0 {
		// Still waiting for the first chunk.
		sb.WriteString(m.styles.Muted.Render("...") + "\n")
		return
	}

	if parsed.IsChain {
		m.renderChain(sb, parsed)
	} else {
		for _, sec := range parsed.Sections {
			m.renderSection(sb, sec)
		}
	}
	m.renderExtras(sb, msg)
}

// renderChain shows the decomposed view: task and constraints first, then the
// refinement passes, then everything else (the final output in particular).
func (m Model) renderChain(sb *strings.Builder, parsed *protocol.ParsedResponse) {
	if parsed.Task != nil {
		m.renderSection(sb, *parsed.Task)
	}
	if parsed.Constraints != nil {
		m.renderSection(sb, *parsed.Constraints)
	}

	for _, ans := range parsed.RefinedAnswers {
		sb.WriteString(m.styles.ChainTitle.Render("▸ "+ans.Title) + "\n")
		sb.WriteString(m.renderMarkdown(ans.Content))
	}

	for _, sec := range parsed.Sections {
		if sec.Title == "Task" || isChainHandled(sec.Title) {
			continue
		}
		m.renderSection(sb, sec)
	}
}

func isChainHandled(title string) bool {
	return title == "Constraints" || title == protocol.StandingConstraintsTitle ||
		strings.HasPrefix(title, "Refined Answer")
}

func (m Model) renderSection(sb *strings.Builder, sec protocol.Section) {
	style := m.styles.SectionTitle
	if sec.Title == "Error" {
		style = m.styles.Error
	}
	sb.WriteString(style.Render("["+sec.Title+"]") + "\n")
	sb.WriteString(m.renderMarkdown(sec.Content))
}

func (m Model) renderExtras(sb *strings.Builder, msg session.Message) {
	if len(msg.Citations) > 0 {
		sb.WriteString(m.styles.Muted.Render("Sources:") + "\n")
		for _, c := range msg.Citations {
			title := c.Title
			if title == "" {
				title = c.URI
			}
			sb.WriteString(m.styles.Citation.Render("  • "+title+": "+c.URI) + "\n")
		}
	}
	if msg.IsTranslating {
		sb.WriteString(m.styles.Muted.Render("translating...") + "\n")
	}
	if msg.Translation != nil {
		sb.WriteString(m.styles.SectionTitle.Render("["+msg.Translation.Lang+"]") + "\n")
		sb.WriteString(m.styles.Translation.Render(msg.Translation.Content) + "\n")
	}
}

func (m Model) renderMarkdown(content string) string {
	if content == "" {
		return "\n"
	}
	if m.renderer != nil {
		if out, err := m.renderer.Render(content); err == nil {
			return out
		}
	}
	return content + "\n"
}
