// Package export writes session transcripts to audit-friendly files. The
// plain-text format is one block per message in conversational order, headed
// by the author role, with optional citation and translation blocks and a
// fixed separator between messages.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"refinery/internal/logging"
	"refinery/internal/session"
)

// Separator divides message blocks in text and markdown transcripts.
const Separator = "---"

// Exporter renders a session transcript to a writer.
type Exporter interface {
	Export(s *session.Session, w io.Writer) error
	Extension() string
}

// NewExporter returns the exporter for a format name ("text", "markdown",
// "json").
func NewExporter(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "text", "txt":
		return TextExporter{}, nil
	case "markdown", "md":
		return MarkdownExporter{}, nil
	case "json":
		return JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unknown export format: %q", format)
	}
}

// WriteFile exports a session to outputDir using a sanitized filename derived
// from the session name and timestamp. Returns the path to the created file.
func WriteFile(e Exporter, s *session.Session, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s%s",
		sanitizeFilename(s.Name),
		time.Now().Format("20060102_150405"),
		e.Extension())
	outputPath := filepath.Join(outputDir, filename)

	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := e.Export(s, f); err != nil {
		return "", err
	}

	logging.Get(logging.CategoryExport).Info("exported session %s to %s", s.ID, outputPath)
	return outputPath, nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "session"
	}
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	out := sb.String()
	if len(out) > 40 {
		out = out[:40]
	}
	return out
}

// TextExporter produces the plain-text audit transcript.
type TextExporter struct{}

func (TextExporter) Extension() string { return ".txt" }

func (TextExporter) Export(s *session.Session, w io.Writer) error {
	for i, msg := range s.Messages {
		if i > 0 {
			if _, err := fmt.Fprintf(w, "\n%s\n\n", Separator); err != nil {
				return err
			}
		}

		role := "USER"
		if msg.Author == session.AuthorAI {
			role = "AI"
		}
		if _, err := fmt.Fprintf(w, "[%s]\n%s\n", role, msg.Content); err != nil {
			return err
		}

		if len(msg.Citations) > 0 {
			if _, err := fmt.Fprintf(w, "\nCitations:\n"); err != nil {
				return err
			}
			for _, c := range msg.Citations {
				title := c.Title
				if title == "" {
					title = "untitled"
				}
				if _, err := fmt.Fprintf(w, "%s: %s\n", title, c.URI); err != nil {
					return err
				}
			}
		}

		if msg.Translation != nil {
			if _, err := fmt.Fprintf(w, "\nTranslation (%s):\n%s\n", msg.Translation.Lang, msg.Translation.Content); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarkdownExporter produces a markdown transcript with section headings.
type MarkdownExporter struct{}

func (MarkdownExporter) Extension() string { return ".md" }

func (MarkdownExporter) Export(s *session.Session, w io.Writer) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# %s\n\n", s.Name))
	sb.WriteString(fmt.Sprintf("**Session**: %s\n", s.ID))
	sb.WriteString(fmt.Sprintf("**Created**: %s\n", s.CreatedAt.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("**Messages**: %d\n", len(s.Messages)))

	for _, msg := range s.Messages {
		sb.WriteString(fmt.Sprintf("\n%s\n\n", Separator))

		role := "User"
		if msg.Author == session.AuthorAI {
			role = "AI"
		}
		sb.WriteString(fmt.Sprintf("## %s\n\n", role))
		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if len(msg.Citations) > 0 {
			sb.WriteString("\n**Citations**:\n\n")
			for _, c := range msg.Citations {
				title := c.Title
				if title == "" {
					title = c.URI
				}
				sb.WriteString(fmt.Sprintf("- [%s](%s)\n", title, c.URI))
			}
		}

		if msg.Translation != nil {
			sb.WriteString(fmt.Sprintf("\n**Translation (%s)**:\n\n%s\n", msg.Translation.Lang, msg.Translation.Content))
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// JSONExporter writes the full session record, attachments included, with
// stable indentation.
type JSONExporter struct{}

func (JSONExporter) Extension() string { return ".json" }

func (JSONExporter) Export(s *session.Session, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
