package export

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"refinery/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSession() *session.Session {
	s := &session.Session{
		ID:        "sess_export",
		Name:      "wind power",
		CreatedAt: time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC),
	}

	user := session.NewMessage(session.AuthorUser, "explain wind power")
	s.Append(user)

	ai := session.NewMessage(session.AuthorAI, "[Draft]\n\nWind power converts kinetic energy.")
	ai.Citations = []session.Citation{
		{URI: "https://example.org/wind", Title: "Wind basics"},
		{URI: "https://example.org/grid"},
	}
	ai.Translation = &session.Translation{Lang: "French", Content: "L'energie eolienne..."}
	s.Append(ai)

	return s
}

func TestTextExportFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TextExporter{}.Export(sampleSession(), &buf))
	out := buf.String()

	// Author-role headings in conversational order.
	userIdx := strings.Index(out, "[USER]\nexplain wind power")
	aiIdx := strings.Index(out, "[AI]\n[Draft]")
	require.GreaterOrEqual(t, userIdx, 0)
	require.Greater(t, aiIdx, userIdx)

	// One separator between the two blocks.
	assert.Equal(t, 1, strings.Count(out, "\n"+Separator+"\n"))

	// Citations as title: uri lines, untitled fallback included.
	assert.Contains(t, out, "Wind basics: https://example.org/wind")
	assert.Contains(t, out, "untitled: https://example.org/grid")

	assert.Contains(t, out, "Translation (French):\nL'energie eolienne...")
}

func TestTextExportEmptySession(t *testing.T) {
	var buf bytes.Buffer
	s := &session.Session{ID: "sess_empty", Name: "empty"}
	require.NoError(t, TextExporter{}.Export(s, &buf))
	assert.Empty(t, buf.String())
}

func TestMarkdownExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, MarkdownExporter{}.Export(sampleSession(), &buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# wind power\n"))
	assert.Contains(t, out, "## User")
	assert.Contains(t, out, "## AI")
	assert.Contains(t, out, "- [Wind basics](https://example.org/wind)")
	assert.Contains(t, out, "**Translation (French)**")
}

func TestJSONExportRoundTrips(t *testing.T) {
	in := sampleSession()

	var buf bytes.Buffer
	require.NoError(t, JSONExporter{}.Export(in, &buf))

	var out session.Session
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, in.ID, out.ID)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, in.Messages[1].Citations, out.Messages[1].Citations)
}

func TestNewExporter(t *testing.T) {
	for _, format := range []string{"text", "txt", "Markdown", "md", "json"} {
		e, err := NewExporter(format)
		require.NoError(t, err, format)
		assert.NotEmpty(t, e.Extension())
	}
	_, err := NewExporter("pdf")
	assert.Error(t, err)
}

func TestWriteFileSanitizesName(t *testing.T) {
	dir := t.TempDir()
	s := sampleSession()
	s.Name = "wind / power: a study?"

	path, err := WriteFile(TextExporter{}, s, dir)
	require.NoError(t, err)

	base := strings.TrimSuffix(path[strings.LastIndex(path, "/")+1:], ".txt")
	assert.NotContains(t, base, "/")
	assert.NotContains(t, base, ":")
	assert.NotContains(t, base, "?")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[USER]")
}
