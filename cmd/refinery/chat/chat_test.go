package chat

import (
	"strings"
	"testing"

	"refinery/internal/protocol"
	"refinery/internal/session"
)

func TestMimeTypeFor(t *testing.T) {
	cases := map[string]string{
		"photo.PNG":   "image/png",
		"scan.jpeg":   "image/jpeg",
		"doc.pdf":     "application/pdf",
		"notes.txt":   "text/plain",
		"Makefile":    "text/plain",
		"anim.gif":    "image/gif",
		"a/b/pic.jpg": "image/jpeg",
	}
	for path, want := range cases {
		if got := mimeTypeFor(path); got != want {
			t.Errorf("mimeTypeFor(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestThemeByName(t *testing.T) {
	if ThemeByName("light").IsDark {
		t.Error("light theme reported dark")
	}
	if !ThemeByName("dark").IsDark {
		t.Error("dark theme reported light")
	}
	// Unrecognized names fall through to detection, which must not panic.
	_ = ThemeByName("solarized")
}

func TestRenderSectionWithoutGlamour(t *testing.T) {
	m := Model{styles: NewStyles(DarkTheme())}

	var sb strings.Builder
	m.renderSection(&sb, protocol.Section{Title: "Draft", Content: "hello world"})
	out := sb.String()

	if !strings.Contains(out, "[Draft]") {
		t.Errorf("section title missing from render: %q", out)
	}
	if !strings.Contains(out, "hello world") {
		t.Errorf("section content missing from render: %q", out)
	}
}

func TestRenderChainShowsAllPasses(t *testing.T) {
	m := Model{styles: NewStyles(LightTheme())}

	parsed := protocol.Parse("[Task]\n\nT\n\n[Refined Answer 1/5]\n\nfirst\n\n[Refined Answer 2/5]\n\nsecond\n\n[Final Output]\n\ndone")
	if !parsed.IsChain {
		t.Fatal("expected chain response")
	}

	var sb strings.Builder
	m.renderChain(&sb, parsed)
	out := sb.String()

	for _, want := range []string{"Refined Answer 1/5", "Refined Answer 2/5", "[Final Output]", "first", "second", "done"} {
		if !strings.Contains(out, want) {
			t.Errorf("chain render missing %q", want)
		}
	}
}

func TestRenderExtrasTranslation(t *testing.T) {
	m := Model{styles: NewStyles(DarkTheme())}

	msg := session.NewMessage(session.AuthorAI, "content")
	msg.Citations = []session.Citation{{URI: "https://example.org", Title: "Example"}}
	msg.Translation = &session.Translation{Lang: "Spanish", Content: "contenido"}

	var sb strings.Builder
	m.renderExtras(&sb, msg)
	out := sb.String()

	if !strings.Contains(out, "Example") || !strings.Contains(out, "https://example.org") {
		t.Errorf("citation missing: %q", out)
	}
	if !strings.Contains(out, "[Spanish]") || !strings.Contains(out, "contenido") {
		t.Errorf("translation missing: %q", out)
	}
}
