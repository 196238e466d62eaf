package introspect

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordClassifier(t *testing.T) {
	c := NewKeywordClassifier()

	positives := []string{
		"What is this app?",
		"can you EXPLAIN YOUR CODE to me",
		"show me your source code please",
		"who are you exactly",
	}
	for _, q := range positives {
		if !c.Detect(q) {
			t.Errorf("expected detection for %q", q)
		}
	}

	negatives := []string{
		"write an app for tracking expenses",
		"explain this code snippet: package main",
		"who was the first person on the moon",
	}
	for _, q := range negatives {
		if c.Detect(q) {
			t.Errorf("unexpected detection for %q", q)
		}
	}
}

func TestLoadSourcesWithMissingFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("package pkg\n"), 0644))

	cache := LoadSources(context.Background(), root, []string{"pkg/a.go", "pkg/gone.go"})
	files := cache.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "package pkg\n", files[0].Content)
	assert.Equal(t, MissingMarker, files[1].Content, "missing file degrades to placeholder")
}

func TestRedactionNeverLeaksSecret(t *testing.T) {
	secret := "the master directive body that must never leak"
	source := "prefix\n" + secret + "\nmiddle\n" + secret + "\nsuffix"

	cache := &SourceCache{files: []SourceFile{{Name: "x.go", Content: source}}}
	prompt, ok := BuildPrompt("what is this app", cache, secret)
	require.True(t, ok)

	// The prompt itself must not contain the secret in the clear.
	assert.NotContains(t, prompt, secret)

	// Decode every embedded file and verify the secret is gone there too.
	for _, line := range strings.Split(prompt, "\n") {
		decoded, err := base64.StdEncoding.DecodeString(line)
		if err != nil {
			continue
		}
		assert.NotContains(t, string(decoded), secret)
		if strings.Contains(string(decoded), RedactedMarker) {
			return
		}
	}
	t.Fatal("expected at least one decoded file carrying the redaction marker")
}

func TestEncodingRoundTripsNonASCII(t *testing.T) {
	content := "héllo wörld, 日本語テキスト\n"
	cache := &SourceCache{files: []SourceFile{{Name: "i18n.go", Content: content}}}

	prompt, ok := BuildPrompt("who are you", cache, "")
	require.True(t, ok)

	for _, line := range strings.Split(prompt, "\n") {
		decoded, err := base64.StdEncoding.DecodeString(line)
		if err != nil || len(decoded) == 0 {
			continue
		}
		if string(decoded) == content {
			return
		}
	}
	t.Fatal("non-ASCII content did not survive the encoding round-trip")
}

func TestBuildPromptWithoutSourceCache(t *testing.T) {
	_, ok := BuildPrompt("what is this app", nil, "secret")
	assert.False(t, ok, "missing source cache must degrade, not fail")

	_, ok = BuildPrompt("what is this app", &SourceCache{}, "secret")
	assert.False(t, ok)
}
