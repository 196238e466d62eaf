package protocol

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBasicSections(t *testing.T) {
	text := "[Task]\nSummarize the report.\n\n[Draft]\nThe report says X."

	resp := Parse(text)
	require.Len(t, resp.Sections, 2)
	assert.Equal(t, Section{Title: "Task", Content: "Summarize the report."}, resp.Sections[0])
	assert.Equal(t, Section{Title: "Draft", Content: "The report says X."}, resp.Sections[1])
	assert.False(t, resp.IsChain)
}

func TestParseIdempotentOnStableInput(t *testing.T) {
	text := "[Task]\nDo a thing.\n\n[C4 Score]\n85% - straightforward.\n\n[Draft]\nHere it is."

	first := Parse(text)
	second := Parse(text)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("parse not idempotent (-first +second):\n%s", diff)
	}
}

func TestParseTotality(t *testing.T) {
	inputs := []string{
		"hello world",
		"[",
		"]broken[",
		"just\nsome\nlines",
		"  leading space\nthen text",
	}
	for _, in := range inputs {
		resp := Parse(in)
		if len(resp.Sections) == 0 {
			t.Fatalf("expected at least one section for %q", in)
		}
	}
}

func TestParseNoTagFallback(t *testing.T) {
	resp := Parse("hello world")
	require.Len(t, resp.Sections, 1)
	assert.Equal(t, Section{Title: FallbackTitle, Content: "hello world"}, resp.Sections[0])
}

func TestParseEmptyInput(t *testing.T) {
	assert.Empty(t, Parse("").Sections)
	assert.Empty(t, Parse("   \n\t").Sections)
}

func TestParseChainDetection(t *testing.T) {
	var b strings.Builder
	b.WriteString("[Task]\nWrite a haiku.\n\n")
	b.WriteString("[Constraints]\nSeventeen syllables.\n\n")
	for i := 1; i <= 5; i++ {
		b.WriteString("[Refined Answer " + string(rune('0'+i)) + "/5]\npass " + string(rune('0'+i)) + "\n\n")
	}

	resp := Parse(b.String())
	require.True(t, resp.IsChain)
	require.Len(t, resp.RefinedAnswers, 5)
	for i, ra := range resp.RefinedAnswers {
		assert.Equal(t, "Refined Answer "+string(rune('1'+i))+"/5", ra.Title)
	}
	require.NotNil(t, resp.Task)
	assert.Equal(t, "Write a haiku.", resp.Task.Content)
}

func TestParseConstraintMerge(t *testing.T) {
	text := "[Constraints]\nfirst rule\n\n" +
		"[STANDING CONSTRAINTS]\nsecond rule\n\n" +
		"[Refined Answer 1/5]\nanswer"

	resp := Parse(text)
	require.True(t, resp.IsChain)
	require.NotNil(t, resp.Constraints)

	content := resp.Constraints.Content
	firstIdx := strings.Index(content, "first rule")
	secondIdx := strings.Index(content, "second rule")
	require.GreaterOrEqual(t, firstIdx, 0)
	require.Greater(t, secondIdx, firstIdx, "merged contents must keep original order")
	assert.Contains(t, content, "**STANDING CONSTRAINTS**")
}

func TestParseTagMidContentIsNotASection(t *testing.T) {
	// A bracketed line without a preceding blank line is ordinary content.
	text := "[Draft]\nStep one.\n[not a tag]\nStep two."

	resp := Parse(text)
	require.Len(t, resp.Sections, 1)
	assert.Contains(t, resp.Sections[0].Content, "[not a tag]")
}

func TestStreamStateGrowsMonotonically(t *testing.T) {
	deltas := []string{
		"[Task]\nWri", "te a poem.", "\n\n[Dra", "ft]\nRoses are red",
	}

	var st StreamState
	prevSections := 0
	for _, d := range deltas {
		parsed := st.Apply(d)
		if len(parsed.Sections) < prevSections {
			t.Fatalf("section count shrank from %d to %d", prevSections, len(parsed.Sections))
		}
		prevSections = len(parsed.Sections)
	}

	final := st.Parsed()
	require.Len(t, final.Sections, 2)
	assert.Equal(t, "Draft", final.Sections[1].Title)
	assert.Equal(t, "Roses are red", final.Sections[1].Content)
}
