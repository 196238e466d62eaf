// Package protocol implements the self-correction prompting protocol: parsing
// bracket-tagged model responses into labeled sections, the conversation stage
// machine, and prompt composition for each turn.
package protocol

import (
	"regexp"
	"strings"
)

// Section is one titled block extracted from a bracket-tagged response.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ParsedResponse is the result of parsing one model response.
//
// Sections always holds the flat ordered sequence. When IsChain is true (any
// section title starts with "Refined Answer") the Task/Constraints/
// RefinedAnswers decomposition is populated as well, so the renderer can build
// the refinement accordion without re-parsing.
type ParsedResponse struct {
	Sections       []Section `json:"sections"`
	IsChain        bool      `json:"isChain"`
	Task           *Section  `json:"task,omitempty"`
	Constraints    *Section  `json:"constraints,omitempty"`
	RefinedAnswers []Section `json:"refinedAnswers,omitempty"`
}

const (
	// FallbackTitle is the synthetic title used when the text carries no
	// recognizable section tags.
	FallbackTitle = "Response"

	// refinedAnswerPrefix marks the sections produced by chain mode.
	refinedAnswerPrefix = "Refined Answer"
)

// tagLine matches a section tag occupying a whole line: "[Title]".
var tagLine = regexp.MustCompile(`^\[([^\[\]]+)\]\s*$`)

// Parse converts raw response text into an ordered sequence of labeled
// sections. A section is "[Title]" on its own line (at the start of the text
// or after a blank line) followed by content running until the next such tag
// or end of text.
//
// Parse is total for non-empty input: text with no recognizable tags is
// wrapped in a single "Response" section. It is idempotent on stable input
// and safe to re-run on a growing prefix of a streaming response.
func Parse(text string) *ParsedResponse {
	if strings.TrimSpace(text) == "" {
		return &ParsedResponse{}
	}

	sections := splitSections(text)
	if len(sections) == 0 {
		// Tags may exist but not parse into anything usable. Never hand the
		// renderer an empty list for non-empty input.
		sections = []Section{{Title: FallbackTitle, Content: strings.TrimSpace(text)}}
	}

	resp := &ParsedResponse{Sections: sections}
	for _, s := range sections {
		if strings.HasPrefix(s.Title, refinedAnswerPrefix) {
			resp.IsChain = true
			break
		}
	}
	if resp.IsChain {
		decomposeChain(resp)
	}
	return resp
}

// splitSections walks the text line by line. A tag line only opens a section
// when it sits at the start of the text or immediately after a blank line;
// anywhere else it is ordinary content.
func splitSections(text string) []Section {
	lines := strings.Split(text, "\n")

	var sections []Section
	var title string
	var body []string
	open := false

	flush := func() {
		if !open {
			return
		}
		sections = append(sections, Section{
			Title:   title,
			Content: strings.TrimSpace(strings.Join(body, "\n")),
		})
		body = nil
	}

	for i, line := range lines {
		blankBefore := i == 0 || strings.TrimSpace(lines[i-1]) == ""
		if m := tagLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil && blankBefore {
			flush()
			title = strings.TrimSpace(m[1])
			open = true
			continue
		}
		if open {
			body = append(body, line)
		}
	}
	flush()

	return sections
}

// decomposeChain fills in the Task/Constraints/RefinedAnswers view. Duplicate
// constraint sections ("Constraints" and "STANDING CONSTRAINTS" both count)
// are folded into one: the first occurrence wins the slot, each later one is
// appended under a bolded sub-heading of its original title.
func decomposeChain(resp *ParsedResponse) {
	for i := range resp.Sections {
		s := resp.Sections[i]
		switch {
		case s.Title == "Task":
			if resp.Task == nil {
				sec := s
				resp.Task = &sec
			}
		case isConstraintsTitle(s.Title):
			if resp.Constraints == nil {
				sec := s
				resp.Constraints = &sec
			} else {
				resp.Constraints.Content += "\n\n**" + s.Title + "**\n\n" + s.Content
			}
		case strings.HasPrefix(s.Title, refinedAnswerPrefix):
			resp.RefinedAnswers = append(resp.RefinedAnswers, s)
		}
	}
}

func isConstraintsTitle(title string) bool {
	return title == "Constraints" || title == "STANDING CONSTRAINTS"
}

// Has reports whether a section with the exact title is present.
func (r *ParsedResponse) Has(title string) bool {
	for _, s := range r.Sections {
		if s.Title == title {
			return true
		}
	}
	return false
}

// StreamState folds streamed text deltas into an accumulated response. Each
// Apply sees a strictly longer prefix of the final text, so the parsed view
// only grows or refines between calls.
type StreamState struct {
	text   strings.Builder
	parsed *ParsedResponse
}

// Apply appends a delta and re-parses the accumulated text.
func (s *StreamState) Apply(delta string) *ParsedResponse {
	s.text.WriteString(delta)
	s.parsed = Parse(s.text.String())
	return s.parsed
}

// Text returns the accumulated raw text.
func (s *StreamState) Text() string { return s.text.String() }

// Parsed returns the most recent parse, or an empty response before the
// first delta.
func (s *StreamState) Parsed() *ParsedResponse {
	if s.parsed == nil {
		return &ParsedResponse{}
	}
	return s.parsed
}
