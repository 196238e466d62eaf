// Package introspect handles meta-questions: queries about the application
// itself. It detects them with a keyword heuristic and builds an augmented
// prompt embedding the application's own (redacted, encoded) source text for
// the model to answer from.
package introspect

import "strings"

// Classifier decides whether a user query is about the application itself.
// It is deliberately pluggable so the keyword heuristic can be swapped for
// something more principled without touching the rest of the pipeline.
type Classifier interface {
	Detect(text string) bool
}

// KeywordClassifier matches a fixed phrase list, case-insensitively. It is a
// heuristic: false positives and negatives are accepted.
type KeywordClassifier struct {
	phrases []string
}

// defaultPhrases covers the common ways users ask about the app.
var defaultPhrases = []string{
	"what is this app",
	"what is this application",
	"what does this app do",
	"how does this app work",
	"how do you work",
	"explain your code",
	"your source code",
	"your own code",
	"show me your code",
	"who are you",
	"what are you",
	"how were you built",
	"how were you made",
	"your architecture",
	"your system prompt",
	"your instructions",
	"your directive",
}

// NewKeywordClassifier returns the default classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{phrases: defaultPhrases}
}

// Detect reports whether any phrase occurs in the text.
func (k *KeywordClassifier) Detect(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range k.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
