// Package llm is the boundary to the hosted generative model: a streaming
// multi-turn chat completion for protocol turns and a non-streaming
// single-turn completion for translation.
package llm

import (
	"context"
	"time"
)

// Roles in the model transcript.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one piece of a turn's content: text, or inline binary data with a
// MIME type.
type Part struct {
	Text     string
	MIMEType string
	Data     []byte
}

// Turn is one role-tagged entry in the transcript handed to the model.
type Turn struct {
	Role  string
	Parts []Part
}

// Citation is a search-grounding source surfaced on a response chunk.
type Citation struct {
	URI   string
	Title string
}

// Delta is one increment of a streamed response. Text fragments and citation
// candidates arrive in server-send order; the accumulated text of all deltas
// is the authoritative response.
type Delta struct {
	Text      string
	Citations []Citation
}

// ModelClient streams one chat turn given the full prior transcript. The
// returned channels are closed when the stream ends; at most one error is
// delivered. The core does not retry this boundary - a failure is a single
// error outcome per call.
type ModelClient interface {
	StreamTurn(ctx context.Context, history []Turn, parts []Part) (<-chan Delta, <-chan error)
}

// Translator performs the independent non-streaming translation call.
type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

// Config holds configuration shared by the model clients.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxOutputTokens int
	// EnableSearch turns on the web-search grounding tool, which surfaces
	// citation candidates on response chunks.
	EnableSearch bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-2.5-flash",
		Timeout:         10 * time.Minute,
		MaxOutputTokens: 65536,
		EnableSearch:    true,
	}
}
