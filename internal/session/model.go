// Package session holds the conversation data model and the ordered,
// persistent collection of sessions the rest of the application works
// against.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"refinery/internal/protocol"
)

// Author identifies who produced a message.
type Author string

const (
	AuthorUser Author = "user"
	AuthorAI   Author = "ai"
)

// Roles used in the model exchange history.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// DefaultName is the placeholder a session carries until its first task
// names it.
const DefaultName = "New Session"

// maxAutoNameLen bounds names derived from the first task text.
const maxAutoNameLen = 50

// Citation is one search-grounding source attached to an AI message.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Attachment is a file sent alongside a user message. Data is carried inline
// so the exchange history can be replayed without touching the filesystem.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
	Data     []byte `json:"data"`
}

// Translation is an additive, per-message translation of the raw content.
type Translation struct {
	Lang    string `json:"lang"`
	Content string `json:"content"`
}

// Message is one conversational turn. A message mutates in place only while
// it is the most recent AI message still streaming; afterwards it is
// immutable except for translation requests, which attach or replace the
// Translation field and never alter Content.
type Message struct {
	ID            string                   `json:"id"`
	Author        Author                   `json:"author"`
	Content       string                   `json:"content"`
	Citations     []Citation               `json:"citations,omitempty"`
	Attachment    *Attachment              `json:"attachment,omitempty"`
	Translation   *Translation             `json:"translation,omitempty"`
	IsTranslating bool                     `json:"isTranslating,omitempty"`
	Parsed        *protocol.ParsedResponse `json:"parsedData,omitempty"`
	Time          time.Time                `json:"time"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(author Author, content string) Message {
	return Message{
		ID:      uuid.NewString(),
		Author:  author,
		Content: content,
		Time:    time.Now(),
	}
}

// ExchangePart is one content part of a model exchange: text, or inline
// binary data with a MIME type.
type ExchangePart struct {
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Exchange is one role-tagged entry in the transcript used to rebuild a live
// model connection. One user+model pair is appended per completed turn.
type Exchange struct {
	Role  string         `json:"role"`
	Parts []ExchangePart `json:"parts"`
}

// Session is one independent conversation with its own message log and raw
// model exchange history. The exchange history is authoritative for
// reconstructing the model's context: the hosted model's own transcript is
// not recoverable once the connection is replaced.
type Session struct {
	ID                   string     `json:"id"`
	Name                 string     `json:"name"`
	Messages             []Message  `json:"messages"`
	ModelExchangeHistory []Exchange `json:"modelExchangeHistory"`
	CreatedAt            time.Time  `json:"createdAt"`
}

// New creates an empty session with a generation-ordered id.
func New() *Session {
	return &Session{
		ID:        fmt.Sprintf("sess_%d", time.Now().UnixNano()),
		Name:      DefaultName,
		CreatedAt: time.Now(),
	}
}

// Append adds a message to the log and returns a pointer to the stored copy.
func (s *Session) Append(m Message) *Message {
	s.Messages = append(s.Messages, m)
	return &s.Messages[len(s.Messages)-1]
}

// LastMessage returns the most recent message, or nil for an empty log.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// RecordExchange appends one completed user+model pair to the exchange
// history. Callers invoke this only after a stream has fully ended, so a
// partial stream is never recorded as completed history.
func (s *Session) RecordExchange(userParts []ExchangePart, modelText string) {
	s.ModelExchangeHistory = append(s.ModelExchangeHistory,
		Exchange{Role: RoleUser, Parts: userParts},
		Exchange{Role: RoleModel, Parts: []ExchangePart{{Text: modelText}}},
	)
}

// DeriveName produces a session name from the first task text, truncated to
// a displayable length.
func DeriveName(task string) string {
	name := strings.TrimSpace(strings.ReplaceAll(task, "\n", " "))
	if name == "" {
		return DefaultName
	}
	runes := []rune(name)
	if len(runes) > maxAutoNameLen {
		name = string(runes[:maxAutoNameLen])
	}
	return name
}
