// Package engine orchestrates protocol turns: it owns the session store, the
// model client, the stage machine, and the single in-flight-turn guard, and
// feeds live updates to the presentation layer while a response streams.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"refinery/internal/constraints"
	"refinery/internal/introspect"
	"refinery/internal/llm"
	"refinery/internal/logging"
	"refinery/internal/protocol"
	"refinery/internal/session"
	"refinery/internal/store"
)

// Sentinel errors surfaced to the presentation layer.
var (
	// ErrBusy means a turn is already in flight for the active session.
	ErrBusy = errors.New("a turn is already in flight")
	// ErrNoSession means the store holds no active session.
	ErrNoSession = errors.New("no active session")
	// ErrNotAcceptingInput means the current stage rejects submissions.
	ErrNotAcceptingInput = errors.New("current stage does not accept input")
	// ErrNoTranslator means no translation backend is configured.
	ErrNoTranslator = errors.New("translation is not configured")
)

// errorSection replaces the in-flight AI message when a turn fails. The
// underlying cause goes to the log, not the transcript.
const errorSection = "[Error]\n\nSomething went wrong while processing this turn. The response was not completed; please submit the task again."

// translationFailed is the per-message placeholder for a translation that
// could not be produced. The cause goes to the log.
const translationFailed = "[translation failed]"

// TurnUpdate is one increment of an in-flight turn, emitted per applied delta
// and once more when the turn ends. After Done the channel is closed.
type TurnUpdate struct {
	MessageID string
	Content   string
	Parsed    *protocol.ParsedResponse
	Citations []session.Citation
	Stage     protocol.Stage
	Done      bool
	Err       error
}

// Engine drives the self-correction protocol for the active session.
type Engine struct {
	mu          sync.Mutex
	sessions    *session.Store
	client      llm.ModelClient
	translator  llm.Translator
	classifier  introspect.Classifier
	sources     *introspect.SourceCache
	constraints *constraints.Store
	mirror      *store.Mirror

	stage     protocol.Stage
	chainMode bool
	isLoading bool
}

// Options carries the optional collaborators. Nil fields disable the
// corresponding feature rather than failing construction.
type Options struct {
	Translator  llm.Translator
	Classifier  introspect.Classifier
	Sources     *introspect.SourceCache
	Constraints *constraints.Store
	Mirror      *store.Mirror
}

// New assembles an engine. The session store must already be loaded.
func New(sessions *session.Store, client llm.ModelClient, opts Options) *Engine {
	e := &Engine{
		sessions:    sessions,
		client:      client,
		translator:  opts.Translator,
		classifier:  opts.Classifier,
		sources:     opts.Sources,
		constraints: opts.Constraints,
		mirror:      opts.Mirror,
		stage:       protocol.StageInitializing,
	}
	if e.classifier == nil {
		e.classifier = introspect.NewKeywordClassifier()
	}
	if active := sessions.Active(); active != nil {
		e.stage = stageFor(active)
	}
	return e
}

// Stage returns the current protocol stage.
func (e *Engine) Stage() protocol.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage
}

// IsLoading reports whether a turn is in flight.
func (e *Engine) IsLoading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLoading
}

// ChainMode reports whether autonomous mode is on.
func (e *Engine) ChainMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chainMode
}

// SetChainMode toggles autonomous mode for subsequent fresh tasks.
func (e *Engine) SetChainMode(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.chainMode = on
	logging.Protocol("chain mode set to %v", on)
}

// Sessions exposes the underlying store for read-side consumers.
func (e *Engine) Sessions() *session.Store {
	return e.sessions
}

// CreateSession adds a fresh session, makes it active, and seeds the model
// with the protocol directive. The acknowledgement streams back as the
// session's first AI message. Fails up front when a turn is in flight.
func (e *Engine) CreateSession(ctx context.Context) (<-chan TurnUpdate, error) {
	e.mu.Lock()
	if e.isLoading {
		e.mu.Unlock()
		return nil, ErrBusy
	}

	sess := session.New()
	if err := e.sessions.Add(sess); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to add session: %w", err)
	}

	ack := sess.Append(session.NewMessage(session.AuthorAI, ""))
	e.isLoading = true
	e.stage = protocol.StageInitializing
	e.mu.Unlock()

	logging.Session("created session %s, sending protocol directive", sess.ID)

	updates := make(chan TurnUpdate, 16)
	parts := []llm.Part{{Text: protocol.MasterDirective}}
	userParts := []session.ExchangePart{{Text: protocol.MasterDirective}}
	go e.runTurn(ctx, sess, ack, nil, parts, userParts, turnSeed, updates)
	return updates, nil
}

// Submit starts a protocol turn from user input. The attachment is optional.
// Updates stream on the returned channel until the turn completes or fails.
func (e *Engine) Submit(ctx context.Context, text string, att *session.Attachment) (<-chan TurnUpdate, error) {
	e.mu.Lock()
	if e.isLoading {
		e.mu.Unlock()
		return nil, ErrBusy
	}
	if !e.stage.CanSubmit() {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w (stage %s)", ErrNotAcceptingInput, e.stage)
	}
	sess := e.sessions.Active()
	if sess == nil {
		e.mu.Unlock()
		return nil, ErrNoSession
	}

	stage := e.stage
	chain := e.chainMode

	// First task names the session.
	if stage == protocol.StageAwaitingTask && sess.Name == session.DefaultName {
		sess.Name = session.DeriveName(text)
	}

	userMsg := session.NewMessage(session.AuthorUser, text)
	userMsg.Attachment = att
	sess.Append(userMsg)

	kind := turnStandard
	prompt := ""
	if stage == protocol.StageAwaitingTask && e.classifier.Detect(text) {
		if p, ok := introspect.BuildPrompt(text, e.sources, protocol.MasterDirective); ok {
			prompt = p
			kind = turnMeta
			logging.Introspect("meta-question detected, self-disclosure prompt built")
		}
	}
	if kind != turnMeta {
		prompt = protocol.Compose(text, stage, e.rules(), chain)
	}

	parts := []llm.Part{{Text: prompt}}
	userParts := []session.ExchangePart{{Text: prompt}}
	if att != nil {
		parts = append(parts, llm.Part{MIMEType: att.MIMEType, Data: att.Data})
		userParts = append(userParts, session.ExchangePart{MIMEType: att.MIMEType, Data: att.Data})
	}

	history := toTurns(sess.ModelExchangeHistory)

	aiMsg := sess.Append(session.NewMessage(session.AuthorAI, ""))
	e.isLoading = true
	e.stage = protocol.StageProcessing
	e.mu.Unlock()

	if err := e.sessions.Update(sess); err != nil {
		logging.Session("failed to persist pre-turn state: %v", err)
	}

	if kind == turnStandard && chain {
		kind = turnChain
	}

	updates := make(chan TurnUpdate, 16)
	go e.runTurn(ctx, sess, aiMsg, history, parts, userParts, kind, updates)
	return updates, nil
}

// turnKind selects the post-completion stage rule.
type turnKind int

const (
	turnStandard turnKind = iota
	turnChain
	turnMeta
	turnSeed
)

// runTurn consumes the stream, folding deltas into the in-flight message and
// emitting an update per chunk. The exchange history records the turn only
// after the stream has fully ended.
func (e *Engine) runTurn(ctx context.Context, sess *session.Session, msg *session.Message, history []llm.Turn, parts []llm.Part, userParts []session.ExchangePart, kind turnKind, updates chan<- TurnUpdate) {
	defer close(updates)

	timer := logging.StartTimer(logging.CategoryAPI, "protocol turn")
	defer timer.Stop()

	deltas, errs := e.client.StreamTurn(ctx, history, parts)

	var state protocol.StreamState
	var citations []session.Citation

	for delta := range deltas {
		parsed := state.Apply(delta.Text)
		for _, c := range delta.Citations {
			citations = appendCitation(citations, session.Citation{URI: c.URI, Title: c.Title})
		}

		e.mu.Lock()
		msg.Content = state.Text()
		msg.Parsed = parsed
		msg.Citations = citations
		e.mu.Unlock()

		updates <- TurnUpdate{
			MessageID: msg.ID,
			Content:   state.Text(),
			Parsed:    parsed,
			Citations: citations,
			Stage:     protocol.StageProcessing,
		}
	}

	if err := <-errs; err != nil {
		e.failTurn(sess, msg, kind, err, updates)
		return
	}

	final := state.Parsed()

	e.mu.Lock()
	msg.Content = state.Text()
	msg.Parsed = final
	msg.Citations = citations
	sess.RecordExchange(userParts, state.Text())

	switch kind {
	case turnStandard:
		e.stage = protocol.NextStage(final, false)
	case turnChain:
		e.stage = protocol.NextStage(final, true)
	default:
		// Seed acknowledgement and meta answers always land on a fresh task.
		e.stage = protocol.StageAwaitingTask
	}
	stage := e.stage
	e.isLoading = false
	e.mu.Unlock()

	if err := e.sessions.Update(sess); err != nil {
		logging.Session("failed to persist completed turn: %v", err)
	}
	e.mirrorSession(sess)

	logging.Protocol("turn complete: %d section(s), next stage %s", len(final.Sections), stage)

	updates <- TurnUpdate{
		MessageID: msg.ID,
		Content:   state.Text(),
		Parsed:    final,
		Citations: citations,
		Stage:     stage,
		Done:      true,
	}
}

// failTurn overwrites the in-flight message with the generic error section
// and returns the stage to awaiting_task. A failed seed turn is terminal for
// the session instead: the model never acknowledged the directive.
func (e *Engine) failTurn(sess *session.Session, msg *session.Message, kind turnKind, cause error, updates chan<- TurnUpdate) {
	logging.APIError("turn failed: %v", cause)

	e.mu.Lock()
	msg.Content = errorSection
	msg.Parsed = protocol.Parse(errorSection)
	msg.Citations = nil
	if kind == turnSeed {
		e.stage = protocol.StageError
	} else {
		e.stage = protocol.StageAwaitingTask
	}
	stage := e.stage
	e.isLoading = false
	e.mu.Unlock()

	if err := e.sessions.Update(sess); err != nil {
		logging.Session("failed to persist failed turn: %v", err)
	}

	updates <- TurnUpdate{
		MessageID: msg.ID,
		Content:   msg.Content,
		Parsed:    msg.Parsed,
		Stage:     stage,
		Done:      true,
		Err:       cause,
	}
}

// Activate switches sessions and recomputes the stage from the new session's
// transcript. Rejected while a turn is in flight.
func (e *Engine) Activate(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isLoading {
		return ErrBusy
	}
	if err := e.sessions.Activate(id); err != nil {
		return err
	}
	e.stage = stageFor(e.sessions.Active())
	return nil
}

// Delete removes a session and returns how many remain. Deleting the active
// session promotes another; the caller creates a fresh session when zero
// remain. Rejected while a turn is in flight.
func (e *Engine) Delete(id string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.isLoading {
		return e.sessions.Len(), ErrBusy
	}
	remaining, err := e.sessions.Delete(id)
	if err != nil {
		return remaining, err
	}
	if e.mirror != nil {
		if merr := e.mirror.DeleteSession(id); merr != nil {
			logging.Store("mirror delete failed: %v", merr)
		}
	}
	if remaining > 0 {
		e.stage = stageFor(e.sessions.Active())
	}
	return remaining, nil
}

// Rename sets a session name and propagates it to the mirror.
func (e *Engine) Rename(id, name string) error {
	if err := e.sessions.Rename(id, name); err != nil {
		return err
	}
	e.mirrorSession(e.sessions.Get(id))
	return nil
}

// Translate attaches a translation to a message of the active session. It is
// independent of the protocol stream and touches only the message's
// translation fields.
func (e *Engine) Translate(ctx context.Context, messageID, lang string) error {
	if e.translator == nil {
		return ErrNoTranslator
	}

	e.mu.Lock()
	sess := e.sessions.Active()
	if sess == nil {
		e.mu.Unlock()
		return ErrNoSession
	}
	msg := findMessage(sess, messageID)
	if msg == nil {
		e.mu.Unlock()
		return fmt.Errorf("no message with id %s", messageID)
	}
	if msg.IsTranslating {
		e.mu.Unlock()
		return fmt.Errorf("message %s is already being translated", messageID)
	}
	msg.IsTranslating = true
	content := msg.Content
	e.mu.Unlock()

	translated, terr := e.translator.Translate(ctx, content, lang)

	e.mu.Lock()
	// A turn may have grown the message slice while the call was out, moving
	// the backing array. Resolve the message again before writing.
	msg = findMessage(sess, messageID)
	if msg == nil {
		e.mu.Unlock()
		return fmt.Errorf("no message with id %s", messageID)
	}
	msg.IsTranslating = false
	if terr != nil {
		logging.APIError("translation failed: %v", terr)
		msg.Translation = &session.Translation{Lang: lang, Content: translationFailed}
	} else {
		msg.Translation = &session.Translation{Lang: lang, Content: translated}
	}
	e.mu.Unlock()

	if err := e.sessions.Update(sess); err != nil {
		logging.Session("failed to persist translation: %v", err)
	}
	if terr != nil {
		return fmt.Errorf("translation failed: %w", terr)
	}
	return nil
}

func findMessage(sess *session.Session, id string) *session.Message {
	for i := range sess.Messages {
		if sess.Messages[i].ID == id {
			return &sess.Messages[i]
		}
	}
	return nil
}

func (e *Engine) rules() []string {
	if e.constraints == nil {
		return nil
	}
	return e.constraints.Rules()
}

func (e *Engine) mirrorSession(sess *session.Session) {
	if e.mirror == nil || sess == nil {
		return
	}
	if err := e.mirror.MirrorSession(sess); err != nil {
		logging.Store("mirror update failed: %v", err)
	}
}

// stageFor recomputes the stage for a rehydrated session from its last AI
// message.
func stageFor(sess *session.Session) protocol.Stage {
	if sess == nil {
		return protocol.StageInitializing
	}
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		msg := sess.Messages[i]
		if msg.Author != session.AuthorAI {
			continue
		}
		parsed := msg.Parsed
		if parsed == nil {
			parsed = protocol.Parse(msg.Content)
		}
		// An error transcript with no completed exchange means the directive
		// handshake never went through; the session stays terminal.
		if len(sess.ModelExchangeHistory) == 0 && parsed.Has("Error") {
			return protocol.StageError
		}
		return protocol.NextStage(parsed, parsed.IsChain)
	}
	return protocol.StageAwaitingTask
}

func toTurns(history []session.Exchange) []llm.Turn {
	turns := make([]llm.Turn, 0, len(history))
	for _, ex := range history {
		t := llm.Turn{Role: ex.Role}
		for _, p := range ex.Parts {
			t.Parts = append(t.Parts, llm.Part{Text: p.Text, MIMEType: p.MIMEType, Data: p.Data})
		}
		turns = append(turns, t)
	}
	return turns
}

func appendCitation(list []session.Citation, c session.Citation) []session.Citation {
	for _, existing := range list {
		if existing.URI == c.URI {
			return list
		}
	}
	return append(list, c)
}
