package protocol

// Stage is the conversation's position in the self-correction protocol.
type Stage int

const (
	StageInitializing Stage = iota
	StageAwaitingTask
	StageProcessing
	StageAwaitingCritique
	StageError
)

// String returns the display name for each stage.
func (s Stage) String() string {
	switch s {
	case StageInitializing:
		return "initializing"
	case StageAwaitingTask:
		return "awaiting_task"
	case StageProcessing:
		return "processing"
	case StageAwaitingCritique:
		return "awaiting_critique"
	case StageError:
		return "error"
	default:
		return "unknown"
	}
}

// Section titles that drive stage transitions.
const (
	draftTitle = "Draft"
	finalTitle = "Final Output"
)

// CanSubmit reports whether user input is accepted in the given stage.
// Submissions while a turn is in flight are rejected by the caller via its
// loading guard; this covers the stage-level rules.
func (s Stage) CanSubmit() bool {
	return s == StageAwaitingTask || s == StageAwaitingCritique
}

// NextStage decides where a completed response lands.
//
// A draft awaiting human critique is signaled by a "[Draft]" section without a
// "[Final Output]" section, and only in non-autonomous mode. Every other
// completion (chain responses, meta-question answers, responses that already
// carry the final output) returns to awaiting_task.
func NextStage(completed *ParsedResponse, chain bool) Stage {
	if completed == nil {
		return StageAwaitingTask
	}
	if !chain && completed.Has(draftTitle) && !completed.Has(finalTitle) {
		return StageAwaitingCritique
	}
	return StageAwaitingTask
}
