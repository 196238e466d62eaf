package protocol

import "testing"

func TestNextStageCritiquePath(t *testing.T) {
	resp := Parse("[Task]\nDo it.\n\n[Draft]\nAttempt one.")
	if got := NextStage(resp, false); got != StageAwaitingCritique {
		t.Fatalf("expected awaiting_critique, got %s", got)
	}
}

func TestNextStageFinalPath(t *testing.T) {
	resp := Parse("[Draft]\nAttempt.\n\n[Final Output]\nDone.")
	for _, chain := range []bool{false, true} {
		if got := NextStage(resp, chain); got != StageAwaitingTask {
			t.Fatalf("chain=%v: expected awaiting_task, got %s", chain, got)
		}
	}
}

func TestNextStageChainAlwaysReturnsToTask(t *testing.T) {
	resp := Parse("[Draft]\nAttempt one.")
	if got := NextStage(resp, true); got != StageAwaitingTask {
		t.Fatalf("chain mode must never await critique, got %s", got)
	}
}

func TestNextStagePlainAnswer(t *testing.T) {
	resp := Parse("just an answer with no tags")
	if got := NextStage(resp, false); got != StageAwaitingTask {
		t.Fatalf("expected awaiting_task, got %s", got)
	}
}

func TestNextStageNilResponse(t *testing.T) {
	if got := NextStage(nil, false); got != StageAwaitingTask {
		t.Fatalf("expected awaiting_task for nil response, got %s", got)
	}
}

func TestCanSubmit(t *testing.T) {
	cases := []struct {
		stage Stage
		want  bool
	}{
		{StageInitializing, false},
		{StageAwaitingTask, true},
		{StageProcessing, false},
		{StageAwaitingCritique, true},
		{StageError, false},
	}
	for _, tc := range cases {
		if got := tc.stage.CanSubmit(); got != tc.want {
			t.Fatalf("%s: CanSubmit = %v, want %v", tc.stage, got, tc.want)
		}
	}
}

func TestStageString(t *testing.T) {
	if StageProcessing.String() != "processing" {
		t.Fatalf("unexpected stage name: %s", StageProcessing)
	}
	if Stage(99).String() != "unknown" {
		t.Fatalf("out-of-range stage should be unknown")
	}
}
