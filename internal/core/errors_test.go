package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := (&DomainError{
		Category: ErrCatValidation,
		Code:     "CODE",
		Message:  "message",
	}).WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatValidation, Code: "CODE"}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := &DomainError{Category: ErrCatState, Code: "X", Message: "msg"}
	err.WithDetail("k", "v")
	if err.Details == nil || err.Details["k"] != "v" {
		t.Fatalf("expected details to be set")
	}
}

func TestEngineErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"invalid spec", ErrInvalidWorkflowSpec("bad"), ErrKindInvalidWorkflowSpec},
		{"duplicate done", ErrDuplicateDoneStage("wf", 2), ErrKindDuplicateDoneStage},
		{"missing done", ErrMissingDoneStage("wf"), ErrKindMissingDoneStage},
		{"stage in use", ErrStageInUse("st", "referenced"), ErrKindStageInUse},
		{"workflow in use", ErrWorkflowInUse("wf", 1, 0), ErrKindWorkflowInUse},
		{"cross workflow", ErrCrossWorkflowStage(ItemRef{Kind: KindTask, ID: "t"}, "st"), ErrKindCrossWorkflowStage},
		{"still in use", ErrWorkflowStillInUse("p", "wf", 3), ErrKindWorkflowStillInUse},
		{"ambiguous source", ErrAmbiguousSourceWorkflow("p", "st"), ErrKindAmbiguousSourceWorkflow},
		{"order target missing", ErrStageOrderTargetMissing("wf", 2), ErrKindStageOrderTargetMissing},
		{"project workflow missing", ErrProjectWorkflowMissing("p"), ErrKindProjectWorkflowMissing},
		{"org mismatch", ErrWorkflowOrgMismatch("wf", "org"), ErrKindWorkflowOrgMismatch},
		{"not found", ErrNotFound("stage", "st"), ErrKindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.sentinel) {
				t.Fatalf("expected %v to match sentinel %v", tt.err, tt.sentinel)
			}
			if IsRetryable(tt.err) {
				t.Fatalf("engine errors must not be retryable")
			}
		})
	}
}

func TestEngineErrors_DoNotCrossMatch(t *testing.T) {
	if errors.Is(ErrStageInUse("st", "x"), ErrKindWorkflowInUse) {
		t.Fatalf("stage in use must not match workflow in use")
	}
	if errors.Is(ErrInvalidWorkflowSpec("x"), ErrKindCrossWorkflowStage) {
		t.Fatalf("codes within one category must not cross match")
	}
}

func TestGetCategory(t *testing.T) {
	if GetCategory(ErrMissingDoneStage("wf")) != ErrCatState {
		t.Fatalf("expected state category")
	}
	if GetCategory(errors.New("plain")) != ErrCatInternal {
		t.Fatalf("expected internal category for non-domain error")
	}
	if !IsCategory(ErrNotFound("x", "y"), ErrCatNotFound) {
		t.Fatalf("expected category match")
	}
	if GetCode(ErrStageOrderTargetMissing("wf", 1)) != CodeStageOrderTargetMissing {
		t.Fatalf("expected code to be extracted")
	}
	if GetCode(errors.New("plain")) != "" {
		t.Fatalf("expected empty code for non-domain error")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrInvalidWorkflowSpec("x"), http.StatusUnprocessableEntity},
		{ErrCrossWorkflowStage(ItemRef{Kind: KindSubtask, ID: "s"}, "st"), http.StatusUnprocessableEntity},
		{ErrNotFound("workflow", "wf"), http.StatusNotFound},
		{ErrStageInUse("st", "done stage"), http.StatusConflict},
		{ErrDuplicateDoneStage("wf", 2), http.StatusConflict},
		{errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
