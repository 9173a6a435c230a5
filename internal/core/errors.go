package core

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatState      ErrorCategory = "state"      // Invariant broken by a mutation
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Blocked by live references
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrState creates a state error.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatState,
		Code:     code,
		Message:  message,
	}
}

// ErrConflict creates a conflict error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatConflict,
		Code:     code,
		Message:  message,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     CodeNotFound,
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
		Details:  map[string]interface{}{"resource": resource, "id": id},
	}
}

// ErrInvalidWorkflowSpec reports malformed stage specs or stage updates.
func ErrInvalidWorkflowSpec(message string) *DomainError {
	return ErrValidation(CodeInvalidWorkflowSpec, message)
}

// ErrDuplicateDoneStage reports more than one done stage after a mutation.
func ErrDuplicateDoneStage(workflowID WorkflowID, count int) *DomainError {
	return ErrState(CodeDuplicateDoneStage, fmt.Sprintf("workflow %s has %d done stages", workflowID, count)).
		WithDetail("workflow_id", string(workflowID)).
		WithDetail("done_stages", count)
}

// ErrMissingDoneStage reports a workflow left without a done stage.
func ErrMissingDoneStage(workflowID WorkflowID) *DomainError {
	return ErrState(CodeMissingDoneStage, fmt.Sprintf("workflow %s has no done stage", workflowID)).
		WithDetail("workflow_id", string(workflowID))
}

// ErrStageInUse reports a stage delete blocked by its role or references.
func ErrStageInUse(stageID StageID, reason string) *DomainError {
	return ErrConflict(CodeStageInUse, fmt.Sprintf("stage %s cannot be deleted: %s", stageID, reason)).
		WithDetail("workflow_stage_id", string(stageID))
}

// ErrWorkflowInUse reports a workflow delete blocked by references.
func ErrWorkflowInUse(workflowID WorkflowID, projects, items int) *DomainError {
	return ErrConflict(CodeWorkflowInUse,
		fmt.Sprintf("workflow %s is referenced by %d project(s) and %d work item(s)", workflowID, projects, items)).
		WithDetail("workflow_id", string(workflowID)).
		WithDetail("projects", projects).
		WithDetail("items", items)
}

// ErrCrossWorkflowStage reports a stage assignment outside the project's workflow.
func ErrCrossWorkflowStage(item ItemRef, stageID StageID) *DomainError {
	return ErrValidation(CodeCrossWorkflowStage,
		fmt.Sprintf("stage %s does not belong to the workflow of %s's project", stageID, item)).
		WithDetail("item", item.String()).
		WithDetail("workflow_stage_id", string(stageID))
}

// ErrWorkflowStillInUse reports a reassignment blocked by staged items.
func ErrWorkflowStillInUse(projectID ProjectID, workflowID WorkflowID, items int) *DomainError {
	return ErrConflict(CodeWorkflowStillInUse,
		fmt.Sprintf("project %s still has %d work item(s) on stages of workflow %s; clear or migrate them first",
			projectID, items, workflowID)).
		WithDetail("project_id", string(projectID)).
		WithDetail("workflow_id", string(workflowID)).
		WithDetail("items", items)
}

// ErrAmbiguousSourceWorkflow reports staged items pointing outside the
// project's recorded workflow.
func ErrAmbiguousSourceWorkflow(projectID ProjectID, stageID StageID) *DomainError {
	return ErrState(CodeAmbiguousSourceWorkflow,
		fmt.Sprintf("project %s has items on stage %s which is not part of its current workflow", projectID, stageID)).
		WithDetail("project_id", string(projectID)).
		WithDetail("workflow_stage_id", string(stageID))
}

// ErrStageOrderTargetMissing reports a source order with no counterpart in
// the target workflow.
func ErrStageOrderTargetMissing(targetID WorkflowID, order int) *DomainError {
	return ErrValidation(CodeStageOrderTargetMissing,
		fmt.Sprintf("workflow %s has no stage at order %d; pass clear_unmapped or use strategy=clear", targetID, order)).
		WithDetail("workflow_id", string(targetID)).
		WithDetail("stage_order", order)
}

// ErrProjectWorkflowMissing reports staged items on a project with no workflow.
func ErrProjectWorkflowMissing(projectID ProjectID) *DomainError {
	return ErrValidation(CodeProjectWorkflowMissing,
		fmt.Sprintf("project %s has staged items but no workflow; use strategy=clear", projectID)).
		WithDetail("project_id", string(projectID))
}

// ErrWorkflowOrgMismatch reports a workflow owned by another organization.
func ErrWorkflowOrgMismatch(workflowID WorkflowID, orgID OrgID) *DomainError {
	return ErrValidation(CodeWorkflowOrgMismatch,
		fmt.Sprintf("workflow %s does not belong to organization %s", workflowID, orgID)).
		WithDetail("workflow_id", string(workflowID)).
		WithDetail("org_id", string(orgID))
}

// Sentinels for errors.Is matching by category and code.
var (
	ErrKindInvalidWorkflowSpec     = &DomainError{Category: ErrCatValidation, Code: CodeInvalidWorkflowSpec}
	ErrKindDuplicateDoneStage      = &DomainError{Category: ErrCatState, Code: CodeDuplicateDoneStage}
	ErrKindMissingDoneStage        = &DomainError{Category: ErrCatState, Code: CodeMissingDoneStage}
	ErrKindStageInUse              = &DomainError{Category: ErrCatConflict, Code: CodeStageInUse}
	ErrKindWorkflowInUse           = &DomainError{Category: ErrCatConflict, Code: CodeWorkflowInUse}
	ErrKindCrossWorkflowStage      = &DomainError{Category: ErrCatValidation, Code: CodeCrossWorkflowStage}
	ErrKindWorkflowStillInUse      = &DomainError{Category: ErrCatConflict, Code: CodeWorkflowStillInUse}
	ErrKindAmbiguousSourceWorkflow = &DomainError{Category: ErrCatState, Code: CodeAmbiguousSourceWorkflow}
	ErrKindStageOrderTargetMissing = &DomainError{Category: ErrCatValidation, Code: CodeStageOrderTargetMissing}
	ErrKindProjectWorkflowMissing  = &DomainError{Category: ErrCatValidation, Code: CodeProjectWorkflowMissing}
	ErrKindWorkflowOrgMismatch     = &DomainError{Category: ErrCatValidation, Code: CodeWorkflowOrgMismatch}
	ErrKindNotFound                = &DomainError{Category: ErrCatNotFound, Code: CodeNotFound}
	ErrKindUniqueViolation         = &DomainError{Category: ErrCatConflict, Code: CodeUniqueViolation}
	ErrKindCheckViolation          = &DomainError{Category: ErrCatValidation, Code: CodeCheckViolation}
)

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// GetCode extracts the error code, or "" for non-domain errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// HTTPStatus maps an error to the status an HTTP layer should answer with.
func HTTPStatus(err error) int {
	switch GetCategory(err) {
	case ErrCatValidation:
		return http.StatusUnprocessableEntity
	case ErrCatNotFound:
		return http.StatusNotFound
	case ErrCatConflict, ErrCatState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Predefined error codes
const (
	CodeInvalidWorkflowSpec     = "INVALID_WORKFLOW_SPEC"
	CodeDuplicateDoneStage      = "DUPLICATE_DONE_STAGE"
	CodeMissingDoneStage        = "MISSING_DONE_STAGE"
	CodeStageInUse              = "STAGE_IN_USE"
	CodeWorkflowInUse           = "WORKFLOW_IN_USE"
	CodeCrossWorkflowStage      = "CROSS_WORKFLOW_STAGE"
	CodeWorkflowStillInUse      = "WORKFLOW_STILL_IN_USE"
	CodeAmbiguousSourceWorkflow = "AMBIGUOUS_SOURCE_WORKFLOW"
	CodeStageOrderTargetMissing = "STAGE_ORDER_TARGET_MISSING"
	CodeProjectWorkflowMissing  = "PROJECT_WORKFLOW_MISSING"
	CodeWorkflowOrgMismatch     = "WORKFLOW_ORG_MISMATCH"

	// Store error codes
	CodeNotFound        = "NOT_FOUND"
	CodeUniqueViolation = "UNIQUE_VIOLATION"
	CodeCheckViolation  = "CHECK_VIOLATION"

	// Boundary validation codes
	CodeInvalidPolicy   = "INVALID_PROGRESS_POLICY"
	CodeInvalidItemKind = "INVALID_ITEM_KIND"
	CodeInvalidStrategy = "INVALID_STRATEGY"
	CodeInvalidProject  = "INVALID_PROJECT"
)
