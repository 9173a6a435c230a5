package core

import (
	"fmt"
	"strings"
	"time"
)

// OrgID identifies the organization that owns workflows and projects.
type OrgID string

// WorkflowID uniquely identifies a workflow.
type WorkflowID string

// StageID uniquely identifies a workflow stage.
type StageID string

// StageCategory is the coarse bucket a stage belongs to. Work items mirror it
// in their status field.
type StageCategory string

const (
	CategoryBacklog    StageCategory = "backlog"
	CategoryInProgress StageCategory = "in_progress"
	CategoryQA         StageCategory = "qa"
	CategoryDone       StageCategory = "done"
)

// StageCategories lists every valid category in pipeline order.
var StageCategories = []StageCategory{
	CategoryBacklog,
	CategoryInProgress,
	CategoryQA,
	CategoryDone,
}

// ParseStageCategory validates a category name.
func ParseStageCategory(s string) (StageCategory, error) {
	c := StageCategory(strings.TrimSpace(strings.ToLower(s)))
	if !c.IsValid() {
		return "", ErrInvalidWorkflowSpec(fmt.Sprintf("unknown stage category %q", s))
	}
	return c, nil
}

// IsValid reports whether c is one of the known categories.
func (c StageCategory) IsValid() bool {
	switch c {
	case CategoryBacklog, CategoryInProgress, CategoryQA, CategoryDone:
		return true
	default:
		return false
	}
}

// Workflow is an org-owned ordered pipeline of stages.
type Workflow struct {
	ID        WorkflowID `json:"id" yaml:"id"`
	OrgID     OrgID      `json:"org_id" yaml:"org_id"`
	Name      string     `json:"name" yaml:"name"`
	CreatedBy *string    `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" yaml:"updated_at"`
}

// WorkflowStage is one step of a workflow.
type WorkflowStage struct {
	ID              StageID       `json:"id" yaml:"id"`
	WorkflowID      WorkflowID    `json:"workflow_id" yaml:"workflow_id"`
	Name            string        `json:"name" yaml:"name"`
	Order           int           `json:"order" yaml:"order"`
	Category        StageCategory `json:"category" yaml:"category"`
	ProgressPercent int           `json:"progress_percent" yaml:"progress_percent"`
	IsDone          bool          `json:"is_done" yaml:"is_done"`
	IsQA            bool          `json:"is_qa" yaml:"is_qa"`
	CountsAsWIP     bool          `json:"counts_as_wip" yaml:"counts_as_wip"`
	CreatedAt       time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" yaml:"updated_at"`
}

// Coherent reports whether the done marker, category and percent agree.
func (s *WorkflowStage) Coherent() bool {
	if s.IsDone {
		return s.Category == CategoryDone && s.ProgressPercent == 100
	}
	return s.Category != CategoryDone && s.ProgressPercent < 100
}

// Demote turns a done stage into the last in-progress step.
func (s *WorkflowStage) Demote() {
	s.IsDone = false
	s.Category = CategoryInProgress
	if s.ProgressPercent > DemotedStagePercent {
		s.ProgressPercent = DemotedStagePercent
	}
}

// StageSpec describes a stage to create.
type StageSpec struct {
	Name            string        `json:"name" yaml:"name" mapstructure:"name"`
	Order           int           `json:"order" yaml:"order" mapstructure:"order"`
	Category        StageCategory `json:"category" yaml:"category" mapstructure:"category"`
	ProgressPercent int           `json:"progress_percent" yaml:"progress_percent" mapstructure:"progress_percent"`
	IsDone          bool          `json:"is_done,omitempty" yaml:"is_done,omitempty" mapstructure:"is_done"`
	IsQA            bool          `json:"is_qa,omitempty" yaml:"is_qa,omitempty" mapstructure:"is_qa"`
	CountsAsWIP     bool          `json:"counts_as_wip,omitempty" yaml:"counts_as_wip,omitempty" mapstructure:"counts_as_wip"`
}

// Normalize applies the done promotion rules: a done category implies the
// done marker and vice versa, and both force 100 percent.
func (s StageSpec) Normalize() StageSpec {
	s.Name = strings.TrimSpace(s.Name)
	if s.Category == CategoryDone || s.IsDone {
		s.Category = CategoryDone
		s.IsDone = true
		s.ProgressPercent = 100
	}
	return s
}

// Validate checks a normalized spec.
func (s StageSpec) Validate() error {
	if s.Name == "" {
		return ErrInvalidWorkflowSpec("stage name is required")
	}
	if !s.Category.IsValid() {
		return ErrInvalidWorkflowSpec(fmt.Sprintf("stage %q: unknown category %q", s.Name, s.Category))
	}
	if s.ProgressPercent < 0 || s.ProgressPercent > 100 {
		return ErrInvalidWorkflowSpec(fmt.Sprintf("stage %q: progress_percent must be within 0..100", s.Name)).
			WithDetail("progress_percent", s.ProgressPercent)
	}
	if !s.IsDone && s.ProgressPercent == 100 {
		return ErrInvalidWorkflowSpec(fmt.Sprintf("stage %q: only the done stage may report 100 percent", s.Name))
	}
	return nil
}

// Stage builds an unsaved stage from the spec.
func (s StageSpec) Stage(workflowID WorkflowID, order int) *WorkflowStage {
	return &WorkflowStage{
		WorkflowID:      workflowID,
		Name:            s.Name,
		Order:           order,
		Category:        s.Category,
		ProgressPercent: s.ProgressPercent,
		IsDone:          s.IsDone,
		IsQA:            s.IsQA,
		CountsAsWIP:     s.CountsAsWIP,
	}
}

// StagePatch is a partial stage update. Nil fields are left untouched.
type StagePatch struct {
	Name            *string
	Category        *StageCategory
	ProgressPercent *int
	IsDone          *bool
	IsQA            *bool
	CountsAsWIP     *bool
	Order           *int
}

// IsEmpty reports whether the patch changes nothing.
func (p StagePatch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.ProgressPercent == nil &&
		p.IsDone == nil && p.IsQA == nil && p.CountsAsWIP == nil && p.Order == nil
}

// DefaultStageSpecs is the built-in template used when no stages are given.
func DefaultStageSpecs() []StageSpec {
	return []StageSpec{
		{Name: "Backlog", Order: 1, Category: CategoryBacklog, ProgressPercent: 0},
		{Name: "In Progress", Order: 2, Category: CategoryInProgress, ProgressPercent: 33, CountsAsWIP: true},
		{Name: "QA", Order: 3, Category: CategoryQA, ProgressPercent: 67, IsQA: true, CountsAsWIP: true},
		{Name: "Done", Order: 4, Category: CategoryDone, ProgressPercent: 100, IsDone: true},
	}
}
