package core

import (
	"fmt"
	"strings"
	"time"
)

// ProjectID uniquely identifies a project.
type ProjectID string

// EpicID uniquely identifies an epic.
type EpicID string

// TaskID uniquely identifies a task.
type TaskID string

// SubtaskID uniquely identifies a subtask.
type SubtaskID string

// ProgressPolicy selects how a project or epic derives progress.
type ProgressPolicy string

const (
	PolicySubtasksRollup ProgressPolicy = "subtasks_rollup"
	PolicyWorkflowStage  ProgressPolicy = "workflow_stage"
)

// ParseProgressPolicy validates a policy name.
func ParseProgressPolicy(s string) (ProgressPolicy, error) {
	p := ProgressPolicy(strings.TrimSpace(strings.ToLower(s)))
	switch p {
	case PolicySubtasksRollup, PolicyWorkflowStage:
		return p, nil
	default:
		return "", ErrValidation(CodeInvalidPolicy, fmt.Sprintf("unknown progress policy %q", s))
	}
}

// ItemKind names the kind of work item that can sit on a stage.
type ItemKind string

const (
	KindEpic    ItemKind = "epic"
	KindTask    ItemKind = "task"
	KindSubtask ItemKind = "subtask"
)

// ParseItemKind validates a work item kind.
func ParseItemKind(s string) (ItemKind, error) {
	k := ItemKind(strings.TrimSpace(strings.ToLower(s)))
	switch k {
	case KindEpic, KindTask, KindSubtask:
		return k, nil
	default:
		return "", ErrValidation(CodeInvalidItemKind, fmt.Sprintf("unknown item kind %q", s))
	}
}

// ItemRef points at one work item.
type ItemRef struct {
	Kind ItemKind `json:"kind" yaml:"kind"`
	ID   string   `json:"id" yaml:"id"`
}

func (r ItemRef) String() string {
	return string(r.Kind) + ":" + r.ID
}

// Project is the partial project contract the engine relies on.
type Project struct {
	ID             ProjectID      `json:"id" yaml:"id"`
	OrgID          OrgID          `json:"org_id" yaml:"org_id"`
	Name           string         `json:"name" yaml:"name"`
	WorkflowID     *WorkflowID    `json:"workflow_id,omitempty" yaml:"workflow_id,omitempty"`
	ProgressPolicy ProgressPolicy `json:"progress_policy" yaml:"progress_policy"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" yaml:"updated_at"`
}

// ProjectPatch carries the non-workflow fields updated alongside a
// workflow reassignment.
type ProjectPatch struct {
	Name           *string
	ProgressPolicy *ProgressPolicy
}

// Epic groups tasks inside a project.
type Epic struct {
	ID              EpicID          `json:"id" yaml:"id"`
	ProjectID       ProjectID       `json:"project_id" yaml:"project_id"`
	Title           string          `json:"title" yaml:"title"`
	ProgressPolicy  *ProgressPolicy `json:"progress_policy,omitempty" yaml:"progress_policy,omitempty"`
	WorkflowStageID *StageID        `json:"workflow_stage_id,omitempty" yaml:"workflow_stage_id,omitempty"`
	Status          string          `json:"status" yaml:"status"`
	CreatedAt       time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" yaml:"updated_at"`
}

// Task is a unit of work under an epic.
type Task struct {
	ID              TaskID    `json:"id" yaml:"id"`
	EpicID          EpicID    `json:"epic_id" yaml:"epic_id"`
	Title           string    `json:"title" yaml:"title"`
	WorkflowStageID *StageID  `json:"workflow_stage_id,omitempty" yaml:"workflow_stage_id,omitempty"`
	Status          string    `json:"status" yaml:"status"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// Subtask is a unit of work under a task.
type Subtask struct {
	ID              SubtaskID `json:"id" yaml:"id"`
	TaskID          TaskID    `json:"task_id" yaml:"task_id"`
	Title           string    `json:"title" yaml:"title"`
	WorkflowStageID *StageID  `json:"workflow_stage_id,omitempty" yaml:"workflow_stage_id,omitempty"`
	Status          string    `json:"status" yaml:"status"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"updated_at"`
}

// StagedItem is a work item that currently references a stage.
type StagedItem struct {
	Ref     ItemRef `json:"ref"`
	StageID StageID `json:"workflow_stage_id"`
	Status  string  `json:"status"`
}

// ItemCounts tallies work items per kind.
type ItemCounts struct {
	Epics    int `json:"epics" yaml:"epics"`
	Tasks    int `json:"tasks" yaml:"tasks"`
	Subtasks int `json:"subtasks" yaml:"subtasks"`
}

// Total returns the number of items across all kinds.
func (c ItemCounts) Total() int {
	return c.Epics + c.Tasks + c.Subtasks
}

// Add returns the sum of two tallies.
func (c ItemCounts) Add(o ItemCounts) ItemCounts {
	return ItemCounts{
		Epics:    c.Epics + o.Epics,
		Tasks:    c.Tasks + o.Tasks,
		Subtasks: c.Subtasks + o.Subtasks,
	}
}

// Inc bumps the counter for kind.
func (c *ItemCounts) Inc(kind ItemKind) {
	switch kind {
	case KindEpic:
		c.Epics++
	case KindTask:
		c.Tasks++
	case KindSubtask:
		c.Subtasks++
	}
}
