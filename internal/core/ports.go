package core

import (
	"context"
)

// =============================================================================
// Store Port
// =============================================================================

// Store is a transactional relational store. Every engine operation runs
// inside exactly one WithTx call.
type Store interface {
	// WithTx runs fn in a transaction. The transaction commits when fn
	// returns nil and rolls back on error or panic.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying connection pool.
	Close() error
}

// Tx is the set of operations available inside a transaction.
type Tx interface {
	WorkflowRepository
	StageRepository
	ProjectRepository
	ItemRepository
}

// =============================================================================
// Workflow Repository
// =============================================================================

// WorkflowRefs counts what still points at a workflow.
type WorkflowRefs struct {
	Projects int
	Items    ItemCounts
}

// WorkflowRepository persists workflow rows.
type WorkflowRepository interface {
	InsertWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id WorkflowID) (*Workflow, error)
	ListWorkflows(ctx context.Context, orgID OrgID) ([]*Workflow, error)

	// LockWorkflow loads the workflow row with a row-level write lock that
	// serializes stage renumbering for that workflow.
	LockWorkflow(ctx context.Context, id WorkflowID) (*Workflow, error)

	// TouchWorkflow bumps updated_at.
	TouchWorkflow(ctx context.Context, id WorkflowID) error

	DeleteWorkflow(ctx context.Context, id WorkflowID) error
	CountWorkflowReferences(ctx context.Context, id WorkflowID) (WorkflowRefs, error)
}

// =============================================================================
// Stage Repository
// =============================================================================

// StageRepository persists workflow stages.
type StageRepository interface {
	InsertStage(ctx context.Context, stage *WorkflowStage) error
	GetStage(ctx context.Context, id StageID) (*WorkflowStage, error)

	// ListStages returns the stages of a workflow sorted by order.
	ListStages(ctx context.Context, workflowID WorkflowID) ([]*WorkflowStage, error)

	// UpdateStage writes every column except the order.
	UpdateStage(ctx context.Context, stage *WorkflowStage) error

	// BulkUpdateStageOrders sets the order of every listed stage in a single
	// statement.
	BulkUpdateStageOrders(ctx context.Context, workflowID WorkflowID, orders map[StageID]int) error

	DeleteStage(ctx context.Context, id StageID) error

	// CountStageReferences counts work items pointing at the stage.
	CountStageReferences(ctx context.Context, id StageID) (ItemCounts, error)

	// SyncStageStatus sets status on every work item pointing at the stage.
	SyncStageStatus(ctx context.Context, id StageID, status string) (ItemCounts, error)
}

// =============================================================================
// Project Repository
// =============================================================================

// ProjectRepository persists the partial project contract.
type ProjectRepository interface {
	InsertProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id ProjectID) (*Project, error)

	// LockProject loads the project row with a row-level write lock.
	LockProject(ctx context.Context, id ProjectID) (*Project, error)

	UpdateProject(ctx context.Context, p *Project) error
}

// =============================================================================
// Work Item Repository
// =============================================================================

// ItemRepository persists epics, tasks and subtasks.
type ItemRepository interface {
	InsertEpic(ctx context.Context, e *Epic) error
	InsertTask(ctx context.Context, t *Task) error
	InsertSubtask(ctx context.Context, s *Subtask) error

	GetEpic(ctx context.Context, id EpicID) (*Epic, error)
	GetTask(ctx context.Context, id TaskID) (*Task, error)
	GetSubtask(ctx context.Context, id SubtaskID) (*Subtask, error)

	ListEpics(ctx context.Context, projectID ProjectID) ([]*Epic, error)
	ListTasks(ctx context.Context, epicID EpicID) ([]*Task, error)
	ListSubtasks(ctx context.Context, taskID TaskID) ([]*Subtask, error)

	// ListEpicSubtaskStages returns the stage reference of every subtask of
	// every task of an epic. Entries are nil for unstaged subtasks.
	ListEpicSubtaskStages(ctx context.Context, epicID EpicID) ([]*StageID, error)

	// ItemProject resolves the project an item belongs to through its
	// parent chain.
	ItemProject(ctx context.Context, ref ItemRef) (ProjectID, error)

	// SetItemStage points the item at stage (nil clears it). A non-nil
	// status is written in the same statement.
	SetItemStage(ctx context.Context, ref ItemRef, stage *StageID, status *string) error

	// ListStagedItems returns every item of the project with a stage.
	ListStagedItems(ctx context.Context, projectID ProjectID) ([]StagedItem, error)

	// CountProjectItemsOnWorkflow counts the project's items on stages of
	// the given workflow.
	CountProjectItemsOnWorkflow(ctx context.Context, projectID ProjectID, workflowID WorkflowID) (ItemCounts, error)

	// RemapProjectStage moves the project's items from one stage to another
	// and sets their status.
	RemapProjectStage(ctx context.Context, projectID ProjectID, from, to StageID, status string) (ItemCounts, error)

	// ClearProjectStage clears the stage of the project's items on one stage.
	ClearProjectStage(ctx context.Context, projectID ProjectID, from StageID) (ItemCounts, error)

	// ClearProjectStages clears the stage of every item of the project.
	ClearProjectStages(ctx context.Context, projectID ProjectID) (ItemCounts, error)
}
