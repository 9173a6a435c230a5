package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// itemScope describes one work item table and how to restrict it to a project.
type itemScope struct {
	kind  core.ItemKind
	table string
	// inProject filters rows to one project and takes the project id as its
	// only argument.
	inProject string
}

var itemScopes = []itemScope{
	{kind: core.KindEpic, table: "epics", inProject: "project_id = ?"},
	{kind: core.KindTask, table: "tasks", inProject: "epic_id IN (SELECT id FROM epics WHERE project_id = ?)"},
	{kind: core.KindSubtask, table: "subtasks", inProject: "task_id IN (SELECT t.id FROM tasks t " +
		"JOIN epics e ON e.id = t.epic_id WHERE e.project_id = ?)"},
}

func (s itemScope) add(c *core.ItemCounts, n int) {
	switch s.kind {
	case core.KindEpic:
		c.Epics += n
	case core.KindTask:
		c.Tasks += n
	case core.KindSubtask:
		c.Subtasks += n
	}
}

func scopeFor(kind core.ItemKind) (itemScope, error) {
	for _, s := range itemScopes {
		if s.kind == kind {
			return s, nil
		}
	}
	return itemScope{}, core.ErrValidation(core.CodeInvalidItemKind, fmt.Sprintf("unknown item kind %q", kind))
}

// =============================================================================
// Inserts
// =============================================================================

func (t *tx) InsertEpic(ctx context.Context, e *core.Epic) error {
	if e.ID == "" {
		e.ID = core.EpicID(uuid.NewString())
	}
	if e.Status == "" {
		e.Status = core.DefaultItemStatus
	}
	now := t.now()
	e.CreatedAt, e.UpdatedAt = now, now

	var policy sql.NullString
	if e.ProgressPolicy != nil {
		policy = sql.NullString{String: string(*e.ProgressPolicy), Valid: true}
	}
	_, err := t.exec(ctx, `INSERT INTO epics
		(id, project_id, title, progress_policy, workflow_stage_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.ProjectID), e.Title, policy, stageArg(e.WorkflowStageID), e.Status,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting epic: %w", err)
	}
	return nil
}

func (t *tx) InsertTask(ctx context.Context, tk *core.Task) error {
	if tk.ID == "" {
		tk.ID = core.TaskID(uuid.NewString())
	}
	if tk.Status == "" {
		tk.Status = core.DefaultItemStatus
	}
	now := t.now()
	tk.CreatedAt, tk.UpdatedAt = now, now

	_, err := t.exec(ctx, `INSERT INTO tasks
		(id, epic_id, title, workflow_stage_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(tk.ID), string(tk.EpicID), tk.Title, stageArg(tk.WorkflowStageID), tk.Status,
		tk.CreatedAt, tk.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (t *tx) InsertSubtask(ctx context.Context, s *core.Subtask) error {
	if s.ID == "" {
		s.ID = core.SubtaskID(uuid.NewString())
	}
	if s.Status == "" {
		s.Status = core.DefaultItemStatus
	}
	now := t.now()
	s.CreatedAt, s.UpdatedAt = now, now

	_, err := t.exec(ctx, `INSERT INTO subtasks
		(id, task_id, title, workflow_stage_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(s.ID), string(s.TaskID), s.Title, stageArg(s.WorkflowStageID), s.Status,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting subtask: %w", err)
	}
	return nil
}

// =============================================================================
// Reads
// =============================================================================

const (
	epicColumns    = "id, project_id, title, progress_policy, workflow_stage_id, status, created_at, updated_at"
	taskColumns    = "id, epic_id, title, workflow_stage_id, status, created_at, updated_at"
	subtaskColumns = "id, task_id, title, workflow_stage_id, status, created_at, updated_at"
)

func (t *tx) GetEpic(ctx context.Context, id core.EpicID) (*core.Epic, error) {
	e, err := scanEpic(t.queryRow(ctx, `SELECT `+epicColumns+` FROM epics WHERE id = ?`, string(id)))
	if err != nil {
		return nil, notFound(err, "epic", string(id))
	}
	return e, nil
}

func (t *tx) GetTask(ctx context.Context, id core.TaskID) (*core.Task, error) {
	tk, err := scanTask(t.queryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, string(id)))
	if err != nil {
		return nil, notFound(err, "task", string(id))
	}
	return tk, nil
}

func (t *tx) GetSubtask(ctx context.Context, id core.SubtaskID) (*core.Subtask, error) {
	s, err := scanSubtask(t.queryRow(ctx, `SELECT `+subtaskColumns+` FROM subtasks WHERE id = ?`, string(id)))
	if err != nil {
		return nil, notFound(err, "subtask", string(id))
	}
	return s, nil
}

func (t *tx) ListEpics(ctx context.Context, projectID core.ProjectID) ([]*core.Epic, error) {
	rows, err := t.query(ctx, `SELECT `+epicColumns+` FROM epics
		WHERE project_id = ? ORDER BY created_at, id`, string(projectID))
	if err != nil {
		return nil, fmt.Errorf("listing epics: %w", err)
	}
	defer rows.Close()

	var epics []*core.Epic
	for rows.Next() {
		e, err := scanEpic(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning epic: %w", err)
		}
		epics = append(epics, e)
	}
	return epics, rows.Err()
}

func (t *tx) ListTasks(ctx context.Context, epicID core.EpicID) ([]*core.Task, error) {
	rows, err := t.query(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE epic_id = ? ORDER BY created_at, id`, string(epicID))
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*core.Task
	for rows.Next() {
		tk, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, tk)
	}
	return tasks, rows.Err()
}

func (t *tx) ListSubtasks(ctx context.Context, taskID core.TaskID) ([]*core.Subtask, error) {
	rows, err := t.query(ctx, `SELECT `+subtaskColumns+` FROM subtasks
		WHERE task_id = ? ORDER BY created_at, id`, string(taskID))
	if err != nil {
		return nil, fmt.Errorf("listing subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []*core.Subtask
	for rows.Next() {
		s, err := scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subtask: %w", err)
		}
		subtasks = append(subtasks, s)
	}
	return subtasks, rows.Err()
}

func (t *tx) ListEpicSubtaskStages(ctx context.Context, epicID core.EpicID) ([]*core.StageID, error) {
	rows, err := t.query(ctx, `SELECT s.workflow_stage_id FROM subtasks s
		JOIN tasks t ON t.id = s.task_id
		WHERE t.epic_id = ? ORDER BY t.created_at, t.id, s.created_at, s.id`, string(epicID))
	if err != nil {
		return nil, fmt.Errorf("listing epic subtasks: %w", err)
	}
	defer rows.Close()

	var stages []*core.StageID
	for rows.Next() {
		var ns sql.NullString
		if err := rows.Scan(&ns); err != nil {
			return nil, fmt.Errorf("scanning subtask stage: %w", err)
		}
		stages = append(stages, stagePtr(ns))
	}
	return stages, rows.Err()
}

func (t *tx) ItemProject(ctx context.Context, ref core.ItemRef) (core.ProjectID, error) {
	var query string
	switch ref.Kind {
	case core.KindEpic:
		query = `SELECT project_id FROM epics WHERE id = ?`
	case core.KindTask:
		query = `SELECT e.project_id FROM tasks t JOIN epics e ON e.id = t.epic_id WHERE t.id = ?`
	case core.KindSubtask:
		query = `SELECT e.project_id FROM subtasks s
			JOIN tasks t ON t.id = s.task_id
			JOIN epics e ON e.id = t.epic_id
			WHERE s.id = ?`
	default:
		return "", core.ErrValidation(core.CodeInvalidItemKind, fmt.Sprintf("unknown item kind %q", ref.Kind))
	}

	var projectID string
	if err := t.queryRow(ctx, query, ref.ID).Scan(&projectID); err != nil {
		return "", notFound(err, string(ref.Kind), ref.ID)
	}
	return core.ProjectID(projectID), nil
}

// =============================================================================
// Stage references
// =============================================================================

func (t *tx) SetItemStage(ctx context.Context, ref core.ItemRef, stage *core.StageID, status *string) error {
	scope, err := scopeFor(ref.Kind)
	if err != nil {
		return err
	}

	query := `UPDATE ` + scope.table + ` SET workflow_stage_id = ?, updated_at = ?`
	args := []any{stageArg(stage), t.now()}
	if status != nil {
		query += `, status = ?`
		args = append(args, *status)
	}
	query += ` WHERE id = ?`
	args = append(args, ref.ID)

	n, err := t.affected(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("setting stage of %s: %w", ref, err)
	}
	if n == 0 {
		return core.ErrNotFound(string(ref.Kind), ref.ID)
	}
	return nil
}

func (t *tx) ListStagedItems(ctx context.Context, projectID core.ProjectID) ([]core.StagedItem, error) {
	var items []core.StagedItem
	for _, scope := range itemScopes {
		rows, err := t.query(ctx, `SELECT id, workflow_stage_id, status FROM `+scope.table+
			` WHERE `+scope.inProject+` AND workflow_stage_id IS NOT NULL ORDER BY id`, string(projectID))
		if err != nil {
			return nil, fmt.Errorf("listing staged %s: %w", scope.table, err)
		}
		for rows.Next() {
			var id, stageID, status string
			if err := rows.Scan(&id, &stageID, &status); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning staged %s: %w", scope.table, err)
			}
			items = append(items, core.StagedItem{
				Ref:     core.ItemRef{Kind: scope.kind, ID: id},
				StageID: core.StageID(stageID),
				Status:  status,
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (t *tx) CountProjectItemsOnWorkflow(ctx context.Context, projectID core.ProjectID, workflowID core.WorkflowID) (core.ItemCounts, error) {
	var counts core.ItemCounts
	for _, scope := range itemScopes {
		n, err := t.count(ctx, `SELECT COUNT(*) FROM `+scope.table+` WHERE `+scope.inProject+
			` AND workflow_stage_id IN (SELECT id FROM workflow_stages WHERE workflow_id = ?)`,
			string(projectID), string(workflowID))
		if err != nil {
			return counts, fmt.Errorf("counting %s on workflow: %w", scope.table, err)
		}
		scope.add(&counts, n)
	}
	return counts, nil
}

func (t *tx) RemapProjectStage(ctx context.Context, projectID core.ProjectID, from, to core.StageID, status string) (core.ItemCounts, error) {
	var counts core.ItemCounts
	now := t.now()
	for _, scope := range itemScopes {
		n, err := t.affected(ctx, `UPDATE `+scope.table+` SET workflow_stage_id = ?, status = ?, updated_at = ?
			WHERE workflow_stage_id = ? AND `+scope.inProject,
			string(to), status, now, string(from), string(projectID))
		if err != nil {
			return counts, fmt.Errorf("remapping %s: %w", scope.table, err)
		}
		scope.add(&counts, n)
	}
	return counts, nil
}

func (t *tx) ClearProjectStage(ctx context.Context, projectID core.ProjectID, from core.StageID) (core.ItemCounts, error) {
	var counts core.ItemCounts
	now := t.now()
	for _, scope := range itemScopes {
		n, err := t.affected(ctx, `UPDATE `+scope.table+` SET workflow_stage_id = NULL, updated_at = ?
			WHERE workflow_stage_id = ? AND `+scope.inProject,
			now, string(from), string(projectID))
		if err != nil {
			return counts, fmt.Errorf("clearing %s: %w", scope.table, err)
		}
		scope.add(&counts, n)
	}
	return counts, nil
}

func (t *tx) ClearProjectStages(ctx context.Context, projectID core.ProjectID) (core.ItemCounts, error) {
	var counts core.ItemCounts
	now := t.now()
	for _, scope := range itemScopes {
		n, err := t.affected(ctx, `UPDATE `+scope.table+` SET workflow_stage_id = NULL, updated_at = ?
			WHERE workflow_stage_id IS NOT NULL AND `+scope.inProject,
			now, string(projectID))
		if err != nil {
			return counts, fmt.Errorf("clearing %s: %w", scope.table, err)
		}
		scope.add(&counts, n)
	}
	return counts, nil
}

// =============================================================================
// Scanning
// =============================================================================

func scanEpic(row rowScanner) (*core.Epic, error) {
	var (
		e                core.Epic
		id, projectID    string
		policy, stageRef sql.NullString
	)
	if err := row.Scan(&id, &projectID, &e.Title, &policy, &stageRef, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.ID = core.EpicID(id)
	e.ProjectID = core.ProjectID(projectID)
	e.WorkflowStageID = stagePtr(stageRef)
	if policy.Valid {
		p := core.ProgressPolicy(policy.String)
		e.ProgressPolicy = &p
	}
	return &e, nil
}

func scanTask(row rowScanner) (*core.Task, error) {
	var (
		tk         core.Task
		id, epicID string
		stageRef   sql.NullString
	)
	if err := row.Scan(&id, &epicID, &tk.Title, &stageRef, &tk.Status, &tk.CreatedAt, &tk.UpdatedAt); err != nil {
		return nil, err
	}
	tk.ID = core.TaskID(id)
	tk.EpicID = core.EpicID(epicID)
	tk.WorkflowStageID = stagePtr(stageRef)
	return &tk, nil
}

func scanSubtask(row rowScanner) (*core.Subtask, error) {
	var (
		s          core.Subtask
		id, taskID string
		stageRef   sql.NullString
	)
	if err := row.Scan(&id, &taskID, &s.Title, &stageRef, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.ID = core.SubtaskID(id)
	s.TaskID = core.TaskID(taskID)
	s.WorkflowStageID = stagePtr(stageRef)
	return &s, nil
}
