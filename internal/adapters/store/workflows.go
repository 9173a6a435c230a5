package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

const workflowColumns = "id, org_id, name, created_by, created_at, updated_at"

func (t *tx) InsertWorkflow(ctx context.Context, wf *core.Workflow) error {
	if wf.ID == "" {
		wf.ID = core.WorkflowID(uuid.NewString())
	}
	now := t.now()
	wf.CreatedAt, wf.UpdatedAt = now, now

	_, err := t.exec(ctx, `INSERT INTO workflows (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		string(wf.ID), string(wf.OrgID), wf.Name, nullString(wf.CreatedBy), wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting workflow: %w", err)
	}
	return nil
}

func (t *tx) GetWorkflow(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	return t.loadWorkflow(ctx, id, "")
}

func (t *tx) LockWorkflow(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	return t.loadWorkflow(ctx, id, t.d.lockSuffix)
}

func (t *tx) loadWorkflow(ctx context.Context, id core.WorkflowID, suffix string) (*core.Workflow, error) {
	row := t.queryRow(ctx, `SELECT `+workflowColumns+` FROM workflows WHERE id = ?`+suffix, string(id))
	wf, err := scanWorkflow(row)
	if err != nil {
		return nil, notFound(err, "workflow", string(id))
	}
	return wf, nil
}

func (t *tx) ListWorkflows(ctx context.Context, orgID core.OrgID) ([]*core.Workflow, error) {
	rows, err := t.query(ctx,
		`SELECT `+workflowColumns+` FROM workflows WHERE org_id = ? ORDER BY name, id`, string(orgID))
	if err != nil {
		return nil, fmt.Errorf("listing workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*core.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning workflow: %w", err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (t *tx) TouchWorkflow(ctx context.Context, id core.WorkflowID) error {
	if _, err := t.exec(ctx, `UPDATE workflows SET updated_at = ? WHERE id = ?`, t.now(), string(id)); err != nil {
		return fmt.Errorf("touching workflow: %w", err)
	}
	return nil
}

func (t *tx) DeleteWorkflow(ctx context.Context, id core.WorkflowID) error {
	if _, err := t.exec(ctx, `DELETE FROM workflow_stages WHERE workflow_id = ?`, string(id)); err != nil {
		return fmt.Errorf("deleting workflow stages: %w", err)
	}
	n, err := t.affected(ctx, `DELETE FROM workflows WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("deleting workflow: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound("workflow", string(id))
	}
	return nil
}

func (t *tx) CountWorkflowReferences(ctx context.Context, id core.WorkflowID) (core.WorkflowRefs, error) {
	var refs core.WorkflowRefs
	projects, err := t.count(ctx, `SELECT COUNT(*) FROM projects WHERE workflow_id = ?`, string(id))
	if err != nil {
		return refs, fmt.Errorf("counting projects on workflow: %w", err)
	}
	refs.Projects = projects

	for _, scope := range itemScopes {
		n, err := t.count(ctx, `SELECT COUNT(*) FROM `+scope.table+
			` WHERE workflow_stage_id IN (SELECT id FROM workflow_stages WHERE workflow_id = ?)`, string(id))
		if err != nil {
			return refs, fmt.Errorf("counting %s on workflow: %w", scope.table, err)
		}
		scope.add(&refs.Items, n)
	}
	return refs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*core.Workflow, error) {
	var (
		wf        core.Workflow
		id, orgID string
		createdBy sql.NullString
	)
	if err := row.Scan(&id, &orgID, &wf.Name, &createdBy, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
		return nil, err
	}
	wf.ID = core.WorkflowID(id)
	wf.OrgID = core.OrgID(orgID)
	wf.CreatedBy = stringPtr(createdBy)
	return &wf, nil
}
