package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

const projectColumns = "id, org_id, name, workflow_id, progress_policy, created_at, updated_at"

func (t *tx) InsertProject(ctx context.Context, p *core.Project) error {
	if p.ID == "" {
		p.ID = core.ProjectID(uuid.NewString())
	}
	if p.ProgressPolicy == "" {
		p.ProgressPolicy = core.PolicySubtasksRollup
	}
	now := t.now()
	p.CreatedAt, p.UpdatedAt = now, now

	_, err := t.exec(ctx, `INSERT INTO projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(p.ID), string(p.OrgID), p.Name, workflowArg(p.WorkflowID), string(p.ProgressPolicy),
		p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

func (t *tx) GetProject(ctx context.Context, id core.ProjectID) (*core.Project, error) {
	return t.loadProject(ctx, id, "")
}

func (t *tx) LockProject(ctx context.Context, id core.ProjectID) (*core.Project, error) {
	return t.loadProject(ctx, id, t.d.lockSuffix)
}

func (t *tx) loadProject(ctx context.Context, id core.ProjectID, suffix string) (*core.Project, error) {
	row := t.queryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`+suffix, string(id))

	var (
		p             core.Project
		pid, org, pol string
		workflowID    sql.NullString
	)
	if err := row.Scan(&pid, &org, &p.Name, &workflowID, &pol, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, notFound(err, "project", string(id))
	}
	p.ID = core.ProjectID(pid)
	p.OrgID = core.OrgID(org)
	p.ProgressPolicy = core.ProgressPolicy(pol)
	if workflowID.Valid {
		wf := core.WorkflowID(workflowID.String)
		p.WorkflowID = &wf
	}
	return &p, nil
}

func (t *tx) UpdateProject(ctx context.Context, p *core.Project) error {
	p.UpdatedAt = t.now()
	n, err := t.affected(ctx, `UPDATE projects SET name = ?, workflow_id = ?, progress_policy = ?, updated_at = ?
		WHERE id = ?`,
		p.Name, workflowArg(p.WorkflowID), string(p.ProgressPolicy), p.UpdatedAt, string(p.ID))
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound("project", string(p.ID))
	}
	return nil
}

func workflowArg(id *core.WorkflowID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}
