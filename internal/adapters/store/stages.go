package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

const stageColumns = "id, workflow_id, name, stage_order, category, progress_percent, " +
	"is_done, is_qa, counts_as_wip, created_at, updated_at"

func (t *tx) InsertStage(ctx context.Context, st *core.WorkflowStage) error {
	if st.ID == "" {
		st.ID = core.StageID(uuid.NewString())
	}
	now := t.now()
	st.CreatedAt, st.UpdatedAt = now, now

	_, err := t.exec(ctx, `INSERT INTO workflow_stages (`+stageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(st.ID), string(st.WorkflowID), st.Name, st.Order, string(st.Category), st.ProgressPercent,
		st.IsDone, st.IsQA, st.CountsAsWIP, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting stage %q: %w", st.Name, err)
	}
	return nil
}

func (t *tx) GetStage(ctx context.Context, id core.StageID) (*core.WorkflowStage, error) {
	row := t.queryRow(ctx, `SELECT `+stageColumns+` FROM workflow_stages WHERE id = ?`, string(id))
	st, err := scanStage(row)
	if err != nil {
		return nil, notFound(err, "workflow stage", string(id))
	}
	return st, nil
}

func (t *tx) ListStages(ctx context.Context, workflowID core.WorkflowID) ([]*core.WorkflowStage, error) {
	rows, err := t.query(ctx, `SELECT `+stageColumns+` FROM workflow_stages
		WHERE workflow_id = ? ORDER BY stage_order, name, id`, string(workflowID))
	if err != nil {
		return nil, fmt.Errorf("listing stages: %w", err)
	}
	defer rows.Close()

	var stages []*core.WorkflowStage
	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stage: %w", err)
		}
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

func (t *tx) UpdateStage(ctx context.Context, st *core.WorkflowStage) error {
	st.UpdatedAt = t.now()
	n, err := t.affected(ctx, `UPDATE workflow_stages
		SET name = ?, category = ?, progress_percent = ?, is_done = ?, is_qa = ?, counts_as_wip = ?, updated_at = ?
		WHERE id = ?`,
		st.Name, string(st.Category), st.ProgressPercent, st.IsDone, st.IsQA, st.CountsAsWIP, st.UpdatedAt,
		string(st.ID))
	if err != nil {
		return fmt.Errorf("updating stage %s: %w", st.ID, err)
	}
	if n == 0 {
		return core.ErrNotFound("workflow stage", string(st.ID))
	}
	return nil
}

// BulkUpdateStageOrders writes every order in one CASE statement so the
// whole pass succeeds or fails together.
func (t *tx) BulkUpdateStageOrders(ctx context.Context, workflowID core.WorkflowID, orders map[core.StageID]int) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, 0, len(orders))
	for id := range orders {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	var b strings.Builder
	args := make([]any, 0, len(ids)*3+2)
	b.WriteString("UPDATE workflow_stages SET stage_order = CASE id")
	for _, id := range ids {
		b.WriteString(" WHEN ? THEN CAST(? AS INTEGER)")
		args = append(args, id, orders[core.StageID(id)])
	}
	b.WriteString(" END, updated_at = ? WHERE workflow_id = ? AND id IN (")
	b.WriteString(placeholders(len(ids)))
	b.WriteString(")")
	args = append(args, t.now(), string(workflowID))
	for _, id := range ids {
		args = append(args, id)
	}

	n, err := t.affected(ctx, b.String(), args...)
	if err != nil {
		return fmt.Errorf("updating stage orders: %w", err)
	}
	if n != len(ids) {
		return fmt.Errorf("updating stage orders: expected %d rows, updated %d", len(ids), n)
	}
	return nil
}

func (t *tx) DeleteStage(ctx context.Context, id core.StageID) error {
	n, err := t.affected(ctx, `DELETE FROM workflow_stages WHERE id = ?`, string(id))
	if err != nil {
		return fmt.Errorf("deleting stage: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound("workflow stage", string(id))
	}
	return nil
}

func (t *tx) CountStageReferences(ctx context.Context, id core.StageID) (core.ItemCounts, error) {
	var counts core.ItemCounts
	for _, scope := range itemScopes {
		n, err := t.count(ctx, `SELECT COUNT(*) FROM `+scope.table+` WHERE workflow_stage_id = ?`, string(id))
		if err != nil {
			return counts, fmt.Errorf("counting %s on stage: %w", scope.table, err)
		}
		scope.add(&counts, n)
	}
	return counts, nil
}

func (t *tx) SyncStageStatus(ctx context.Context, id core.StageID, status string) (core.ItemCounts, error) {
	var counts core.ItemCounts
	now := t.now()
	for _, scope := range itemScopes {
		n, err := t.affected(ctx, `UPDATE `+scope.table+` SET status = ?, updated_at = ?
			WHERE workflow_stage_id = ?`, status, now, string(id))
		if err != nil {
			return counts, fmt.Errorf("syncing %s status: %w", scope.table, err)
		}
		scope.add(&counts, n)
	}
	return counts, nil
}

func scanStage(row rowScanner) (*core.WorkflowStage, error) {
	var (
		st                  core.WorkflowStage
		id, workflowID, cat string
	)
	if err := row.Scan(&id, &workflowID, &st.Name, &st.Order, &cat, &st.ProgressPercent,
		&st.IsDone, &st.IsQA, &st.CountsAsWIP, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	st.ID = core.StageID(id)
	st.WorkflowID = core.WorkflowID(workflowID)
	st.Category = core.StageCategory(cat)
	return &st, nil
}
