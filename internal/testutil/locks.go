package testutil

import (
	"context"
	"sync"

	"github.com/hugo-lorenzo-mato/stageboard/internal/core"
)

// LockRecorder wraps a store and records every workflow row locked through
// it, in call order.
type LockRecorder struct {
	core.Store

	mu        sync.Mutex
	workflows []core.WorkflowID
}

// NewLockRecorder wraps s.
func NewLockRecorder(s core.Store) *LockRecorder {
	return &LockRecorder{Store: s}
}

func (r *LockRecorder) WithTx(ctx context.Context, fn func(tx core.Tx) error) error {
	return r.Store.WithTx(ctx, func(tx core.Tx) error {
		return fn(&recordingTx{Tx: tx, r: r})
	})
}

// LockedWorkflows returns the workflows locked so far.
func (r *LockRecorder) LockedWorkflows() []core.WorkflowID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.WorkflowID(nil), r.workflows...)
}

type recordingTx struct {
	core.Tx
	r *LockRecorder
}

func (t *recordingTx) LockWorkflow(ctx context.Context, id core.WorkflowID) (*core.Workflow, error) {
	t.r.mu.Lock()
	t.r.workflows = append(t.r.workflows, id)
	t.r.mu.Unlock()
	return t.Tx.LockWorkflow(ctx, id)
}
