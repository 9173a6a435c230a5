// Package core holds the domain model of the stage engine: workflows, stages,
// the partial project/epic/task/subtask contract, the store ports and the
// typed error taxonomy. All other packages import their vocabulary from here.
package core

// Engine limits
const (
	// DefaultMaxStages bounds the number of stages in a single workflow.
	DefaultMaxStages = 200

	// ReorderTempOffset separates the temporary order range used during the
	// first pass of a renumbering from any live order value.
	ReorderTempOffset = 1000

	// DemotedStagePercent caps the percent of a stage that loses the done marker.
	DemotedStagePercent = 99
)

// DefaultItemStatus is the status of a work item that was never staged.
const DefaultItemStatus = string(CategoryBacklog)

// MigrationStrategy selects how staged items move to a new workflow.
type MigrationStrategy string

const (
	StrategyOrder MigrationStrategy = "order"
	StrategyClear MigrationStrategy = "clear"
)

// ParseMigrationStrategy validates a strategy name.
func ParseMigrationStrategy(s string) (MigrationStrategy, error) {
	switch MigrationStrategy(s) {
	case StrategyOrder, StrategyClear:
		return MigrationStrategy(s), nil
	default:
		return "", ErrValidation(CodeInvalidStrategy, "strategy must be one of: order, clear").
			WithDetail("strategy", s)
	}
}
