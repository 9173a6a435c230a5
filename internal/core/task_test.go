package core

import (
	"errors"
	"testing"
)

func TestParseProgressPolicy(t *testing.T) {
	if p, err := ParseProgressPolicy("workflow_stage"); err != nil || p != PolicyWorkflowStage {
		t.Fatalf("ParseProgressPolicy() = %q, %v", p, err)
	}
	if p, err := ParseProgressPolicy("SUBTASKS_ROLLUP"); err != nil || p != PolicySubtasksRollup {
		t.Fatalf("ParseProgressPolicy() = %q, %v", p, err)
	}
	if _, err := ParseProgressPolicy("weighted"); !IsCategory(err, ErrCatValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseItemKind(t *testing.T) {
	for _, k := range []ItemKind{KindEpic, KindTask, KindSubtask} {
		if got, err := ParseItemKind(string(k)); err != nil || got != k {
			t.Errorf("ParseItemKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseItemKind("story"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}

func TestParseMigrationStrategy(t *testing.T) {
	if s, err := ParseMigrationStrategy("order"); err != nil || s != StrategyOrder {
		t.Fatalf("ParseMigrationStrategy(order) = %q, %v", s, err)
	}
	_, err := ParseMigrationStrategy("fuzzy")
	var domErr *DomainError
	if !errors.As(err, &domErr) || domErr.Code != CodeInvalidStrategy {
		t.Fatalf("expected invalid strategy error, got %v", err)
	}
}

func TestItemCounts(t *testing.T) {
	var c ItemCounts
	c.Inc(KindEpic)
	c.Inc(KindTask)
	c.Inc(KindSubtask)
	c.Inc(KindSubtask)

	if c.Total() != 4 {
		t.Fatalf("Total() = %d, want 4", c.Total())
	}
	sum := c.Add(ItemCounts{Tasks: 2})
	if sum.Tasks != 3 || sum.Total() != 6 {
		t.Fatalf("Add() = %+v", sum)
	}
}

func TestItemRef_String(t *testing.T) {
	ref := ItemRef{Kind: KindSubtask, ID: "abc"}
	if ref.String() != "subtask:abc" {
		t.Fatalf("String() = %q", ref.String())
	}
}
