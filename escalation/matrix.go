package escalation

import (
	"context"
	"fmt"
	"time"

	"github.com/caseflow-io/caseflow/core"
)

// Level is one rung of the escalation matrix: who receives the instance at
// this level and how long it may sit unacknowledged before auto-advancing.
type Level struct {
	Level int

	// TargetEmployees, when non-empty, wins over the role pool. The first
	// listed employee receives the escalation.
	TargetEmployees []string

	// TargetRole selects a pool of employees resolved by the target
	// resolver when no explicit employees are listed.
	TargetRole string

	// Timeout, when non-zero, auto-advances to the next level after this
	// long without the escalation being resolved. Level timeouts are clocks
	// of their own, layered on top of the stage SLA clock.
	Timeout time.Duration
}

// Matrix is the ordered level configuration an instance climbs when
// triggers fire. Read-only to this core.
type Matrix struct {
	Levels []Level
}

// Level returns the configuration for the given level number.
func (m *Matrix) Level(n int) (Level, bool) {
	for _, l := range m.Levels {
		if l.Level == n {
			return l, true
		}
	}

	return Level{}, false
}

// MaxLevel returns the highest configured level.
func (m *Matrix) MaxLevel() int {
	max := 0
	for _, l := range m.Levels {
		if l.Level > max {
			max = l.Level
		}
	}

	return max
}

// TargetResolver resolves the assignee for a matrix level. Implementations
// must be deterministic for a fixed matrix entry and instance state.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, level Level, instance *core.WorkflowInstance) (string, error)
}

// StaticDirectory resolves role pools from a fixed role-to-members table.
// Explicit employee lists win; role pools rotate round-robin, indexed by the
// length of the instance's level history so resolution stays deterministic
// for a fixed input state.
type StaticDirectory struct {
	RoleMembers map[string][]string
}

var _ TargetResolver = (*StaticDirectory)(nil)

func (d *StaticDirectory) ResolveTarget(ctx context.Context, level Level, instance *core.WorkflowInstance) (string, error) {
	if len(level.TargetEmployees) > 0 {
		return level.TargetEmployees[0], nil
	}

	pool := d.RoleMembers[level.TargetRole]
	if len(pool) == 0 {
		return "", fmt.Errorf("no escalation target for level %d (role %q)", level.Level, level.TargetRole)
	}

	return pool[len(instance.Escalation.LevelHistory)%len(pool)], nil
}
