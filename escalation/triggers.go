package escalation

import (
	"fmt"
	"sync"
	"time"

	"github.com/caseflow-io/caseflow/core"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// TriggerType identifies a configured escalation trigger condition.
type TriggerType string

const (
	// TriggerSLABreach fires when the active stage execution breaches its
	// SLA and the instance has not yet escalated for this stage visit.
	TriggerSLABreach TriggerType = "sla_breach"

	// TriggerLevelTimeout fires when the current escalation level sits
	// unresolved past its configured timeout.
	TriggerLevelTimeout TriggerType = "level_timeout"

	// TriggerExpression fires when a configured boolean expression over the
	// instance state evaluates to true.
	TriggerExpression TriggerType = "expression"

	// TriggerManual marks an escalation requested explicitly by a caller.
	TriggerManual TriggerType = "manual"
)

// Condition is one configured trigger. Conditions are OR-combined; the
// first one that fires decides and its identity is recorded for audit.
type Condition struct {
	Type TriggerType

	// Expression is evaluated for TriggerExpression conditions. It must
	// produce a boolean.
	Expression string
}

// exprCache compiles trigger expressions once. Compiled programs are keyed
// by source text.
type exprCache struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
}

func newExprCache() *exprCache {
	return &exprCache{programs: map[string]*vm.Program{}}
}

func (c *exprCache) eval(expression string, env map[string]any) (bool, error) {
	c.mu.RLock()
	program, ok := c.programs[expression]
	c.mu.RUnlock()

	if !ok {
		var err error
		program, err = expr.Compile(expression, expr.AsBool(), expr.AllowUndefinedVariables())
		if err != nil {
			return false, fmt.Errorf("compiling trigger expression: %w", err)
		}

		c.mu.Lock()
		c.programs[expression] = program
		c.mu.Unlock()
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluating trigger expression: %w", err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("trigger expression returned %T, want bool", output)
	}

	return result, nil
}

// triggerEnv flattens the instance into the environment trigger expressions
// evaluate against. Metadata values keep their native kinds.
func triggerEnv(instance *core.WorkflowInstance, now time.Time) map[string]any {
	env := map[string]any{
		"status":    string(instance.Status),
		"priority":  string(instance.Priority),
		"severity":  string(instance.Severity),
		"age_hours": instance.Age(now).Hours(),
		"level":     instance.Escalation.CurrentLevel,
		"escalated": instance.Escalation.Escalated,
		"overdue":   instance.Escalation.Overdue,
		"progress":  instance.ProgressPercentage(),
		"meta":      instance.Metadata.Env(),
	}

	if active := instance.ActiveExecution(); active != nil {
		env["stage"] = active.StageID
		env["breached"] = active.SLA.Breached
	} else {
		env["stage"] = ""
		env["breached"] = false
	}

	return env
}
