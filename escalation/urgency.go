package escalation

import (
	"time"

	"github.com/caseflow-io/caseflow/core"
)

// UrgencyScore ranks an instance for prioritized worklists. It is a pure
// function of the instance state and the given time: a weighted sum of
// priority, severity, age bucket, escalation level, and the overdue flag,
// clamped to 0..10. Not correctness-critical; used only for ordering.
func UrgencyScore(instance *core.WorkflowInstance, now time.Time) int {
	score := priorityWeight(instance.Priority) + severityWeight(instance.Severity)

	switch age := instance.Age(now); {
	case age >= 72*time.Hour:
		score += 3
	case age >= 24*time.Hour:
		score += 2
	case age >= 4*time.Hour:
		score += 1
	}

	score += instance.Escalation.CurrentLevel

	if instance.Escalation.Overdue {
		score += 2
	}

	if score > 10 {
		return 10
	}
	if score < 0 {
		return 0
	}

	return score
}

func priorityWeight(p core.Priority) int {
	switch p {
	case core.PriorityCritical:
		return 3
	case core.PriorityHigh:
		return 2
	case core.PriorityMedium:
		return 1
	default:
		return 0
	}
}

func severityWeight(s core.Severity) int {
	switch s {
	case core.SeverityCritical:
		return 2
	case core.SeverityHigh:
		return 1
	default:
		return 0
	}
}
