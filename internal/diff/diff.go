// Package diff computes before/after field changes between two snapshots of
// an instance, for audit entries.
package diff

import (
	"fmt"

	"github.com/caseflow-io/caseflow/audit"
	"github.com/caseflow-io/caseflow/core"
)

// Instances returns the audit field changes between two instance snapshots.
// Only fields that matter for compliance review are compared.
func Instances(before, after *core.WorkflowInstance) []audit.FieldChange {
	var changes []audit.FieldChange

	add := func(field, b, a string) {
		if b != a {
			changes = append(changes, audit.FieldChange{Field: field, Before: b, After: a})
		}
	}

	add("status", string(before.Status), string(after.Status))
	add("completed_stages", fmt.Sprintf("%d", before.CompletedStages), fmt.Sprintf("%d", after.CompletedStages))
	add("escalation.current_level", fmt.Sprintf("%d", before.Escalation.CurrentLevel), fmt.Sprintf("%d", after.Escalation.CurrentLevel))
	add("escalation.current_assignee", before.Escalation.CurrentAssignee, after.Escalation.CurrentAssignee)

	add("current_stage", stageID(before.CurrentStage), stageID(after.CurrentStage))
	add("current_assignee", stageAssignee(before.CurrentStage), stageAssignee(after.CurrentStage))

	return changes
}

func stageID(ref *core.StageRef) string {
	if ref == nil {
		return ""
	}

	return ref.StageID
}

func stageAssignee(ref *core.StageRef) string {
	if ref == nil {
		return ""
	}

	return ref.AssigneeID
}
