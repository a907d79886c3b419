package metrickeys

const (
	Prefix = "caseflow."

	// Instances
	InstanceStarted   = Prefix + "instance.started"
	InstanceCompleted = Prefix + "instance.completed"
	InstanceCancelled = Prefix + "instance.cancelled"
	InstanceFailed    = Prefix + "instance.failed"

	StageEntered   = Prefix + "stage.entered"
	StageCompleted = Prefix + "stage.completed"
	StageDuration  = Prefix + "stage.duration"
	SLABreached    = Prefix + "stage.sla_breached"

	// Escalations
	EscalationTriggered = Prefix + "escalation.triggered"
	EscalationExhausted = Prefix + "escalation.exhausted"
	EscalationResolved  = Prefix + "escalation.resolved"

	// Batches
	BatchProcessed     = Prefix + "batch.processed"
	BatchDuration      = Prefix + "batch.duration"
	BatchItemProcessed = Prefix + "batch.item.processed"
	BatchItemDuration  = Prefix + "batch.item.duration"
	BatchRetry         = Prefix + "batch.retry"

	SchedulerTick         = Prefix + "scheduler.tick"
	SchedulerTickDuration = Prefix + "scheduler.tick.duration"

	LockRegistrySize = Prefix + "locks.size"
)

// Tag names
const (
	Operation  = "operation"
	Outcome    = "outcome"
	ErrorClass = "error_class"
	Trigger    = "trigger"
)
