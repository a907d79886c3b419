package log

const (
	NamespaceKey = "caseflow"

	InstanceIDKey = NamespaceKey + ".instance.id"
	TemplateIDKey = NamespaceKey + ".template.id"
	CompanyIDKey  = NamespaceKey + ".company.id"

	StageIDKey    = NamespaceKey + ".stage.id"
	StageNameKey  = NamespaceKey + ".stage.name"
	AssigneeIDKey = NamespaceKey + ".assignee.id"
	ActorIDKey    = NamespaceKey + ".actor.id"

	StatusKey     = NamespaceKey + ".status"
	SLAStatusKey  = NamespaceKey + ".sla.status"
	DeadlineKey   = NamespaceKey + ".sla.deadline"

	EscalationLevelKey   = NamespaceKey + ".escalation.level"
	EscalationTriggerKey = NamespaceKey + ".escalation.trigger"

	BatchIDKey        = NamespaceKey + ".batch.id"
	BatchOperationKey = NamespaceKey + ".batch.operation"
	BatchItemKey      = NamespaceKey + ".batch.item"

	EventTypeKey = NamespaceKey + ".event.type"
	EventIDKey   = NamespaceKey + ".event.id"

	AttemptKey  = NamespaceKey + ".attempt"
	DurationKey = NamespaceKey + ".duration_ms"
	VersionKey  = NamespaceKey + ".version"
)
