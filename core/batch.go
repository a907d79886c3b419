package core

import "time"

// BatchStatus is the lifecycle status of a batch job.
type BatchStatus string

const (
	BatchStatusCreated            BatchStatus = "created"
	BatchStatusQueued             BatchStatus = "queued"
	BatchStatusProcessing         BatchStatus = "processing"
	BatchStatusCompleted          BatchStatus = "completed"
	BatchStatusPartiallyCompleted BatchStatus = "partially_completed"
	BatchStatusFailed             BatchStatus = "failed"
	BatchStatusCancelled          BatchStatus = "cancelled"
)

// Terminal reports whether the batch permits no further processing without
// an explicit retry.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusPartiallyCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	default:
		return false
	}
}

// ErrorClass buckets a per-item batch failure for reporting and retry
// eligibility. Only System and Network failures are worth re-running.
type ErrorClass string

const (
	ErrorClassValidation   ErrorClass = "validation"
	ErrorClassBusinessRule ErrorClass = "business_rule"
	ErrorClassSystem       ErrorClass = "system"
	ErrorClassIntegration  ErrorClass = "integration"
	ErrorClassPermission   ErrorClass = "permission"
	ErrorClassData         ErrorClass = "data"
	ErrorClassNetwork      ErrorClass = "network"
)

// Retryable reports whether failures of this class are eligible for a
// whole-batch retry.
func (c ErrorClass) Retryable() bool {
	return c == ErrorClassSystem || c == ErrorClassNetwork
}

// BatchError is one recorded per-item failure.
type BatchError struct {
	TargetID   string     `json:"target_id"`
	Class      ErrorClass `json:"class"`
	Message    string     `json:"message"`
	Severity   Severity   `json:"severity"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// RetryAttempt is one scheduled re-run of a batch.
type RetryAttempt struct {
	Attempt     int           `json:"attempt"`
	Reason      string        `json:"reason,omitempty"`
	Delay       time.Duration `json:"delay"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	NotBefore   time.Time     `json:"not_before"`
	Status      string        `json:"status"`
}

// MaxRecordedErrors bounds the per-batch error list. Further failures are
// still counted but not individually recorded.
const MaxRecordedErrors = 100

// BatchJob is a bulk operation over a bounded set of instance ids,
// processed and retried as one unit.
type BatchJob struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	CompanyID string `json:"company_id,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`

	// TargetIDs is the bounded set of instance ids this batch operates on.
	TargetIDs []string `json:"target_ids"`

	TotalItems int `json:"total_items"`
	Processed  int `json:"processed"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`

	Status BatchStatus `json:"status"`

	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	Errors       []BatchError   `json:"errors,omitempty"`
	RetryHistory []RetryAttempt `json:"retry_history,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Version int64 `json:"version"`
}

// Remaining returns the number of items not yet processed.
func (b *BatchJob) Remaining() int {
	return b.TotalItems - b.Processed
}

// ProcessingRate returns processed items per minute since the batch
// started. Zero while nothing has been processed or no time has elapsed.
func (b *BatchJob) ProcessingRate(now time.Time) float64 {
	if b.StartedAt == nil || b.Processed == 0 {
		return 0
	}

	elapsed := now.Sub(*b.StartedAt).Minutes()
	if elapsed <= 0 {
		return 0
	}

	return float64(b.Processed) / elapsed
}

// EstimatedCompletion projects when the batch will finish from the current
// processing rate. The second return is false while the rate is zero.
func (b *BatchJob) EstimatedCompletion(now time.Time) (time.Time, bool) {
	rate := b.ProcessingRate(now)
	if rate == 0 {
		return time.Time{}, false
	}

	remainingMinutes := float64(b.Remaining()) / rate

	return now.Add(time.Duration(remainingMinutes * float64(time.Minute))), true
}

// RecordError appends a per-item failure, keeping the list bounded.
func (b *BatchJob) RecordError(e BatchError) {
	if len(b.Errors) < MaxRecordedErrors {
		b.Errors = append(b.Errors, e)
	}
}
