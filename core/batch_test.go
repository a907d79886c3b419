package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_BatchJob_ProcessingRate(t *testing.T) {
	started := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	batch := &BatchJob{TotalItems: 100, Processed: 30, StartedAt: &started}

	require.Equal(t, 10.0, batch.ProcessingRate(started.Add(3*time.Minute)))

	// Not started or nothing processed yet: no rate.
	require.Equal(t, 0.0, (&BatchJob{Processed: 5}).ProcessingRate(started))
	require.Equal(t, 0.0, (&BatchJob{StartedAt: &started}).ProcessingRate(started.Add(time.Minute)))
}

func Test_BatchJob_EstimatedCompletion(t *testing.T) {
	started := time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC)
	batch := &BatchJob{TotalItems: 100, Processed: 30, StartedAt: &started}

	now := started.Add(3 * time.Minute)

	estimate, ok := batch.EstimatedCompletion(now)
	require.True(t, ok)
	// 70 remaining at 10 items per minute.
	require.Equal(t, now.Add(7*time.Minute), estimate)

	_, ok = (&BatchJob{TotalItems: 10}).EstimatedCompletion(now)
	require.False(t, ok)
}

func Test_BatchJob_RecordErrorIsBounded(t *testing.T) {
	batch := &BatchJob{}

	for i := 0; i < MaxRecordedErrors+25; i++ {
		batch.RecordError(BatchError{
			TargetID: fmt.Sprintf("i-%d", i),
			Class:    ErrorClassSystem,
			Message:  "boom",
		})
	}

	require.Len(t, batch.Errors, MaxRecordedErrors)
	require.Equal(t, "i-0", batch.Errors[0].TargetID)
}

func Test_BatchStatus_Terminal(t *testing.T) {
	for _, s := range []BatchStatus{BatchStatusCompleted, BatchStatusPartiallyCompleted, BatchStatusFailed, BatchStatusCancelled} {
		require.True(t, s.Terminal(), string(s))
	}

	for _, s := range []BatchStatus{BatchStatusCreated, BatchStatusQueued, BatchStatusProcessing} {
		require.False(t, s.Terminal(), string(s))
	}
}
