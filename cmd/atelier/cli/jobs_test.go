package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-erp/atelier/jobs"
)

func TestBuildTaskDigest(t *testing.T) {
	at := time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)
	task, err := BuildTask(jobs.TaskStockLowDigest, TriggerOptions{Now: at})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskStockLowDigest, task.Type())

	var payload jobs.LowStockDigestPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.True(t, payload.ScheduledFor.Equal(at))
}

func TestBuildTaskCleanupDefaultsRetention(t *testing.T) {
	task, err := BuildTask(jobs.TaskIdempotencyCleanup, TriggerOptions{})
	require.NoError(t, err)

	var payload jobs.IdempotencyCleanupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 72, payload.RetentionHours)

	task, err = BuildTask(jobs.TaskIdempotencyCleanup, TriggerOptions{Retention: 24 * time.Hour})
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, 24, payload.RetentionHours)
}

func TestBuildTaskRejectsUnknown(t *testing.T) {
	_, err := BuildTask(jobs.TaskStockLowAlert, TriggerOptions{})
	require.Error(t, err)
}

func TestUnconfiguredCLI(t *testing.T) {
	var c *JobsCLI
	_, err := c.Trigger(context.Background(), jobs.TaskStockLowDigest, TriggerOptions{})
	require.Error(t, err)
	_, err = c.InspectQueue(context.Background())
	require.Error(t, err)
}
