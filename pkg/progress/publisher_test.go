package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannel(t *testing.T) {
	assert.Equal(t, "workflow_events:proj-a", Channel("proj-a"))
}

func TestBuildNotifyPayload(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	body, err := buildNotifyPayload(EventTaskStart, TaskStartPayload{TaskID: "t1", Title: "Do thing"}, now)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"type":"task_start"`)
	assert.Contains(t, string(body), `"task_id":"t1"`)
	assert.Contains(t, string(body), "2026-01-02T03:04:05Z")
}

func TestBuildNotifyPayload_TruncatesOversizedPayload(t *testing.T) {
	huge := strings.Repeat("x", 8200)
	body, err := buildNotifyPayload(EventMetricsUpdate, map[string]string{"blob": huge}, time.Now())
	require.NoError(t, err)
	assert.Less(t, len(body), 200)
	assert.Contains(t, string(body), `"truncated":true`)
	assert.Contains(t, string(body), `"metrics_update"`)
}
