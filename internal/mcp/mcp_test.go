package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/kaizen/internal/model"
	"github.com/ashita-ai/kaizen/internal/service/learning"
	"github.com/ashita-ai/kaizen/internal/storage"
	"github.com/ashita-ai/kaizen/internal/testutil"
)

var (
	testDB     *storage.DB
	testServer *Server
)

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	code := setupAndRun(m, tc)
	tc.Terminate()
	os.Exit(code)
}

func setupAndRun(m *testing.M, tc *testutil.TestContainer) int {
	ctx := context.Background()
	logger := testutil.TestLogger()

	var err error
	testDB, err = tc.NewTestDB(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp test: create DB: %v\n", err)
		return 1
	}
	defer testDB.Close()

	testServer = New(testDB, learning.New(testDB, 20, logger), "test", logger)

	return m.Run()
}

func toolRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no TextContent found in tool result")
	return ""
}

// seedRun ingests a run in the given terminal state and returns its ID.
func seedRun(t *testing.T, status model.RunStatus) string {
	t.Helper()
	runID := "run_" + uuid.NewString()
	_, err := testDB.ApplyRun(context.Background(), model.IngestRunRequest{
		RunID:    runID,
		TraceID:  "tr_" + runID,
		TaskID:   "task-mcp",
		Status:   status,
		Passed:   status == model.RunStatusCompleted,
		Provider: "openai",
		Model:    "gpt-5",
	}, nil)
	require.NoError(t, err)
	return runID
}

func TestHandleRun(t *testing.T) {
	runID := seedRun(t, model.RunStatusCompleted)

	result, err := testServer.handleRun(context.Background(), toolRequest("kaizen_run", map[string]any{
		"run_id": runID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "expected successful lookup: %s", parseToolText(t, result))

	var run model.Run
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &run))
	assert.Equal(t, runID, run.RunID)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
}

func TestHandleRun_Missing(t *testing.T) {
	result, err := testServer.handleRun(context.Background(), toolRequest("kaizen_run", map[string]any{
		"run_id": "run_" + uuid.NewString(),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRun_RequiresID(t *testing.T) {
	result, err := testServer.handleRun(context.Background(), toolRequest("kaizen_run", nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "run_id is required")
}

func TestHandleRuns(t *testing.T) {
	seedRun(t, model.RunStatusCompleted)
	seedRun(t, model.RunStatusFailed)

	result, err := testServer.handleRuns(context.Background(), toolRequest("kaizen_runs", map[string]any{
		"status": "failed",
		"limit":  5,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "expected successful list: %s", parseToolText(t, result))

	var list model.RunList
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &list))
	require.NotEmpty(t, list.Runs)
	for _, run := range list.Runs {
		assert.Equal(t, model.RunStatusFailed, run.Status)
	}
}

func TestHandleRuns_BadStatus(t *testing.T) {
	result, err := testServer.handleRuns(context.Background(), toolRequest("kaizen_runs", map[string]any{
		"status": "exploded",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "exploded")
}

func TestHandleCiFixRuns(t *testing.T) {
	runID := "run_" + uuid.NewString()
	_, err := testDB.AppendCiFixEvent(context.Background(), model.CiFixEventRequest{
		RunID:     runID,
		EventType: model.CiFixEventDetected,
		Timestamp: time.Now().UTC(),
		Issue:     "flaky e2e on main",
	})
	require.NoError(t, err)

	status := model.CiFixDetected
	result, err := testServer.handleCiFixRuns(context.Background(), toolRequest("kaizen_cifix_runs", map[string]any{
		"status": string(status),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "expected successful list: %s", parseToolText(t, result))

	var list model.CiFixRunList
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &list))
	found := false
	for _, run := range list.Runs {
		assert.Equal(t, model.CiFixDetected, run.Status)
		if run.RunID == runID {
			found = true
		}
	}
	assert.True(t, found, "seeded tracker entry should be listed")
}

func TestHandleLearningStats(t *testing.T) {
	result, err := testServer.handleLearningStats(context.Background(), toolRequest("kaizen_learning_stats", map[string]any{
		"since": "7d",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "expected stats: %s", parseToolText(t, result))

	var stats model.LearningStats
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &stats))
	assert.Equal(t, 7, stats.PeriodDays)
}

func TestHandleLearningStats_BadWindow(t *testing.T) {
	result, err := testServer.handleLearningStats(context.Background(), toolRequest("kaizen_learning_stats", map[string]any{
		"since": "30d",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
