package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/agent-runner/pkg/models"
)

// newTestClient starts a throwaway Postgres container, applies the embedded
// migrations through the real NewClient path, and tears the container down
// when the test finishes.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("agentrunner_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	client, err := NewClient(ctx, Config{
		DatabaseURL:     connStr,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: time.Hour,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func createTestProject(t *testing.T, c *Client) *models.Project {
	t.Helper()
	p, err := c.CreateProject(context.Background(), "proj-"+t.Name(), t.TempDir())
	require.NoError(t, err)
	return p
}

func TestCreateRun_AppendsRunCreatedEvent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	run, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "say hi"})
	require.NoError(t, err)

	if run.Status != models.StatusQueued {
		t.Errorf("status = %s, want QUEUED", run.Status)
	}
	if run.CurrentIteration != 0 {
		t.Errorf("current_iteration = %d, want 0", run.CurrentIteration)
	}

	events, err := c.ListEvents(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	if len(events) != 1 || events[0].Type != models.EventRunCreated {
		t.Fatalf("events = %+v, want a single RUN_CREATED", events)
	}
}

func TestClaimNextQueued_ClaimsOldestFirst(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	first, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "first"})
	require.NoError(t, err)
	_, err = c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "second"})
	require.NoError(t, err)

	claimed, err := c.ClaimNextQueued(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	if claimed.ID != first.ID {
		t.Errorf("claimed %s, want oldest run %s", claimed.ID, first.ID)
	}
	if claimed.Status != models.StatusRunning {
		t.Errorf("status = %s, want RUNNING", claimed.Status)
	}
}

func TestClaimNextQueued_NoneAvailable(t *testing.T) {
	c := newTestClient(t)
	claimed, err := c.ClaimNextQueued(context.Background(), "worker-1")
	require.NoError(t, err)
	if claimed != nil {
		t.Errorf("expected nil claim, got %+v", claimed)
	}
}

func TestClaimNextQueued_ConcurrentWorkersClaimDisjointRuns(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	const n = 5
	for i := 0; i < n; i++ {
		_, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "concurrent"})
		require.NoError(t, err)
	}

	type result struct {
		run *models.Run
		err error
	}
	results := make(chan result, n)
	for i := 0; i < n; i++ {
		go func(workerID int) {
			run, err := c.ClaimNextQueued(ctx, "worker")
			results <- result{run, err}
			_ = workerID
		}(i)
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		r := <-results
		require.NoError(t, r.err)
		require.NotNil(t, r.run)
		if seen[r.run.ID] {
			t.Fatalf("run %s claimed more than once", r.run.ID)
		}
		seen[r.run.ID] = true
	}
}

func TestTransition_FailsOnUnexpectedFromState(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	run, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "g"})
	require.NoError(t, err)

	ok, err := c.Transition(ctx, run.ID, models.StatusRunning, models.StatusCompleted)
	require.NoError(t, err)
	if ok {
		t.Error("expected Transition to report false when the run is still QUEUED")
	}
}

func TestTransitionWithEvent_CoCommitsEvent(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	run, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "g"})
	require.NoError(t, err)

	claimed, err := c.ClaimNextQueued(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, run.ID, claimed.ID)

	ok, evt, err := c.TransitionWithEvent(ctx, run.ID, models.StatusRunning, models.StatusCompleted, models.EventRunCompleted, nil)
	require.NoError(t, err)
	if !ok {
		t.Fatal("expected transition to succeed")
	}
	if evt.Type != models.EventRunCompleted {
		t.Errorf("event type = %s, want RUN_COMPLETED", evt.Type)
	}

	events, err := c.ListEvents(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	var sawCompleted bool
	for _, e := range events {
		if e.Type == models.EventRunCompleted {
			sawCompleted = true
		}
	}
	if !sawCompleted {
		t.Error("expected RUN_COMPLETED to be present in the run's event timeline")
	}
}

func TestTransitionWithEvent_NoEventOnFailedTransition(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	run, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "g"})
	require.NoError(t, err)

	ok, evt, err := c.TransitionWithEvent(ctx, run.ID, models.StatusRunning, models.StatusCompleted, models.EventRunCompleted, nil)
	require.NoError(t, err)
	if ok || evt != nil {
		t.Fatalf("expected no-op on illegal from-state, got ok=%v evt=%+v", ok, evt)
	}

	events, err := c.ListEvents(ctx, run.ID, 0, 0)
	require.NoError(t, err)
	if len(events) != 1 {
		t.Errorf("expected only the original RUN_CREATED event, got %d", len(events))
	}
}

func TestRequeueOrphans_RequeuesStaleHeartbeat(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	run, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "g"})
	require.NoError(t, err)
	_, err = c.ClaimNextQueued(ctx, "worker-1")
	require.NoError(t, err)

	// last_heartbeat_at was just set by the claim; after a 10ms sleep a 1ms
	// threshold puts the cutoff past that heartbeat, so the run is stale.
	time.Sleep(10 * time.Millisecond)
	ids, err := c.RequeueOrphans(ctx, 1*time.Millisecond)
	require.NoError(t, err)
	if len(ids) != 1 || ids[0] != run.ID {
		t.Fatalf("requeued ids = %v, want [%s]", ids, run.ID)
	}

	refetched, err := c.GetRun(ctx, run.ID)
	require.NoError(t, err)
	if refetched.Status != models.StatusQueued {
		t.Errorf("status = %s, want QUEUED after orphan recovery", refetched.Status)
	}
}

func TestRequeueOrphans_LeavesPausedAlone(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	run, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "g"})
	require.NoError(t, err)
	_, err = c.ClaimNextQueued(ctx, "worker-1")
	require.NoError(t, err)
	ok, _, err := c.TransitionWithEvent(ctx, run.ID, models.StatusRunning, models.StatusPaused, models.EventRunPause, nil)
	require.NoError(t, err)
	require.True(t, ok)

	ids, err := c.RequeueOrphans(ctx, 0)
	require.NoError(t, err)
	if len(ids) != 0 {
		t.Errorf("expected PAUSED runs to be ignored by orphan recovery, got %v", ids)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	c := newTestClient(t)
	_, err := c.GetRun(context.Background(), "00000000-0000-0000-0000-000000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateProject_NameConflict(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := c.CreateProject(ctx, "dup", dir)
	require.NoError(t, err)

	_, err = c.CreateProject(ctx, "dup", dir)
	if !errors.Is(err, ErrNameConflict) {
		t.Errorf("err = %v, want ErrNameConflict", err)
	}
}

func TestListEvents_AfterIDCursor(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	proj := createTestProject(t, c)

	run, err := c.CreateRun(ctx, models.CreateRunRequest{ProjectID: proj.ID, Goal: "g"})
	require.NoError(t, err)

	evt, err := c.AppendEvent(ctx, run.ID, models.EventAgentThinking, map[string]any{"n": 1})
	require.NoError(t, err)

	events, err := c.ListEvents(ctx, run.ID, evt.ID, 0)
	require.NoError(t, err)
	for _, e := range events {
		if e.ID <= evt.ID {
			t.Errorf("ListEvents with afterID=%d returned event id=%d", evt.ID, e.ID)
		}
	}
}
