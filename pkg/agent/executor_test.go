package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/codeready-toolchain/agent-runner/pkg/llmprovider"
	"github.com/codeready-toolchain/agent-runner/pkg/models"
	"github.com/codeready-toolchain/agent-runner/pkg/store"
)

// newTestStore starts a throwaway Postgres container and returns a ready
// Client, mirroring the pattern used by the store package's own tests.
func newTestStore(t *testing.T) *store.Client {
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

	client, err := store.NewClient(ctx, store.Config{
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

func newRunningRun(t *testing.T, c *store.Client) *models.Run {
	t.Helper()
	ctx := context.Background()

	p, err := c.CreateProject(ctx, "proj-"+t.Name(), t.TempDir())
	require.NoError(t, err)

	run, err := c.CreateRun(ctx, models.CreateRunRequest{
		ProjectID: p.ID,
		Goal:      "do the thing",
		RunType:   models.RunTypeAgent,
	})
	require.NoError(t, err)

	ok, _, err := c.TransitionWithEvent(ctx, run.ID, models.StatusQueued, models.StatusRunning, models.EventRunStarted, nil)
	require.NoError(t, err)
	require.True(t, ok)

	run, err = c.GetRun(ctx, run.ID)
	require.NoError(t, err)
	return run
}

// erroringProvider always fails Generate, used to exercise the executor's
// RUN_FAILED path without depending on a real backend.
type erroringProvider struct{ err error }

func (p *erroringProvider) Name() string { return "erroring" }
func (p *erroringProvider) Generate(ctx context.Context, prompt, model string, emit llmprovider.EventEmitter) (string, error) {
	return "", p.err
}

func TestExecutorRun_SimplePathCompletes(t *testing.T) {
	c := newTestStore(t)
	run := newRunningRun(t, c)

	e := &Executor{Store: c}
	e.Run(context.Background(), run, t.TempDir())

	got, err := c.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)

	events, err := c.ListEvents(context.Background(), run.ID, 0, 0)
	require.NoError(t, err)
	var sawCompleted bool
	for _, evt := range events {
		if evt.Type == models.EventRunCompleted {
			sawCompleted = true
		}
	}
	require.True(t, sawCompleted, "expected a RUN_COMPLETED event")
}

func TestExecutorRun_ProviderErrorFailsRun(t *testing.T) {
	c := newTestStore(t)
	run := newRunningRun(t, c)

	e := &Executor{Store: c, Simulated: &erroringProvider{err: errors.New("boom")}}
	e.Run(context.Background(), run, t.TempDir())

	got, err := c.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, got.Status)

	events, err := c.ListEvents(context.Background(), run.ID, 0, 0)
	require.NoError(t, err)
	var sawFailed bool
	for _, evt := range events {
		if evt.Type == models.EventRunFailed {
			sawFailed = true
		}
	}
	require.True(t, sawFailed, "expected a RUN_FAILED event")
}

func TestExecutorRun_PausedCheckpointBlocksUntilResumed(t *testing.T) {
	c := newTestStore(t)
	run := newRunningRun(t, c)

	ok, _, err := c.TransitionWithEvent(context.Background(), run.ID, models.StatusRunning, models.StatusPaused, models.EventRunPause, nil)
	require.NoError(t, err)
	require.True(t, ok)

	e := &Executor{Store: c}
	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), run, t.TempDir())
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("executor returned while run was still paused")
	case <-time.After(checkpointPollInterval + 200*time.Millisecond):
	}

	ok, _, err = c.TransitionWithEvent(context.Background(), run.ID, models.StatusPaused, models.StatusRunning, models.EventRunResume, nil)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor never resumed after the run was resumed")
	}

	got, err := c.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, got.Status)
}

func TestExecutorRun_StoppedWhilePausedAbortsWithoutOverridingStatus(t *testing.T) {
	c := newTestStore(t)
	run := newRunningRun(t, c)

	ok, _, err := c.TransitionWithEvent(context.Background(), run.ID, models.StatusRunning, models.StatusPaused, models.EventRunPause, nil)
	require.NoError(t, err)
	require.True(t, ok)

	e := &Executor{Store: c}
	done := make(chan struct{})
	go func() {
		e.Run(context.Background(), run, t.TempDir())
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)

	ok, _, err = c.TransitionWithEvent(context.Background(), run.ID, models.StatusPaused, models.StatusStopped, models.EventRunStopped, nil)
	require.NoError(t, err)
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("executor never returned after the run was stopped")
	}

	got, err := c.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, models.StatusStopped, got.Status, "executor must not override a terminal status it did not itself set")
}
