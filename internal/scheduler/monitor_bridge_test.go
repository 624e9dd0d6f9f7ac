package scheduler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/me/gowe/internal/executor"
	"github.com/me/gowe/internal/store"
	"github.com/me/gowe/pkg/model"
)

// TestMonitorEngine_TwoStepLocalPipeline runs the same two-step pipeline as
// TestIntegration_TwoStepLocalPipeline, but through StartMonitors instead of
// Tick, proving the monitor-driven engine and the synchronous path agree on
// task semantics.
func TestMonitorEngine_TwoStepLocalPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reg := executor.NewRegistry(logger)
	reg.Register(executor.NewLocalExecutor(t.TempDir(), logger))

	cfg := DefaultConfig()
	cfg.PollInterval = 20 * time.Millisecond
	sched := NewLoop(st, reg, cfg, logger)

	wf := &model.Workflow{
		ID:         "wf_" + uuid.New().String(),
		Name:       "test-pipeline",
		CWLVersion: "v1.2",
		RawCWL:     "test",
		Steps: []model.Step{
			{
				ID:      "step1",
				ToolRef: "echo-tool-1",
				ToolInline: &model.Tool{
					ID:          "echo-tool-1",
					Class:       "CommandLineTool",
					BaseCommand: []string{"echo", "hello from step1"},
					Inputs:      []model.ToolInput{{ID: "dummy", Type: "string"}},
					Outputs:     []model.ToolOutput{},
				},
				DependsOn: []string{},
				In:        []model.StepInput{},
				Out:       []string{},
			},
			{
				ID:      "step2",
				ToolRef: "echo-tool-2",
				ToolInline: &model.Tool{
					ID:          "echo-tool-2",
					Class:       "CommandLineTool",
					BaseCommand: []string{"echo", "hello from step2"},
					Inputs:      []model.ToolInput{{ID: "dummy", Type: "string"}},
					Outputs:     []model.ToolOutput{},
				},
				DependsOn: []string{"step1"},
				In:        []model.StepInput{},
				Out:       []string{},
			},
		},
		Inputs:    []model.WorkflowInput{},
		Outputs:   []model.WorkflowOutput{},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := st.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	sub := &model.Submission{
		ID:           "sub_" + uuid.New().String(),
		WorkflowID:   wf.ID,
		WorkflowName: wf.Name,
		State:        model.SubmissionStatePending,
		Inputs:       map[string]any{},
		Outputs:      map[string]any{},
		Labels:       map[string]string{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create submission: %v", err)
	}

	task1 := &model.Task{
		ID:           "task_" + uuid.New().String(),
		SubmissionID: sub.ID,
		StepID:       "step1",
		State:        model.TaskStatePending,
		ExecutorType: model.ExecutorTypeLocal,
		Inputs:       map[string]any{},
		Outputs:      map[string]any{},
		DependsOn:    []string{},
		MaxRetries:   0,
		CreatedAt:    time.Now().UTC(),
	}
	task2 := &model.Task{
		ID:           "task_" + uuid.New().String(),
		SubmissionID: sub.ID,
		StepID:       "step2",
		State:        model.TaskStatePending,
		ExecutorType: model.ExecutorTypeLocal,
		Inputs:       map[string]any{},
		Outputs:      map[string]any{},
		DependsOn:    []string{"step1"},
		MaxRetries:   0,
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.CreateTask(ctx, task1); err != nil {
		t.Fatalf("create task1: %v", err)
	}
	if err := st.CreateTask(ctx, task2); err != nil {
		t.Fatalf("create task2: %v", err)
	}

	var events []string
	if err := sched.StartMonitors(ctx, func(kind, taskID string, success bool) {
		events = append(events, kind)
	}); err != nil {
		t.Fatalf("start monitors: %v", err)
	}
	defer sched.StopMonitors()

	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("submission did not complete in time (events so far: %v)", events)
		case <-tick.C:
			got, err := st.GetSubmission(ctx, sub.ID)
			if err != nil {
				t.Fatalf("get submission: %v", err)
			}
			if got.State != model.SubmissionStateCompleted {
				continue
			}

			for _, task := range got.Tasks {
				if task.State != model.TaskStateSuccess {
					t.Errorf("task %s (step %s): want SUCCESS, got %s", task.ID, task.StepID, task.State)
				}
			}

			tasksByStep := make(map[string]model.Task, len(got.Tasks))
			for _, task := range got.Tasks {
				tasksByStep[task.StepID] = task
			}
			if t1, ok := tasksByStep["step1"]; !ok || !strings.Contains(t1.Stdout, "hello from step1") {
				t.Errorf("step1 stdout = %q, want it to contain %q", t1.Stdout, "hello from step1")
			}
			if t2, ok := tasksByStep["step2"]; !ok || !strings.Contains(t2.Stdout, "hello from step2") {
				t.Errorf("step2 stdout = %q, want it to contain %q", t2.Stdout, "hello from step2")
			}

			if len(events) == 0 {
				t.Error("expected at least one task lifecycle event to be reported")
			}
			return
		}
	}
}

// TestMonitorEngine_StartIsIdempotent verifies a second StartMonitors call
// on an already-started Loop fails rather than spawning duplicate monitors.
func TestMonitorEngine_StartIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reg := executor.NewRegistry(logger)
	reg.Register(executor.NewLocalExecutor(t.TempDir(), logger))

	sched := NewLoop(st, reg, DefaultConfig(), logger)
	if err := sched.StartMonitors(ctx, nil); err != nil {
		t.Fatalf("first StartMonitors: %v", err)
	}
	defer sched.StopMonitors()

	if err := sched.StartMonitors(ctx, nil); err == nil {
		t.Fatal("expected second StartMonitors to fail")
	}
}

// TestQueueSize_DefaultsToExecutorMaxConcurrency verifies the monitor
// capacity plumbed into StartMonitors comes from the registered executor's
// MaxConcurrency() rather than Unbounded, so the running system actually
// throttles.
func TestQueueSize_DefaultsToExecutorMaxConcurrency(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := executor.NewRegistry(logger)
	local := executor.NewLocalExecutor(t.TempDir(), logger)
	local.SetMaxConcurrency(3)
	reg.Register(local)

	sched := NewLoop(nil, reg, DefaultConfig(), logger)

	capacity, unbounded, err := sched.queueSize(model.ExecutorTypeLocal)
	if err != nil {
		t.Fatalf("queueSize: %v", err)
	}
	if unbounded {
		t.Fatal("expected a bounded queue size from a registered executor")
	}
	if capacity != 3 {
		t.Fatalf("capacity = %d, want 3", capacity)
	}
}

// TestQueueSize_CapacitiesOverridesExecutor verifies an explicit
// Config.Capacities entry wins over the executor's own MaxConcurrency().
func TestQueueSize_CapacitiesOverridesExecutor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := executor.NewRegistry(logger)
	local := executor.NewLocalExecutor(t.TempDir(), logger)
	local.SetMaxConcurrency(3)
	reg.Register(local)

	cfg := DefaultConfig()
	cfg.Capacities = map[model.ExecutorType]int{model.ExecutorTypeLocal: 10}
	sched := NewLoop(nil, reg, cfg, logger)

	capacity, unbounded, err := sched.queueSize(model.ExecutorTypeLocal)
	if err != nil {
		t.Fatalf("queueSize: %v", err)
	}
	if unbounded {
		t.Fatal("expected a bounded queue size from an explicit override")
	}
	if capacity != 10 {
		t.Fatalf("capacity = %d, want 10", capacity)
	}
}

// TestDispatchToMonitors_ClaimsTaskBeforeHandoff verifies a SCHEDULED task
// leaves SCHEDULED the moment it's handed to its monitor, so a second
// dispatch pass (the task still pending a free slot) never re-fetches and
// double-submits it.
func TestDispatchToMonitors_ClaimsTaskBeforeHandoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := store.NewSQLiteStore(":memory:", logger)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	reg := executor.NewRegistry(logger)
	reg.Register(executor.NewLocalExecutor(t.TempDir(), logger))

	// A long feeder interval keeps runFeeder's own background tick from
	// racing with the manual dispatchToMonitors calls below.
	cfg := DefaultConfig()
	cfg.PollInterval = time.Hour
	sched := NewLoop(st, reg, cfg, logger)

	wf := &model.Workflow{
		ID:         "wf_" + uuid.New().String(),
		Name:       "dispatch-dedup",
		CWLVersion: "v1.2",
		RawCWL:     "test",
		Steps: []model.Step{{
			ID:      "step1",
			ToolRef: "echo-tool",
			ToolInline: &model.Tool{
				ID:          "echo-tool",
				Class:       "CommandLineTool",
				BaseCommand: []string{"echo", "hi"},
				Inputs:      []model.ToolInput{},
				Outputs:     []model.ToolOutput{},
			},
			DependsOn: []string{},
			In:        []model.StepInput{},
			Out:       []string{},
		}},
		Inputs:    []model.WorkflowInput{},
		Outputs:   []model.WorkflowOutput{},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := st.CreateWorkflow(ctx, wf); err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	sub := &model.Submission{
		ID:         "sub_" + uuid.New().String(),
		WorkflowID: wf.ID,
		State:      model.SubmissionStatePending,
		Inputs:     map[string]any{},
		Outputs:    map[string]any{},
		Labels:     map[string]string{},
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create submission: %v", err)
	}

	task := &model.Task{
		ID:           "task_" + uuid.New().String(),
		SubmissionID: sub.ID,
		StepID:       "step1",
		State:        model.TaskStateScheduled,
		ExecutorType: model.ExecutorTypeLocal,
		Inputs:       map[string]any{},
		Outputs:      map[string]any{},
		DependsOn:    []string{},
		CreatedAt:    time.Now().UTC(),
	}
	if err := st.CreateTask(ctx, task); err != nil {
		t.Fatalf("create task: %v", err)
	}

	if err := sched.StartMonitors(ctx, nil); err != nil {
		t.Fatalf("start monitors: %v", err)
	}
	defer sched.StopMonitors()

	affected := make(map[string]bool)
	if err := sched.dispatchToMonitors(ctx, affected); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	stillScheduled, err := st.GetTasksByState(ctx, model.TaskStateScheduled)
	if err != nil {
		t.Fatalf("get tasks by state: %v", err)
	}
	if len(stillScheduled) != 0 {
		t.Fatalf("expected no tasks left SCHEDULED after dispatch, got %d", len(stillScheduled))
	}

	// A second dispatch pass, as the feeder ticker would run before the
	// task is actually submitted, must find nothing left to re-dispatch.
	affected2 := make(map[string]bool)
	if err := sched.dispatchToMonitors(ctx, affected2); err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if len(affected2) != 0 {
		t.Fatalf("expected second dispatch pass to re-claim nothing, affected = %v", affected2)
	}
}
