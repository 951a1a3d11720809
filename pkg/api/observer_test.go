package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// removalRecorder keeps the artifacts it is told were deleted.
type removalRecorder struct {
	NoopObserver
	removed []string
}

func (r *removalRecorder) OnArtifactRemoved(_ context.Context, _ *WorkflowInstance, a Artifact) {
	r.removed = append(r.removed, a.Path)
}

// textLogger logs at debug level into buf without timestamps.
func textLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

func routingRun() *WorkflowInstance {
	return &WorkflowInstance{ID: "run-1", Name: "hydrological-routing", WorkDir: "/data/site1"}
}

func TestCompositeObserver_ForwardsRemovals(t *testing.T) {
	a, b := &removalRecorder{}, &removalRecorder{}
	obs := NewCompositeObserver(a, nil, b)

	obs.OnArtifactRemoved(context.Background(), routingRun(), Artifact{Name: "fill", Path: "site1_fill.tif", Kind: KindRaster})

	for i, r := range []*removalRecorder{a, b} {
		if len(r.removed) != 1 || r.removed[0] != "site1_fill.tif" {
			t.Fatalf("observer %d saw %v", i, r.removed)
		}
	}
	if _, ok := NewCompositeObserver(nil).(NoopObserver); !ok {
		t.Fatalf("expected NoopObserver when every observer is nil")
	}
}

func TestLoggingObserver_RecordsWorkDirAndRemovals(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLoggingObserver(textLogger(&buf))
	ctx := context.Background()
	inst := routingRun()

	obs.OnWorkflowStart(ctx, inst)
	obs.OnArtifactRemoved(ctx, inst, Artifact{Name: "facc_setnull", Path: "site1_facc_setnull.shp", Kind: KindLines})

	out := buf.String()
	for _, want := range []string{
		"level=INFO msg=workflow_start",
		"work_dir=/data/site1",
		"level=DEBUG msg=artifact_removed",
		"path=site1_facc_setnull.shp",
		"kind=vector_line",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log missing %q:\n%s", want, out)
		}
	}
}

func TestLoggingObserver_FailedStepLogsAtError(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLoggingObserver(textLogger(&buf))
	ctx := context.Background()
	inst := routingRun()

	obs.OnStepCompleted(ctx, inst, "fill", 0, nil, time.Second)
	obs.OnStepCompleted(ctx, inst, "basins", 4, NewExternalOperationError("Basins", errors.New("exit status 1"), "site1_basins.tif"), time.Second)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "level=DEBUG") || !strings.HasPrefix(lines[1], "level=ERROR") {
		t.Fatalf("unexpected levels:\n%s", buf.String())
	}
	if !strings.Contains(lines[1], "Basins") {
		t.Fatalf("error line does not name the tool: %s", lines[1])
	}
}

func TestBasicMetrics_RoutingRun(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	inst := routingRun()

	m.OnWorkflowStart(ctx, inst)
	for i, step := range []string{"fill", "fdir", "facc"} {
		m.OnStepStart(ctx, inst, step, i)
		m.OnStepCompleted(ctx, inst, step, i, nil, time.Duration(i+1)*time.Second)
	}
	m.OnArtifactRemoved(ctx, inst, Artifact{Name: "fill", Kind: KindRaster})
	m.OnArtifactRemoved(ctx, inst, Artifact{Name: "fdir", Kind: KindRaster})
	m.OnArtifactRemoved(ctx, inst, Artifact{Name: "tagged", Kind: KindPoints})
	m.OnWorkflowCompleted(ctx, inst)

	snap := m.Snapshot()
	if snap.WorkflowsStarted != 1 || snap.WorkflowsCompleted != 1 || snap.WorkflowsFailed != 0 {
		t.Fatalf("unexpected workflow counters: %+v", snap)
	}
	if snap.StepsCompleted != 3 || snap.AvgStepDuration != 2*time.Second {
		t.Fatalf("StepsCompleted=%d AvgStepDuration=%v, want 3 and 2s", snap.StepsCompleted, snap.AvgStepDuration)
	}
	if snap.ArtifactsRemoved != 3 || snap.RastersRemoved != 2 || snap.VectorsRemoved != 1 {
		t.Fatalf("removed %d (rasters %d, vectors %d), want 3 (2, 1)",
			snap.ArtifactsRemoved, snap.RastersRemoved, snap.VectorsRemoved)
	}
}

func TestBasicMetrics_SeparatesExternalFailures(t *testing.T) {
	var m BasicMetrics
	ctx := context.Background()
	inst := routingRun()

	ext := NewExternalOperationError("Basins", errors.New("exit status 1"), "")
	m.OnStepCompleted(ctx, inst, "basins", 4, &StepError{Workflow: inst.Name, Step: "basins", Index: 4, Err: ext}, time.Second)
	m.OnStepCompleted(ctx, inst, "fill", 0, ErrDirectoryUnavailable, time.Second)
	m.OnWorkflowFailed(ctx, inst, ext)

	snap := m.Snapshot()
	if snap.StepsFailed != 2 || snap.ExternalFailures != 1 {
		t.Fatalf("StepsFailed=%d ExternalFailures=%d, want 2 and 1", snap.StepsFailed, snap.ExternalFailures)
	}
	if snap.StepsCompleted != 0 || snap.AvgStepDuration != 0 {
		t.Fatalf("failed steps must not count towards the average: %+v", snap)
	}
	if snap.WorkflowsFailed != 1 {
		t.Fatalf("WorkflowsFailed=%d, want 1", snap.WorkflowsFailed)
	}
}
