package domain

import "testing"

func TestCanTransitionRunStatus(t *testing.T) {
	allowed := []struct{ from, to RunStatus }{
		{RunPending, RunRunning},
		{RunRunning, RunSucceeded},
		{RunRunning, RunFailed},
		{RunRunning, RunCanceled},
	}
	for _, tr := range allowed {
		if !CanTransitionRunStatus(tr.from, tr.to) {
			t.Fatalf("transition %s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to RunStatus }{
		{RunPending, RunSucceeded},
		{RunPending, RunFailed},
		{RunPending, RunCanceled},
		{RunRunning, RunPending},
		{RunSucceeded, RunRunning},
		{RunFailed, RunRunning},
		{RunCanceled, RunRunning},
		{RunSucceeded, RunFailed},
	}
	for _, tr := range denied {
		if CanTransitionRunStatus(tr.from, tr.to) {
			t.Fatalf("transition %s -> %s should be denied", tr.from, tr.to)
		}
	}
}

func TestRunStatusIsTerminal(t *testing.T) {
	for _, s := range []RunStatus{RunSucceeded, RunFailed, RunCanceled} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []RunStatus{RunPending, RunRunning} {
		if s.IsTerminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestFailedByMetrics(t *testing.T) {
	run := StepRun{Metrics: Metadata{"cells": 10000.0}}
	if run.FailedByMetrics() {
		t.Fatalf("run without error marker should not be failed")
	}
	run.Metrics[MetricsErrorKey] = "runner exploded"
	if !run.FailedByMetrics() {
		t.Fatalf("run with error marker should be failed")
	}
	if (StepRun{}).FailedByMetrics() {
		t.Fatalf("run with nil metrics should not be failed")
	}
}

func TestNormalizeStepType(t *testing.T) {
	if got := NormalizeStepType("  QC "); got != StepQC {
		t.Fatalf("NormalizeStepType(QC)=%q", got)
	}
	if got := NormalizeStepType("cluster"); got != StepClustering {
		t.Fatalf("legacy cluster should map to clustering, got %q", got)
	}
	if got := NormalizeStepType("clustering"); got != StepClustering {
		t.Fatalf("NormalizeStepType(clustering)=%q", got)
	}
	if got := NormalizeStepType("velocity"); got != "" {
		t.Fatalf("unknown step type should map to empty, got %q", got)
	}
}
