package tracker

import (
	"errors"
	"testing"
)

func newSteps() []Step {
	return []Step{
		{ID: "1", Name: "Repo Understanding Agent"},
		{ID: "2", Name: "Compliance Rules Checker"},
		{ID: "3", Name: "Risk Analyzer"},
		{ID: "4", Name: "Report Generator"},
	}
}

func TestCreateInitializesSession(t *testing.T) {
	tr := New()
	if err := tr.Create("s1", newSteps()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	status, err := tr.GetStatus("s1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Status != StatusInitialized {
		t.Errorf("status = %q, want %q", status.Status, StatusInitialized)
	}
	if status.Progress != 0 {
		t.Errorf("progress = %d, want 0", status.Progress)
	}
	for _, step := range status.Steps {
		if step.Status != StepPending {
			t.Errorf("step %s status = %q, want %q", step.ID, step.Status, StepPending)
		}
	}
}

func TestCreateDuplicate(t *testing.T) {
	tr := New()
	if err := tr.Create("s1", newSteps()); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tr.Create("s1", newSteps()); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("second Create = %v, want ErrDuplicateSession", err)
	}
}

func TestGetStatusUnknownSession(t *testing.T) {
	tr := New()
	if _, err := tr.GetStatus("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("GetStatus = %v, want ErrSessionNotFound", err)
	}
	if _, err := tr.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get = %v, want ErrSessionNotFound", err)
	}
}

func TestUpdateStepIgnoresUnknownIDs(t *testing.T) {
	tr := New()
	if err := tr.Create("s1", newSteps()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Neither call should change anything or panic.
	tr.UpdateStep("missing-session", "1", StepDone, "done")
	tr.UpdateStep("s1", "99", StepDone, "done")

	status, err := tr.GetStatus("s1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	for _, step := range status.Steps {
		if step.Status != StepPending {
			t.Errorf("step %s status = %q, want %q", step.ID, step.Status, StepPending)
		}
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name  string
		steps []Step
		want  int
	}{
		{"empty", nil, 0},
		{"none done", []Step{{Status: StepPending}, {Status: StepRunning}}, 0},
		{"half done", []Step{{Status: StepDone}, {Status: StepDone}, {Status: StepRunning}, {Status: StepPending}}, 50},
		{"one third rounds down", []Step{{Status: StepDone}, {Status: StepPending}, {Status: StepPending}}, 33},
		{"two thirds rounds up", []Step{{Status: StepDone}, {Status: StepDone}, {Status: StepPending}}, 67},
		{"all done", []Step{{Status: StepDone}, {Status: StepDone}}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(tt.steps); got != tt.want {
				t.Errorf("Progress = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestProgressAdvancesWithSteps(t *testing.T) {
	tr := New()
	if err := tr.Create("s1", newSteps()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	last := 0
	for _, id := range []string{"1", "2", "3", "4"} {
		tr.UpdateStep("s1", id, StepDone, "finished")
		status, err := tr.GetStatus("s1")
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if status.Progress < last {
			t.Fatalf("progress went backwards: %d -> %d", last, status.Progress)
		}
		last = status.Progress
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
}

func TestCompletedStampsCompletedAt(t *testing.T) {
	tr := New()
	if err := tr.Create("s1", newSteps()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tr.SetStatus("s1", StatusProcessing)
	session, err := tr.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.CompletedAt != nil {
		t.Error("CompletedAt set before completion")
	}

	tr.SetStatus("s1", StatusCompleted)
	session, err = tr.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.CompletedAt == nil {
		t.Error("CompletedAt not stamped on completion")
	}
}

func TestReportAndError(t *testing.T) {
	tr := New()
	if err := tr.Create("s1", newSteps()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tr.SetReport("s1", &Report{Content: "assessment", RepositoryURL: "https://github.com/acme/repo"})
	tr.SetError("s1", "agent unreachable")

	session, err := tr.Get("s1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.Report == nil || session.Report.Content != "assessment" {
		t.Errorf("report = %+v, want content %q", session.Report, "assessment")
	}
	if session.Error != "agent unreachable" {
		t.Errorf("error = %q, want %q", session.Error, "agent unreachable")
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	tr := New()
	if err := tr.Create("s1", newSteps()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	status, err := tr.GetStatus("s1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	status.Steps[0].Status = StepError
	status.Steps[0].Message = "mutated by caller"

	fresh, err := tr.GetStatus("s1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if fresh.Steps[0].Status != StepPending {
		t.Errorf("tracked step mutated through snapshot: %q", fresh.Steps[0].Status)
	}
}
