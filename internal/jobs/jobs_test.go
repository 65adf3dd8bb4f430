package jobs

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"solarimager/internal/models"
)

type recordingPublisher struct {
	mu   sync.Mutex
	jobs []models.Job
}

func (p *recordingPublisher) Publish(job models.Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobs = append(p.jobs, job)
}

func (p *recordingPublisher) statuses() []models.JobStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.JobStatus
	for _, j := range p.jobs {
		out = append(out, j.Status)
	}
	return out
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreSaveGetList(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

	for i, kind := range []models.JobKind{models.JobDownload, models.JobVideo, models.JobSolarWind} {
		job := models.Job{
			ID:        string(kind) + "-job",
			Kind:      kind,
			Status:    models.JobRunning,
			Params:    map[string]interface{}{"filter": "0171"},
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Save(job); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	finished := base.Add(time.Hour)
	done := models.Job{
		ID:         "download-job",
		Kind:       models.JobDownload,
		Status:     models.JobCompleted,
		Progress:   1,
		Result:     map[string]interface{}{"downloaded": 3},
		StartedAt:  base,
		FinishedAt: &finished,
	}
	if err := s.Save(done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := s.Get("download-job")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.JobCompleted || got.Progress != 1 {
		t.Errorf("Unexpected job: %+v", got)
	}
	if got.FinishedAt == nil || !got.FinishedAt.Equal(finished) {
		t.Errorf("Expected finished_at %v, got %v", finished, got.FinishedAt)
	}
	if got.Params["filter"] != "0171" {
		t.Errorf("Params should survive the update, got %v", got.Params)
	}
	result, ok := got.Result.(map[string]interface{})
	if !ok || result["downloaded"] != float64(3) {
		t.Errorf("Unexpected result %v", got.Result)
	}

	list, err := s.List(2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "solarwind-job" || list[1].ID != "video-job" {
		t.Errorf("Expected newest two jobs, got %+v", list)
	}

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRunnerCompletesJob(t *testing.T) {
	pub := &recordingPublisher{}
	r := NewRunner(openTestStore(t), pub)

	job, err := r.Submit(Spec{
		Kind:   models.JobDownload,
		Params: map[string]interface{}{"filter": "0193"},
		Run: func(ctx context.Context, update UpdateFunc) (interface{}, error) {
			update(0.5, "halfway")
			return map[string]interface{}{"downloaded": 2}, nil
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if job.ID == "" || job.Status != models.JobRunning {
		t.Errorf("Unexpected submitted job %+v", job)
	}
	r.Wait()

	got, err := r.Get(job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.JobCompleted || got.Progress != 1 || got.FinishedAt == nil {
		t.Errorf("Unexpected final job %+v", got)
	}

	statuses := pub.statuses()
	if len(statuses) != 3 || statuses[0] != models.JobRunning || statuses[2] != models.JobCompleted {
		t.Errorf("Unexpected published statuses %v", statuses)
	}
	if _, ok := r.Current(); ok {
		t.Error("No job should be active after completion")
	}
}

func TestRunnerRejectsSecondJob(t *testing.T) {
	r := NewRunner(nil, nil)
	release := make(chan struct{})
	first, err := r.Submit(Spec{Kind: models.JobVideo, Run: func(ctx context.Context, update UpdateFunc) (interface{}, error) {
		<-release
		return nil, nil
	}})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	busy, err := r.Submit(Spec{Kind: models.JobDownload, Run: func(context.Context, UpdateFunc) (interface{}, error) {
		return nil, nil
	}})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("Expected ErrBusy, got %v", err)
	}
	if busy.ID != first.ID {
		t.Errorf("ErrBusy should report the active job")
	}

	close(release)
	r.Wait()
	if _, err := r.Submit(Spec{Kind: models.JobDownload, Run: func(context.Context, UpdateFunc) (interface{}, error) {
		return nil, nil
	}}); err != nil {
		t.Errorf("Submit after completion failed: %v", err)
	}
	r.Wait()
}

func TestRunnerCancel(t *testing.T) {
	r := NewRunner(openTestStore(t), nil)
	flag := make(chan struct{})
	started := make(chan struct{})

	job, err := r.Submit(Spec{
		Kind:     models.JobDownload,
		OnCancel: func() { close(flag) },
		Run: func(ctx context.Context, update UpdateFunc) (interface{}, error) {
			close(started)
			<-ctx.Done()
			<-flag
			return "partial", nil
		},
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started
	if !r.Cancel() {
		t.Fatal("Cancel should report an active job")
	}
	r.Wait()

	got, err := r.Get(job.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != models.JobCancelled {
		t.Errorf("Expected cancelled, got %s", got.Status)
	}
	if r.Cancel() {
		t.Error("Cancel with no job should report false")
	}
}

func TestRunnerFailureAndPanic(t *testing.T) {
	r := NewRunner(nil, nil)
	tests := []struct {
		name string
		fn   Func
	}{
		{"error", func(context.Context, UpdateFunc) (interface{}, error) { return nil, errors.New("encoder crashed") }},
		{"panic", func(context.Context, UpdateFunc) (interface{}, error) { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &recordingPublisher{}
			r.pub = pub
			if _, err := r.Submit(Spec{Kind: models.JobVideo, Run: tt.fn}); err != nil {
				t.Fatalf("Submit failed: %v", err)
			}
			r.Wait()
			statuses := pub.statuses()
			if statuses[len(statuses)-1] != models.JobFailed {
				t.Errorf("Expected failed, got %v", statuses)
			}
			last := pub.jobs[len(pub.jobs)-1]
			if last.Error == "" {
				t.Error("Failed job should carry an error")
			}
		})
	}
}

func TestRunnerShutdown(t *testing.T) {
	r := NewRunner(nil, nil)
	if _, err := r.Submit(Spec{Kind: models.JobDownload, Run: func(ctx context.Context, update UpdateFunc) (interface{}, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := r.Submit(Spec{Kind: models.JobDownload, Run: func(context.Context, UpdateFunc) (interface{}, error) {
		return nil, nil
	}}); err == nil {
		t.Error("Submit after shutdown should fail")
	}
}
