package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/harlowframe/darkroom/internal/model"
	"github.com/harlowframe/darkroom/internal/storage"
)

var testProfiles = Profiles{RAW: "profile-raw", JPG: "profile-jpg"}

func testLayout() storage.Layout {
	return storage.Layout{Staging: "staging/", Review: "review/", Gallery: "galleries/"}
}

func newOrchestratorUnderTest(meta *fakeMeta, store *fakeStore, edit *fakeEdit) *Orchestrator {
	return NewOrchestrator(meta, store, edit, testProfiles, zerolog.Nop())
}

func queuedJob(id string) *model.ProcessingJob {
	return &model.ProcessingJob{ID: id, Status: model.StatusQueued, RawKeys: []string{"staging/a.cr2", "staging/b.cr2"}}
}

func TestOrchestrateSuccess(t *testing.T) {
	job := queuedJob("job-1")
	meta := newFakeMeta(job)
	store := newFakeStore(map[string][]byte{
		"staging/a.cr2": []byte("raw-a"),
		"staging/b.cr2": []byte("raw-b"),
	})
	edit := &fakeEdit{
		projectID: "proj-42",
		links:     map[string]string{"a.cr2": "https://up/a", "b.cr2": "https://up/b"},
	}

	err := newOrchestratorUnderTest(meta, store, edit).Run(context.Background(), OrchestrateRequest{
		JobID:   "job-1",
		RawKeys: job.RawKeys,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := meta.GetJob(context.Background(), "job-1")
	if got.Status != model.StatusProcessing {
		t.Fatalf("status = %s, want processing", got.Status)
	}
	if got.RemoteProjectID != "proj-42" {
		t.Fatalf("remoteProjectId = %q, want proj-42", got.RemoteProjectID)
	}
	if len(got.RawKeys) != 2 || got.RawKeys[0] != "staging/a.cr2" {
		t.Fatalf("rawKeys mutated: %v", got.RawKeys)
	}
	if len(edit.uploaded) != 2 {
		t.Fatalf("uploaded %d files, want 2", len(edit.uploaded))
	}
	if edit.profileKey != "profile-raw" {
		t.Fatalf("profile = %q, want profile-raw", edit.profileKey)
	}
}

func TestOrchestrateRemoteFailureRecordsStatusAndBody(t *testing.T) {
	job := queuedJob("job-1")
	meta := newFakeMeta(job)
	edit := &fakeEdit{createErr: errors.New("imagen: POST /projects status 500: internal error")}

	err := newOrchestratorUnderTest(meta, newFakeStore(nil), edit).Run(context.Background(), OrchestrateRequest{
		JobID:   "job-1",
		RawKeys: job.RawKeys,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	got, _ := meta.GetJob(context.Background(), "job-1")
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "500") || !strings.Contains(got.Error, "internal error") {
		t.Fatalf("error missing status/body: %q", got.Error)
	}
}

func TestOrchestrateMissingCredentialsFailsBeforeRemoteCalls(t *testing.T) {
	job := queuedJob("job-1")
	meta := newFakeMeta(job)
	edit := &fakeEdit{noCreds: true}

	err := newOrchestratorUnderTest(meta, newFakeStore(nil), edit).Run(context.Background(), OrchestrateRequest{
		JobID:   "job-1",
		RawKeys: job.RawKeys,
	})
	if err == nil {
		t.Fatal("expected error")
	}

	got, _ := meta.GetJob(context.Background(), "job-1")
	if got.Status != model.StatusFailed || got.Error == "" {
		t.Fatalf("job = %s/%q, want failed with message", got.Status, got.Error)
	}
	if len(edit.calls) != 0 {
		t.Fatalf("remote calls made on config error: %v", edit.calls)
	}
}

func TestOrchestrateMissingProfileFailsBeforeRemoteCalls(t *testing.T) {
	job := queuedJob("job-1")
	meta := newFakeMeta(job)
	edit := &fakeEdit{}

	orch := NewOrchestrator(meta, newFakeStore(nil), edit, Profiles{}, zerolog.Nop())
	if err := orch.Run(context.Background(), OrchestrateRequest{JobID: "job-1", RawKeys: job.RawKeys}); err == nil {
		t.Fatal("expected error")
	}
	if len(edit.calls) != 0 {
		t.Fatalf("remote calls made on config error: %v", edit.calls)
	}
}

func TestOrchestrateMissingUploadLinkFailsWholeJob(t *testing.T) {
	job := queuedJob("job-1")
	meta := newFakeMeta(job)
	store := newFakeStore(map[string][]byte{
		"staging/a.cr2": []byte("raw-a"),
		"staging/b.cr2": []byte("raw-b"),
	})
	edit := &fakeEdit{links: map[string]string{"a.cr2": "https://up/a"}} // b.cr2 missing

	err := newOrchestratorUnderTest(meta, store, edit).Run(context.Background(), OrchestrateRequest{
		JobID:   "job-1",
		RawKeys: job.RawKeys,
	})
	if err == nil || !strings.Contains(err.Error(), "b.cr2") {
		t.Fatalf("err = %v, want missing link for b.cr2", err)
	}
	got, _ := meta.GetJob(context.Background(), "job-1")
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if edit.called("UploadFile") {
		t.Fatal("uploads attempted despite missing link")
	}
	if edit.called("StartEdit") {
		t.Fatal("edit started despite missing link")
	}
}

func TestOrchestratePersistsSourceWhileUploading(t *testing.T) {
	job := queuedJob("job-1")
	meta := newFakeMeta(job)
	store := newFakeStore(map[string][]byte{
		"staging/a.cr2": []byte("raw-a"),
		"staging/b.cr2": []byte("raw-b"),
	})
	edit := &fakeEdit{links: map[string]string{"a.cr2": "u", "b.cr2": "u"}}

	err := newOrchestratorUnderTest(meta, store, edit).Run(context.Background(), OrchestrateRequest{
		JobID:   "job-1",
		RawKeys: job.RawKeys,
		Source:  model.SourceImagen,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got, _ := meta.GetJob(context.Background(), "job-1")
	if got.Source != model.SourceImagen {
		t.Fatalf("source = %q, want imagen", got.Source)
	}
}

func TestOrchestrateEmptyRawKeys(t *testing.T) {
	job := queuedJob("job-1")
	meta := newFakeMeta(job)
	edit := &fakeEdit{}
	err := newOrchestratorUnderTest(meta, newFakeStore(nil), edit).Run(context.Background(), OrchestrateRequest{JobID: "job-1"})
	if err == nil {
		t.Fatal("expected error")
	}
	got, _ := meta.GetJob(context.Background(), "job-1")
	if got.Status != model.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
}

func TestProfileResolve(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		override string
		want     string
	}{
		{"all jpg", []string{"staging/a.jpg", "staging/b.JPEG"}, "", "profile-jpg"},
		{"mixed", []string{"staging/a.jpg", "staging/b.cr2"}, "", "profile-raw"},
		{"all raw", []string{"staging/a.cr2", "staging/b.nef"}, "", "profile-raw"},
		{"override wins", []string{"staging/a.jpg"}, "profile-custom", "profile-custom"},
		{"empty batch", nil, "", "profile-raw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testProfiles.Resolve(tt.keys, tt.override); got != tt.want {
				t.Fatalf("Resolve(%v, %q) = %q, want %q", tt.keys, tt.override, got, tt.want)
			}
		})
	}
}
