package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harlowframe/darkroom/internal/imagen"
	"github.com/harlowframe/darkroom/internal/model"
)

type fakeMeta struct {
	mu        sync.Mutex
	jobs      map[string]*model.ProcessingJob
	galleries map[string][]model.GalleryImage
	appendErr error
	denyClaim bool
}

func newFakeMeta(jobs ...*model.ProcessingJob) *fakeMeta {
	m := &fakeMeta{
		jobs:      map[string]*model.ProcessingJob{},
		galleries: map[string][]model.GalleryImage{},
	}
	for _, job := range jobs {
		m.jobs[job.ID] = job
	}
	return m
}

func (m *fakeMeta) GetJob(_ context.Context, id string) (*model.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, errors.New("job not found")
	}
	copied := *job
	return &copied, nil
}

func (m *fakeMeta) UpdateJobStatus(_ context.Context, id string, status model.JobStatus, extra map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return errors.New("job not found")
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	for k, v := range extra {
		switch k {
		case "error":
			job.Error = v.(string)
		case "source":
			job.Source = v.(string)
		case "remoteProjectId":
			job.RemoteProjectID = v.(string)
		case "resultKeys":
			job.ResultKeys = v.([]string)
		case "completedAt":
			t := v.(time.Time)
			job.CompletedAt = &t
		}
	}
	return nil
}

func (m *fakeMeta) ClaimJobStatus(_ context.Context, id string, from, to model.JobStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.denyClaim {
		return false, nil
	}
	job, ok := m.jobs[id]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	job.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *fakeMeta) ListJobsByStatus(_ context.Context, statuses ...model.JobStatus) ([]model.ProcessingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.ProcessingJob{}
	for _, job := range m.jobs {
		for _, st := range statuses {
			if job.Status == st {
				out = append(out, *job)
				break
			}
		}
	}
	return out, nil
}

func (m *fakeMeta) AppendGalleryImages(_ context.Context, id string, images []model.GalleryImage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.galleries[id] = append(m.galleries[id], images...)
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string][]byte
	removed []string
	downErr error
	putErr  error
	rmErr   error
}

func newFakeStore(objects map[string][]byte) *fakeStore {
	if objects == nil {
		objects = map[string][]byte{}
	}
	return &fakeStore{objects: objects, puts: map[string][]byte{}}
}

func (s *fakeStore) Download(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downErr != nil {
		return nil, s.downErr
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return data, nil
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.puts[key] = data
	return nil
}

func (s *fakeStore) Remove(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rmErr != nil {
		return s.rmErr
	}
	s.removed = append(s.removed, keys...)
	return nil
}

// fakeEdit scripts the remote editing service and records every call so tests
// can assert which remote operations ran.
type fakeEdit struct {
	mu    sync.Mutex
	calls []string

	noCreds    bool
	projectID  string
	createErr  error
	links      map[string]string
	linksErr   error
	uploadErr  error
	uploaded   []string
	editErr    error
	profileKey string

	editStatus    imagen.Status
	editStatusErr error
	exportErr     error
	idempotency   string

	exportStatus    imagen.Status
	exportStatusErr error
	exportLinks     []imagen.FileLink
	exportLinksErr  error
	downloads       map[string][]byte
	downloadErr     error
}

func (e *fakeEdit) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *fakeEdit) HasCredentials() bool { return !e.noCreds }

func (e *fakeEdit) CreateProject(context.Context) (string, error) {
	e.record("CreateProject")
	if e.createErr != nil {
		return "", e.createErr
	}
	if e.projectID == "" {
		return "proj-1", nil
	}
	return e.projectID, nil
}

func (e *fakeEdit) UploadLinks(_ context.Context, _ string, _ []string) (map[string]string, error) {
	e.record("UploadLinks")
	return e.links, e.linksErr
}

func (e *fakeEdit) UploadFile(_ context.Context, link string, _ []byte) error {
	e.record("UploadFile")
	if e.uploadErr != nil {
		return e.uploadErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.uploaded = append(e.uploaded, link)
	return nil
}

func (e *fakeEdit) StartEdit(_ context.Context, _ string, profileKey string) error {
	e.record("StartEdit")
	e.profileKey = profileKey
	return e.editErr
}

func (e *fakeEdit) EditStatus(context.Context, string) (imagen.Status, error) {
	e.record("EditStatus")
	return e.editStatus, e.editStatusErr
}

func (e *fakeEdit) StartExport(_ context.Context, _ string, idempotencyKey string) error {
	e.record("StartExport")
	e.idempotency = idempotencyKey
	return e.exportErr
}

func (e *fakeEdit) ExportStatus(context.Context, string) (imagen.Status, error) {
	e.record("ExportStatus")
	return e.exportStatus, e.exportStatusErr
}

func (e *fakeEdit) ExportLinks(context.Context, string) ([]imagen.FileLink, error) {
	e.record("ExportLinks")
	return e.exportLinks, e.exportLinksErr
}

func (e *fakeEdit) Download(_ context.Context, url string) ([]byte, error) {
	e.record("Download")
	if e.downloadErr != nil {
		return nil, e.downloadErr
	}
	data, ok := e.downloads[url]
	if !ok {
		return nil, errors.New("no download scripted for " + url)
	}
	return data, nil
}

func (e *fakeEdit) called(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.calls {
		if c == name {
			return true
		}
	}
	return false
}
