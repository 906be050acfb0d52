package job

import (
	"fmt"
	"sync"
	"time"

	"portmux/internal/api"

	"github.com/google/uuid"
)

// statusRank orders statuses so transitions stay monotonic. A target or job
// never regresses: queued -> running -> terminal.
var statusRank = map[string]int{
	api.JobStatusQueued:     0,
	api.TargetStatusRunning: 1,
	api.JobStatusCompleted:  2,
	api.JobStatusFailed:     2,
	api.TargetStatusSuccess: 2,
}

// Store is the in-memory registry of jobs and their targets. All mutation
// goes through it so readers always observe a consistent, monotonic
// progression of statuses and an append-only log.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*api.Job
}

// NewStore creates a new store
func NewStore() *Store {
	return &Store{jobs: make(map[string]*api.Job)}
}

// TargetSpec is the submission shape for one target.
type TargetSpec struct {
	Port      string                 `json:"port"`
	Variables map[string]interface{} `json:"variables"`
}

// Create registers a new queued job bound to a template and/or macro.
func (s *Store) Create(templateName, macroName string, targets []TargetSpec) *api.Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	j := &api.Job{
		ID:        uuid.NewString(),
		Template:  templateName,
		Macro:     macroName,
		Status:    api.JobStatusQueued,
		CreatedAt: now,
	}
	for _, spec := range targets {
		j.Targets = append(j.Targets, api.JobTarget{
			ID:        uuid.NewString(),
			JobID:     j.ID,
			Port:      spec.Port,
			Variables: spec.Variables,
			Status:    api.TargetStatusQueued,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	s.jobs[j.ID] = j
	return snapshotJob(j)
}

// Get returns a snapshot of a job.
func (s *Store) Get(id string) (*api.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, api.NewNotFoundError("job", id)
	}
	return snapshotJob(j), nil
}

// List returns snapshots of all jobs.
func (s *Store) List() []*api.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*api.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, snapshotJob(j))
	}
	return out
}

// SetJobStatus advances a job's status. Regressions are rejected.
func (s *Store) SetJobStatus(jobID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return api.NewNotFoundError("job", jobID)
	}
	if statusRank[status] < statusRank[j.Status] {
		return fmt.Errorf("job %s: status cannot regress from %s to %s", jobID, j.Status, status)
	}
	j.Status = status
	return nil
}

// SetTargetStatus advances a target's status. Regressions are rejected.
func (s *Store) SetTargetStatus(jobID, targetID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.target(jobID, targetID)
	if err != nil {
		return err
	}
	if statusRank[status] < statusRank[t.Status] {
		return fmt.Errorf("target %s: status cannot regress from %s to %s", targetID, t.Status, status)
	}
	t.Status = status
	t.UpdatedAt = time.Now()
	return nil
}

// AppendTargetLog appends one line to a target's log.
func (s *Store) AppendTargetLog(jobID, targetID, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.target(jobID, targetID)
	if err != nil {
		return
	}
	if t.Log != "" {
		t.Log += "\n"
	}
	t.Log += line
	t.UpdatedAt = time.Now()
}

// SetTargetResults records the verification results for a target.
func (s *Store) SetTargetResults(jobID, targetID string, results []api.VerificationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.target(jobID, targetID)
	if err != nil {
		return
	}
	t.VerificationResults = results
	t.UpdatedAt = time.Now()
}

// SetTargetFailure records the category and remediation hint on a target.
func (s *Store) SetTargetFailure(jobID, targetID, category, remediation string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.target(jobID, targetID)
	if err != nil {
		return
	}
	t.FailureCategory = category
	t.Remediation = remediation
	t.UpdatedAt = time.Now()
}

func (s *Store) target(jobID, targetID string) (*api.JobTarget, error) {
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, api.NewNotFoundError("job", jobID)
	}
	for i := range j.Targets {
		if j.Targets[i].ID == targetID {
			return &j.Targets[i], nil
		}
	}
	return nil, api.NewNotFoundError("job target", targetID)
}

func snapshotJob(j *api.Job) *api.Job {
	out := *j
	out.Targets = make([]api.JobTarget, len(j.Targets))
	copy(out.Targets, j.Targets)
	for i := range out.Targets {
		t := &out.Targets[i]
		if t.VerificationResults != nil {
			results := make([]api.VerificationResult, len(t.VerificationResults))
			copy(results, t.VerificationResults)
			t.VerificationResults = results
		}
	}
	return &out
}
