// Package job runs mirror jobs: copies of freshly cached images to the
// storage backends named in the image config. Jobs are persisted in the
// mirror queue so they survive a restart.
package job

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.trai.ch/zerr"

	"pixopt/logger"
	"pixopt/models"
	"pixopt/taskQueue"
	"pixopt/utils"
)

// JobState represents the current state of a job
type JobState int

const (
	JobStatePending JobState = iota
	JobStateProcessing
	JobStateCompleted
	JobStateFailed
	JobStateCancelled
)

func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "pending"
	case JobStateProcessing:
		return "processing"
	case JobStateCompleted:
		return "completed"
	case JobStateFailed:
		return "failed"
	case JobStateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// MarshalText lets JobState appear by name in JSON responses.
func (s JobState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrJobNotFound      = zerr.New("job not found")
	ErrJobNotCancelable = zerr.New("job cannot be cancelled")
)

// Status is a snapshot of one job.
type Status struct {
	Job   models.MirrorJob `json:"job"`
	State JobState         `json:"state"`
}

type tracked struct {
	job   models.MirrorJob
	state JobState
}

var (
	jobs = make(map[string]*tracked) // id -> job
	mu   sync.RWMutex
)

// Enqueue creates one mirror job per target for the entry stored in dir and
// persists it. A target that already has a pending job for the same cache
// key is skipped. The IDs of the new jobs are returned.
func Enqueue(cacheKey, dir, contentType string, mirrors []models.MirrorSpec) ([]string, error) {
	var ids []string
	for _, m := range mirrors {
		if hasPending(cacheKey, m) {
			continue
		}
		id, err := utils.GenerateRNS()
		if err != nil {
			return ids, err
		}
		j := models.MirrorJob{
			ID:          id,
			CacheKey:    cacheKey,
			Dir:         dir,
			ContentType: contentType,
			Mirror:      m,
			CreatedAt:   time.Now(),
		}
		if err := taskQueue.PutMirrorJob(j); err != nil {
			return ids, err
		}
		addPending(j)
		ids = append(ids, id)
	}
	return ids, nil
}

func hasPending(cacheKey string, m models.MirrorSpec) bool {
	mu.RLock()
	defer mu.RUnlock()
	for _, t := range jobs {
		if t.job.CacheKey == cacheKey && t.job.Mirror == m && t.state == JobStatePending {
			return true
		}
	}
	return false
}

func addPending(j models.MirrorJob) {
	mu.Lock()
	defer mu.Unlock()
	jobs[j.ID] = &tracked{job: j, state: JobStatePending}
}

// GetPendingJobs returns the pending jobs, oldest first.
func GetPendingJobs() []models.MirrorJob {
	mu.RLock()
	defer mu.RUnlock()
	var out []models.MirrorJob
	for _, t := range jobs {
		if t.state == JobStatePending {
			out = append(out, t.job)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID < out[k].ID
		}
		return out[i].CreatedAt.Before(out[k].CreatedAt)
	})
	return out
}

// CancelJob cancels a pending job and drops it from the queue.
func CancelJob(id string) error {
	mu.Lock()
	defer mu.Unlock()

	t, exists := jobs[id]
	if !exists {
		return zerr.With(zerr.Wrap(ErrJobNotFound, ""), "id", id)
	}
	if t.state != JobStatePending {
		return zerr.With(zerr.With(zerr.Wrap(ErrJobNotCancelable, ""), "id", id), "state", t.state.String())
	}
	if err := taskQueue.DeleteMirrorJob(id); err != nil {
		return err
	}
	t.state = JobStateCancelled
	return nil
}

// GetJobState returns the current state of a job
func GetJobState(id string) (JobState, bool) {
	mu.RLock()
	defer mu.RUnlock()
	t, exists := jobs[id]
	if !exists {
		return 0, false
	}
	return t.state, true
}

// GetJobStates returns every known job for a cache key.
func GetJobStates(cacheKey string) []Status {
	mu.RLock()
	defer mu.RUnlock()
	var out []Status
	for _, t := range jobs {
		if t.job.CacheKey == cacheKey {
			out = append(out, Status{Job: t.job, State: t.state})
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Job.ID < out[k].Job.ID })
	return out
}

// ScanForPendingJobs loads the persisted queue into memory, typically once
// at startup.
func ScanForPendingJobs() (int, error) {
	queued, err := taskQueue.ListMirrorJobs()
	if err != nil {
		return 0, err
	}
	mu.Lock()
	defer mu.Unlock()
	n := 0
	for _, j := range queued {
		if _, ok := jobs[j.ID]; ok {
			continue
		}
		jobs[j.ID] = &tracked{job: j, state: JobStatePending}
		n++
	}
	return n, nil
}

// ForgetFinished drops completed, failed and cancelled jobs from memory.
func ForgetFinished() int {
	mu.Lock()
	defer mu.Unlock()
	n := 0
	for id, t := range jobs {
		if t.state != JobStatePending && t.state != JobStateProcessing {
			delete(jobs, id)
			n++
		}
	}
	return n
}

func setState(id string, state JobState) {
	mu.Lock()
	defer mu.Unlock()
	if t, ok := jobs[id]; ok {
		t.state = state
	}
}

// claim moves a pending job to processing. It fails if the job was
// cancelled in the meantime.
func claim(id string) bool {
	mu.Lock()
	defer mu.Unlock()
	t, ok := jobs[id]
	if !ok || t.state != JobStatePending {
		return false
	}
	t.state = JobStateProcessing
	return true
}

func updateJob(j models.MirrorJob, state JobState) {
	mu.Lock()
	defer mu.Unlock()
	if t, ok := jobs[j.ID]; ok {
		t.job = j
		t.state = state
	}
}

// ProcessPendingJobs runs pending jobs until ctx is done, polling the queue
// every poll interval when it is empty.
func ProcessPendingJobs(ctx context.Context, poll time.Duration) error {
	for {
		pending := GetPendingJobs()
		if len(pending) > 0 {
			logger.Debugf("Processing %d pending mirror jobs", len(pending))
		}
		for _, j := range pending {
			if ctx.Err() != nil {
				return nil
			}
			if !claim(j.ID) {
				continue
			}
			processJob(ctx, j)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(poll):
		}
	}
}
