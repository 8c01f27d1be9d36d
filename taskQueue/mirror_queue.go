package taskQueue

import (
	"encoding/json"
	"errors"

	"github.com/cockroachdb/pebble"
	"go.trai.ch/zerr"

	"pixopt/models"
)

// MirrorQueue persists mirror jobs until they succeed or give up, so a
// restart resumes them.
var MirrorQueue *DBQueue

var ErrQueueNotOpen = zerr.New("mirror queue not open")

// OpenMirrorQueueDB opens the mirror queue at path.
func OpenMirrorQueueDB(path string) error {
	q, err := OpenQueue(path)
	if err != nil {
		return err
	}
	MirrorQueue = q
	return nil
}

// CloseMirrorQueueDB closes the mirror queue if open.
func CloseMirrorQueueDB() error {
	if MirrorQueue == nil {
		return nil
	}
	err := MirrorQueue.Close()
	MirrorQueue = nil
	return err
}

// PutMirrorJob inserts or updates a job.
func PutMirrorJob(job models.MirrorJob) error {
	if MirrorQueue == nil {
		return ErrQueueNotOpen
	}
	data, err := json.Marshal(job)
	if err != nil {
		return zerr.Wrap(err, "failed to marshal mirror job")
	}
	return MirrorQueue.Add(job.ID, data)
}

// GetMirrorJob returns a job, or nil if it is not queued.
func GetMirrorJob(id string) (*models.MirrorJob, error) {
	if MirrorQueue == nil {
		return nil, ErrQueueNotOpen
	}
	data, err := MirrorQueue.Get(id)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, "failed to read mirror job")
	}
	var job models.MirrorJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to unmarshal mirror job"), "id", id)
	}
	return &job, nil
}

// ListMirrorJobs returns every queued job. Undecodable entries are skipped.
func ListMirrorJobs() ([]models.MirrorJob, error) {
	if MirrorQueue == nil {
		return nil, ErrQueueNotOpen
	}
	jobs := []models.MirrorJob{}
	err := MirrorQueue.Each(func(_ string, value []byte) error {
		var job models.MirrorJob
		if err := json.Unmarshal(value, &job); err == nil {
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		return nil, zerr.Wrap(err, "failed to list mirror jobs")
	}
	return jobs, nil
}

// DeleteMirrorJob removes a job from the queue.
func DeleteMirrorJob(id string) error {
	if MirrorQueue == nil {
		return ErrQueueNotOpen
	}
	return MirrorQueue.Delete(id)
}
