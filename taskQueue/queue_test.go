package taskQueue

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixopt/models"
)

func TestMirrorQueue(t *testing.T) {
	require.NoError(t, OpenMirrorQueueDB(filepath.Join(t.TempDir(), "MirrorQueue.db")))
	t.Cleanup(func() { CloseMirrorQueueDB() })

	job := models.MirrorJob{
		ID:        "job-1",
		CacheKey:  "abc",
		Dir:       "/cache/abc",
		Mirror:    models.MirrorSpec{Type: "s3", StorageKey: "prod"},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, PutMirrorJob(job))
	require.NoError(t, PutMirrorJob(models.MirrorJob{ID: "job-2", CacheKey: "def"}))

	got, err := GetMirrorJob("job-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, job, *got)

	job.Attempts = 2
	require.NoError(t, PutMirrorJob(job))
	jobs, err := ListMirrorJobs()
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, 2, jobs[0].Attempts)

	require.NoError(t, DeleteMirrorJob("job-1"))
	got, err = GetMirrorJob("job-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMirrorQueueClosed(t *testing.T) {
	_, err := ListMirrorJobs()
	assert.ErrorIs(t, err, ErrQueueNotOpen)
	assert.ErrorIs(t, PutMirrorJob(models.MirrorJob{ID: "x"}), ErrQueueNotOpen)
}
