package job

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"

	"pixopt/config"
	"pixopt/credentials"
	"pixopt/history"
	"pixopt/logger"
	"pixopt/metrics"
	"pixopt/models"
	"pixopt/taskQueue"
	writerbackends "pixopt/writerBackends"
)

// MaxAttempts is how often a job is tried before it is recorded as failed.
const MaxAttempts = 5

var ErrEntryGone = zerr.New("cache entry no longer exists")

// Seams for tests.
var (
	writeImage     = writerbackends.WriteImage
	getCredentials = credentials.GetCredentials
)

// processJob runs one claimed job and settles its state: completed and
// dequeued on success, requeued on a retryable failure, failed and dequeued
// once attempts run out or the entry is gone.
func processJob(ctx context.Context, j models.MirrorJob) {
	err := ProcessJob(ctx, j)
	if err == nil {
		if derr := taskQueue.DeleteMirrorJob(j.ID); derr != nil {
			logger.Errorf("Failed to dequeue mirror job %s: %v", j.ID, derr)
		}
		setState(j.ID, JobStateCompleted)
		metrics.RecordMirrorJob(j.Mirror.Type, JobStateCompleted.String())
		logger.Infof("Mirrored %s to %s", j.CacheKey, j.Mirror.Type)
		return
	}

	if ctx.Err() != nil {
		// shutdown: leave the job queued for the next run
		setState(j.ID, JobStatePending)
		return
	}

	j.Attempts++
	j.LastError = err.Error()
	logger.Warnf("Mirror job %s (%s -> %s) attempt %d failed: %v", j.ID, j.CacheKey, j.Mirror.Type, j.Attempts, err)

	if j.Attempts < MaxAttempts && !errors.Is(err, ErrEntryGone) {
		if perr := taskQueue.PutMirrorJob(j); perr != nil {
			logger.Errorf("Failed to requeue mirror job %s: %v", j.ID, perr)
		}
		updateJob(j, JobStatePending)
		return
	}

	if derr := taskQueue.DeleteMirrorJob(j.ID); derr != nil {
		logger.Errorf("Failed to dequeue mirror job %s: %v", j.ID, derr)
	}
	updateJob(j, JobStateFailed)
	metrics.RecordMirrorJob(j.Mirror.Type, JobStateFailed.String())
	storeFailure(j, err)
}

// ProcessJob uploads the current file of the job's cache entry.
func ProcessJob(ctx context.Context, j models.MirrorJob) error {
	file, err := currentFile(j.Dir)
	if err != nil {
		return err
	}

	accessInfo, err := prepareAccessInfo(j, file)
	if err != nil {
		return err
	}

	reader, err := os.Open(file)
	if err != nil {
		if os.IsNotExist(err) {
			return zerr.With(zerr.Wrap(ErrEntryGone, ""), "dir", j.Dir)
		}
		return zerr.Wrap(err, "failed to open cached file")
	}
	defer reader.Close()

	return writeImage(ctx, accessInfo, reader, j.Mirror.Type)
}

// currentFile returns the single file in a cache entry directory.
func currentFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", zerr.With(zerr.Wrap(ErrEntryGone, ""), "dir", dir)
		}
		return "", zerr.Wrap(err, "failed to read cache dir")
	}
	for _, e := range entries {
		if e.Type().IsRegular() && !strings.HasPrefix(e.Name(), ".") {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", zerr.With(zerr.Wrap(ErrEntryGone, ""), "dir", dir)
}

// objectName is <cacheKey>.<extension>; the extension is the last dot
// segment of the cache file name.
func objectName(cacheKey, file string) string {
	ext := path.Ext(filepath.Base(file))
	return cacheKey + ext
}

// prepareAccessInfo merges the stored credentials with the per-job keys.
func prepareAccessInfo(j models.MirrorJob, file string) (map[string]string, error) {
	accessInfo := make(map[string]string)

	if j.Mirror.StorageKey != "" {
		creds, err := getCredentials(j.Mirror.StorageKey)
		if err != nil {
			return nil, zerr.With(err, "storage_key", j.Mirror.StorageKey)
		}
		for k, v := range creds {
			accessInfo[k] = v
		}
	} else if j.Mirror.Type != writerbackends.DirectServe {
		return nil, zerr.With(zerr.New("mirror has no storage key"), "type", j.Mirror.Type)
	}

	accessInfo[writerbackends.KeyObject] = objectName(j.CacheKey, file)
	accessInfo[writerbackends.KeyFolder] = j.Mirror.Prefix
	accessInfo[writerbackends.KeyContentType] = j.ContentType

	if j.Mirror.Type == writerbackends.DirectServe {
		accessInfo[writerbackends.KeyBaseDir] = config.GetDirectServeBaseDir()
	}
	return accessInfo, nil
}

// storeFailure records a job that gave up in the history store.
func storeFailure(j models.MirrorJob, err error) {
	rec := history.NewRecord(j.CacheKey, history.KindFailure, models.ImageRequest{})
	rec.ContentType = j.ContentType
	if serr := history.StoreFailure(rec, zerr.Wrap(err, "mirror "+j.Mirror.Type)); serr != nil {
		logger.Errorf("Failed to store failure for %s: %v", j.CacheKey, serr)
	}
}
