package routes

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"pixopt/config"
	"pixopt/history"
	"pixopt/imagecache"
	"pixopt/imagetype"
	"pixopt/job"
	"pixopt/logger"
	"pixopt/metrics"
	"pixopt/models"
	"pixopt/optimizer"
	"pixopt/params"
	"pixopt/patterns"
	"pixopt/taskQueue"
	"pixopt/upstream"
)

// RevalidateTimeout bounds a background refresh of a stale entry.
const RevalidateTimeout = 30 * time.Second

// ImageHandler serves GET <cfg.Path>?url=&w=&q=.
type ImageHandler struct {
	Config   *config.ImageConfig
	Matcher  *patterns.Matcher
	Cache    *imagecache.Cache
	Pipeline *optimizer.Pipeline
	IsDev    bool

	base         context.Context
	revalidating sync.Map // key -> struct{}
	wg           sync.WaitGroup
}

// NewImageHandler builds a handler. Background revalidations stop when base
// is cancelled.
func NewImageHandler(base context.Context, cfg *config.ImageConfig, matcher *patterns.Matcher, cache *imagecache.Cache, pipeline *optimizer.Pipeline, isDev bool) *ImageHandler {
	return &ImageHandler{
		Config:   cfg,
		Matcher:  matcher,
		Cache:    cache,
		Pipeline: pipeline,
		IsDev:    isDev,
		base:     base,
	}
}

// Wait blocks until background revalidations have finished.
func (h *ImageHandler) Wait() { h.wg.Wait() }

func (h *ImageHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	reqID := uuid.NewString()
	w.Header().Set("X-Request-Id", reqID)

	req, perr := params.Validate(r.Header.Get("Accept"), r.URL.Query(), h.Config, h.Matcher, h.IsDev)
	if perr != nil {
		logger.Debugf("[%s] rejected image request: %s", reqID, perr.ErrorMessage)
		http.Error(w, perr.ErrorMessage, http.StatusBadRequest)
		return
	}

	key := imagecache.KeyFor(req)
	if entry, ok := h.Cache.Get(r.Context(), key); ok {
		result := metrics.CacheHit
		if entry.IsStale {
			result = metrics.CacheStale
			h.revalidate(key, req)
		}
		metrics.RecordLookup(result)
		contentType := imagetype.ContentTypeFor(entry.Value.Extension)
		sendImage(w, r, entry.Value.Buffer, contentType, entry.Value.MaxAge, result)
		return
	}
	metrics.RecordLookup(metrics.CacheMiss)

	out, err := h.run(r.Context(), key, req)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		status, msg := statusFor(err)
		logger.Warnf("[%s] %s: %v", reqID, req.Href, err)
		http.Error(w, msg, status)
		return
	}
	sendImage(w, r, out.Result.Buffer, out.Result.ContentType, out.Result.MaxAge, metrics.CacheMiss)
}

// revalidate refreshes a stale entry in the background, at most once per key
// at a time.
func (h *ImageHandler) revalidate(key string, req models.ImageRequest) {
	if _, busy := h.revalidating.LoadOrStore(key, struct{}{}); busy {
		return
	}
	base := h.base
	if base == nil {
		base = context.Background()
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.revalidating.Delete(key)

		ctx, cancel := context.WithTimeout(base, RevalidateTimeout)
		defer cancel()
		if _, err := h.run(ctx, key, req); err != nil {
			logger.Warnf("revalidation of %s failed: %v", req.Href, err)
		}
	}()
}

// run handles a miss or a revalidation: fetch, transcode, store, then record
// the outcome and queue mirror copies.
func (h *ImageHandler) run(ctx context.Context, key string, req models.ImageRequest) (optimizer.Outcome, error) {
	out, err := h.Pipeline.Run(ctx, key, req)
	if err != nil {
		recordUpstreamError(err)
		rec := history.NewRecord(key, history.KindFailure, req)
		storeHistory(func() error { return history.StoreFailure(rec, err) })
		return out, err
	}

	fallback := out.Result.Error != nil
	metrics.RecordTranscode(out.Result.ContentType, out.Duration, fallback)

	kind := history.KindSuccess
	if fallback {
		kind = history.KindFallback
		logger.Warnf("serving upstream bytes for %s: %v", req.Href, out.Result.Error)
	}
	rec := history.NewRecord(key, kind, req)
	rec.ContentType = out.Result.ContentType
	rec.Size = len(out.Result.Buffer)
	rec.MaxAge = out.Result.MaxAge
	rec.DurationMs = out.Duration.Milliseconds()

	if out.CacheErr != nil {
		logger.Errorf("failed to cache %s: %v", req.Href, out.CacheErr)
		rec.Kind = history.KindFailure
		storeHistory(func() error { return history.StoreFailure(rec, out.CacheErr) })
		return out, nil
	}

	if fallback {
		storeHistory(func() error { return history.StoreFailure(rec, out.Result.Error) })
	} else {
		storeHistory(func() error { return history.StoreSuccess(rec) })
	}

	if len(h.Config.Mirrors) > 0 {
		if _, err := job.Enqueue(key, h.Cache.Dir(key), out.Result.ContentType, h.Config.Mirrors); err != nil && !errors.Is(err, taskQueue.ErrQueueNotOpen) {
			logger.Errorf("failed to queue mirror jobs for %s: %v", key, err)
		}
	}
	return out, nil
}

// storeHistory runs a history write, tolerating a process that runs without
// the ledger.
func storeHistory(write func() error) {
	if err := write(); err != nil && !errors.Is(err, history.ErrNotInitialized) {
		logger.Errorf("failed to write history record: %v", err)
	}
}

func recordUpstreamError(err error) {
	switch {
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		metrics.RecordUpstreamError("timeout")
	case errors.Is(err, upstream.ErrUpstreamStatus):
		metrics.RecordUpstreamError("status")
	case errors.Is(err, upstream.ErrNotFound):
		metrics.RecordUpstreamError("not_found")
	case errors.Is(err, optimizer.ErrSVGNotAllowed), errors.Is(err, optimizer.ErrInvalidImage), errors.Is(err, optimizer.ErrUnableToOptimize):
	default:
		metrics.RecordUpstreamError("fetch")
	}
}

// statusFor maps a pipeline error to a status code and response body.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, upstream.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, upstream.ErrUpstreamTimeout.Error()
	case errors.Is(err, optimizer.ErrSVGNotAllowed):
		return http.StatusUnsupportedMediaType, optimizer.ErrSVGNotAllowed.Error()
	case errors.Is(err, optimizer.ErrInvalidImage):
		return http.StatusUnsupportedMediaType, optimizer.ErrInvalidImage.Error()
	case errors.Is(err, optimizer.ErrUnableToOptimize):
		return http.StatusInternalServerError, optimizer.ErrUnableToOptimize.Error()
	case errors.Is(err, upstream.ErrNotFound):
		return http.StatusNotFound, upstream.ErrNotFound.Error()
	}
	return http.StatusBadGateway, upstream.ErrUpstreamStatus.Error()
}

// ETag returns a quoted xxhash of buf.
func ETag(buf []byte) string {
	return `"` + strconv.FormatUint(xxhash.Sum64(buf), 36) + `"`
}

func sendImage(w http.ResponseWriter, r *http.Request, buf []byte, contentType string, maxAge int, cacheResult string) {
	etag := ETag(buf)
	h := w.Header()
	h.Set("Vary", "Accept")
	h.Set("Cache-Control", "public, max-age="+strconv.Itoa(maxAge)+", must-revalidate")
	h.Set("ETag", etag)
	h.Set("X-Pixopt-Cache", cacheResult)
	h.Set("X-Content-Type-Options", "nosniff")
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(buf); err != nil {
		logger.Debugf("failed to write image response: %v", err)
	}
}
