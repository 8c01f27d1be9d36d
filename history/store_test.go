package history

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixopt/models"
)

func openTestStore(t *testing.T) {
	t.Helper()
	require.NoError(t, Init(t.TempDir()))
	t.Cleanup(func() { Close() })
}

var req = models.ImageRequest{Href: "/a.png", Width: 640, Quality: 75, MimeType: "image/webp"}

func TestStoreAndGet(t *testing.T) {
	openTestStore(t)

	rec := NewRecord("k1", KindSuccess, req)
	rec.ContentType = "image/webp"
	rec.Size = 1234
	require.NoError(t, StoreSuccess(rec))

	got, err := GetSuccess("k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/a.png", got.Href)
	assert.Equal(t, 1234, got.Size)
	assert.Equal(t, KindSuccess, got.Kind)

	missing, err := GetFailure("k1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSuccessClearsFailure(t *testing.T) {
	openTestStore(t)

	require.NoError(t, StoreFailure(NewRecord("k1", KindFallback, req), errors.New("codec failed")))
	got, err := GetFailure("k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, KindFallback, got.Kind)
	assert.Equal(t, "codec failed", got.Error)

	require.NoError(t, StoreSuccess(NewRecord("k1", KindSuccess, req)))
	got, err = GetFailure("k1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListSeparatesKinds(t *testing.T) {
	openTestStore(t)

	require.NoError(t, StoreSuccess(NewRecord("a", KindSuccess, req)))
	require.NoError(t, StoreSuccess(NewRecord("b", KindSuccess, req)))
	require.NoError(t, StoreFailure(NewRecord("c", "", req), errors.New("timeout")))

	successes, err := ListSuccesses()
	require.NoError(t, err)
	assert.Len(t, successes, 2)

	failures, err := ListFailures()
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, KindFailure, failures[0].Kind)
}

func TestCleanupOldRecords(t *testing.T) {
	openTestStore(t)

	old := NewRecord("old", KindSuccess, req)
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	require.NoError(t, StoreSuccess(old))
	require.NoError(t, StoreSuccess(NewRecord("new", KindSuccess, req)))

	removed, err := CleanupOldRecords(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	records, err := ListSuccesses()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].Key)
	assert.NoError(t, CheckHealth())
}

func TestNotInitialized(t *testing.T) {
	_, err := GetSuccess("x")
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, CheckHealth(), ErrNotInitialized)
}
