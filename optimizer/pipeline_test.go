package optimizer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"pixopt/models"
	"pixopt/optimizer"
	"pixopt/optimizer/mocks"
)

func newPipeline(t *testing.T) (*optimizer.Pipeline, *mocks.MockFetcher, *mocks.MockTranscoder, *mocks.MockStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := mocks.NewMockFetcher(ctrl)
	tr := mocks.NewMockTranscoder(ctrl)
	s := mocks.NewMockStore(ctrl)
	return &optimizer.Pipeline{Fetcher: f, Transcoder: tr, Store: s}, f, tr, s
}

var req = models.ImageRequest{Href: "/a.png", Width: 640, Quality: 75, MimeType: "image/webp"}

func TestPipelineRun(t *testing.T) {
	p, f, tr, s := newPipeline(t)
	ctx := context.Background()

	f.EXPECT().Fetch(ctx, "/a.png").Return(models.UpstreamImage{Buffer: pngBytes, ContentType: "image/png"}, nil)
	tr.EXPECT().Transcode(ctx, gomock.Any()).Return([]byte("webp"), nil)
	s.EXPECT().
		Set(ctx, "key", models.CacheValue{Buffer: []byte("webp"), Extension: "webp", MaxAge: 60}).
		Return(&models.CacheEntry{ExpireAt: 42}, nil)

	out, err := p.Run(ctx, "key", req)
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), out.Result.Buffer)
	require.NotNil(t, out.Entry)
	assert.Equal(t, int64(42), out.Entry.ExpireAt)
	assert.NoError(t, out.CacheErr)
}

func TestPipelineCacheWriteFailureIsNotFatal(t *testing.T) {
	p, f, tr, s := newPipeline(t)
	ctx := context.Background()
	diskErr := errors.New("disk full")

	f.EXPECT().Fetch(ctx, "/a.png").Return(models.UpstreamImage{Buffer: pngBytes, ContentType: "image/png"}, nil)
	tr.EXPECT().Transcode(ctx, gomock.Any()).Return([]byte("webp"), nil)
	s.EXPECT().Set(ctx, "key", gomock.Any()).Return(nil, diskErr)

	out, err := p.Run(ctx, "key", req)
	require.NoError(t, err)
	assert.Equal(t, []byte("webp"), out.Result.Buffer)
	assert.Nil(t, out.Entry)
	assert.ErrorIs(t, out.CacheErr, diskErr)
}

func TestPipelineFetchError(t *testing.T) {
	p, f, _, _ := newPipeline(t)
	ctx := context.Background()
	fetchErr := errors.New("connection refused")

	f.EXPECT().Fetch(ctx, "/a.png").Return(models.UpstreamImage{}, fetchErr)

	_, err := p.Run(ctx, "key", req)
	assert.ErrorIs(t, err, fetchErr)
}

func TestPipelineRejectsSVGWithoutWriting(t *testing.T) {
	p, f, _, _ := newPipeline(t)
	ctx := context.Background()

	f.EXPECT().Fetch(ctx, "/a.png").Return(models.UpstreamImage{Buffer: []byte("<svg/>"), ContentType: "image/svg+xml"}, nil)

	_, err := p.Run(ctx, "key", req)
	assert.ErrorIs(t, err, optimizer.ErrSVGNotAllowed)
}
