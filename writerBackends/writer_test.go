package writerbackends

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteImageUnknownBackend(t *testing.T) {
	err := WriteImage(context.Background(), map[string]string{}, strings.NewReader("x"), "ftp")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestWriteImageDispatch(t *testing.T) {
	var got map[string]string
	orig := Writers[S3]
	Writers[S3] = func(_ context.Context, info map[string]string, r io.Reader) error {
		got = info
		_, err := io.ReadAll(r)
		return err
	}
	t.Cleanup(func() { Writers[S3] = orig })

	info := map[string]string{KeyObject: "a.webp", "bucket": "b"}
	require.NoError(t, WriteImage(context.Background(), info, strings.NewReader("x"), S3))
	assert.Equal(t, "b", got["bucket"])
}

func TestWriteImageWrapsBackendError(t *testing.T) {
	boom := errors.New("boom")
	orig := Writers[GCS]
	Writers[GCS] = func(context.Context, map[string]string, io.Reader) error { return boom }
	t.Cleanup(func() { Writers[GCS] = orig })

	err := WriteImage(context.Background(), map[string]string{}, strings.NewReader("x"), GCS)
	assert.ErrorIs(t, err, boom)
}

func TestDirectServe(t *testing.T) {
	base := t.TempDir()
	info := map[string]string{
		KeyBaseDir: base,
		KeyFolder:  "/mirror/",
		KeyObject:  "abc.webp",
	}
	require.NoError(t, UploadToDirectServe(context.Background(), info, strings.NewReader("payload")))

	data, err := os.ReadFile(filepath.Join(base, "mirror", "abc.webp"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	entries, err := os.ReadDir(filepath.Join(base, "mirror"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestDirectServeRejectsEscape(t *testing.T) {
	info := map[string]string{
		KeyBaseDir: t.TempDir(),
		KeyObject:  "../../etc/passwd",
	}
	err := UploadToDirectServe(context.Background(), info, strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrOutsideBaseDir)
}

func TestDirectServeNeedsBaseDir(t *testing.T) {
	err := UploadToDirectServe(context.Background(), map[string]string{KeyObject: "a"}, strings.NewReader("x"))
	assert.Error(t, err)
}

func TestObjectPath(t *testing.T) {
	assert.Equal(t, "a.png", objectPath(map[string]string{KeyObject: "a.png"}))
	assert.Equal(t, "p/q/a.png", objectPath(map[string]string{KeyFolder: "/p/q/", KeyObject: "a.png"}))
}

func TestServiceAccountJSON(t *testing.T) {
	raw := `{"type":"service_account"}`
	assert.Equal(t, raw, string(serviceAccountJSON(raw)))
	assert.Equal(t, raw, string(serviceAccountJSON("eyJ0eXBlIjoic2VydmljZV9hY2NvdW50In0=")))
}

func TestSSHAuthRequiresMethod(t *testing.T) {
	_, err := sshAuth(map[string]string{})
	assert.Error(t, err)

	auths, err := sshAuth(map[string]string{"password": "pw"})
	require.NoError(t, err)
	assert.Len(t, auths, 1)
}

func TestS3OptionsEndpoint(t *testing.T) {
	opts := s3Options(map[string]string{"region": "eu-west-1", "endpoint": "http://minio:9000"})
	assert.True(t, opts.UsePathStyle)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://minio:9000", *opts.BaseEndpoint)
	assert.Equal(t, "eu-west-1", opts.Region)
}
