package writerbackends

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"

	"pixopt/logger"
)

var ErrOutsideBaseDir = zerr.New("target path escapes the serve directory")

// UploadToDirectServe writes the image below baseDir so the HTTP server can
// serve it as a static file. The write goes through a temp file and a rename
// so readers never see a partial image.
func UploadToDirectServe(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	baseDir := accessInfo[KeyBaseDir]
	if baseDir == "" {
		return zerr.New("directServe: baseDir is not configured")
	}

	fullPath := filepath.Join(baseDir, filepath.FromSlash(objectPath(accessInfo)))
	rel, err := filepath.Rel(baseDir, fullPath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return zerr.With(zerr.Wrap(ErrOutsideBaseDir, ""), "path", fullPath)
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return zerr.Wrap(err, "failed to create directories")
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return zerr.Wrap(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return zerr.With(zerr.Wrap(err, "failed to write file"), "path", fullPath)
	}
	if err := tmp.Close(); err != nil {
		return zerr.Wrap(err, "failed to close temp file")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to move file into place"), "path", fullPath)
	}

	logger.Infof("Successfully saved '%s' to '%s'", accessInfo[KeyObject], fullPath)
	return nil
}
