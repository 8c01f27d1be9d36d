// Package writerbackends copies cached images to mirror storage. Every
// backend takes an accessInfo map built from the stored credentials plus the
// object name chosen by the mirror job.
package writerbackends

import (
	"context"
	"io"

	"go.trai.ch/zerr"
)

// Backend types accepted by WriteImage.
const (
	DirectServe = "directServe"
	S3          = "s3"
	GCS         = "gcs"
	SFTP        = "sftp"
)

var ErrUnknownBackend = zerr.New("unknown backend type")

// accessInfo keys set by the caller, on top of the stored credentials.
const (
	KeyObject      = "object"      // object name relative to the mirror root
	KeyFolder      = "folder"      // mirror prefix
	KeyContentType = "contentType" // MIME type of the payload
	KeyBaseDir     = "baseDir"     // directServe root, set from config only
)

// Writer uploads one image.
type Writer func(ctx context.Context, accessInfo map[string]string, reader io.Reader) error

// Writers maps backend type to implementation. Tests replace entries.
var Writers = map[string]Writer{
	DirectServe: UploadToDirectServe,
	S3:          UploadToS3WithCreds,
	GCS:         UploadToGCSWithJSON,
	SFTP:        UploadToSFTPWithCreds,
}

// WriteImage dispatches to the backend named by backendType.
func WriteImage(ctx context.Context, accessInfo map[string]string, reader io.Reader, backendType string) error {
	w, ok := Writers[backendType]
	if !ok {
		return zerr.With(zerr.Wrap(ErrUnknownBackend, "write image"), "backend", backendType)
	}
	if err := w(ctx, accessInfo, reader); err != nil {
		return zerr.With(zerr.Wrap(err, "upload failed"), "backend", backendType)
	}
	return nil
}

// objectPath joins the mirror prefix and object name with '/'.
func objectPath(accessInfo map[string]string) string {
	folder := accessInfo[KeyFolder]
	object := accessInfo[KeyObject]
	if folder == "" {
		return object
	}
	return trimSlashes(folder) + "/" + object
}

func trimSlashes(s string) string {
	for len(s) > 0 && s[0] == '/' {
		s = s[1:]
	}
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
