package writerbackends

import (
	"context"
	"encoding/base64"
	"io"

	"cloud.google.com/go/storage"
	"go.trai.ch/zerr"
	"google.golang.org/api/option"

	"pixopt/logger"
)

// serviceAccountJSON accepts the key either base64 encoded or raw.
func serviceAccountJSON(v string) []byte {
	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded
	}
	return []byte(v)
}

// UploadToGCSWithJSON uploads content from an io.Reader to a Google Cloud
// Storage object, using the service account key in accessInfo.
func UploadToGCSWithJSON(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	bucketName := accessInfo["bucket"]
	if bucketName == "" || accessInfo["credentialsJSON"] == "" {
		return zerr.New("gcs: bucket and credentialsJSON are required")
	}
	objectName := objectPath(accessInfo)

	client, err := storage.NewClient(ctx, option.WithCredentialsJSON(serviceAccountJSON(accessInfo["credentialsJSON"])))
	if err != nil {
		return zerr.Wrap(err, "storage.NewClient")
	}
	defer client.Close()

	wc := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	wc.ContentType = accessInfo[KeyContentType]

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return zerr.Wrap(err, "io.Copy")
	}
	if err := wc.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "Writer.Close"), "object", objectName)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", objectName, bucketName)
	return nil
}
