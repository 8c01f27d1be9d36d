package writerbackends

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.trai.ch/zerr"

	"pixopt/logger"
)

// s3Options builds the client options from accessInfo. An "endpoint" entry
// targets an S3-compatible service with path-style addressing.
func s3Options(accessInfo map[string]string) s3.Options {
	opts := s3.Options{
		Region:      accessInfo["region"],
		Credentials: credentials.NewStaticCredentialsProvider(accessInfo["accessKey"], accessInfo["secretKey"], ""),
	}
	if endpoint := accessInfo["endpoint"]; endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return opts
}

// UploadToS3WithCreds uploads content from an io.Reader to an S3 object
// and is fully self-contained, initializing its own client.
func UploadToS3WithCreds(ctx context.Context, accessInfo map[string]string, reader io.Reader) error {
	bucket := accessInfo["bucket"]
	if bucket == "" || accessInfo["region"] == "" {
		return zerr.New("s3: bucket and region are required")
	}
	key := objectPath(accessInfo)

	uploader := manager.NewUploader(s3.New(s3Options(accessInfo)))
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   reader,
	}
	if ct := accessInfo[KeyContentType]; ct != "" {
		input.ContentType = aws.String(ct)
	}

	if _, err := uploader.Upload(ctx, input); err != nil {
		return zerr.With(zerr.With(zerr.Wrap(err, "failed to upload object"), "bucket", bucket), "key", key)
	}

	logger.Infof("Successfully uploaded object '%s' to bucket '%s'", key, bucket)
	return nil
}
