package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/neonslash/neonvault/internal/domain"
)

// minPartSize is the smallest part S3 accepts in a multipart upload.
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter. Paths are relative to the client's
// key prefix.
type Writer struct {
	c *Client
}

var _ domain.BlobWriter = (*Writer)(nil)

// NewWriter creates a Writer over the client's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{c: c}
}

// Put uploads data in a single PutObject request.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.c.bucket),
		Key:         aws.String(w.c.key(path)),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams data through the SDK upload manager in parts of
// partSize bytes, raised to the S3 minimum when smaller.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	partSize = max(partSize, minPartSize)
	uploader := manager.NewUploader(w.c.s3, func(u *manager.Uploader) {
		u.PartSize = partSize
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.c.bucket),
		Key:         aws.String(w.c.key(path)),
		Body:        data,
		ContentType: aws.String(jsonlContentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}
