package s3blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/neonslash/neonvault/internal/domain"
)

// Reader implements domain.BlobReader. Paths are relative to the client's
// key prefix.
type Reader struct {
	c *Client
}

var _ domain.BlobReader = (*Reader)(nil)

// NewReader creates a Reader over the client's bucket.
func NewReader(c *Client) *Reader {
	return &Reader{c: c}
}

// Get returns the object body. The caller closes it. Missing objects yield
// domain.ErrNotFound.
func (r *Reader) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := r.c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.c.bucket),
		Key:    aws.String(r.c.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("s3blob: get %s: %w", path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3blob: get %s: %w", path, err)
	}
	return out.Body, nil
}

// List returns every object under prefix, following continuation tokens.
func (r *Reader) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo

	paginator := s3.NewListObjectsV2Paginator(r.c.s3, &s3.ListObjectsV2Input{
		Bucket: aws.String(r.c.bucket),
		Prefix: aws.String(r.c.key(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3blob: list prefix %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			info := domain.BlobInfo{
				Path: r.c.trim(aws.ToString(obj.Key)),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

// Exists reports whether an object is stored at path.
func (r *Reader) Exists(ctx context.Context, path string) (bool, error) {
	_, err := r.c.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.c.bucket),
		Key:    aws.String(r.c.key(path)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3blob: exists %s: %w", path, err)
	}
	return true, nil
}

// isNotFound matches NoSuchKey from GetObject, NotFound from HeadObject, and
// the bare 404 some S3-compatible providers send instead.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var httpErr interface{ HTTPStatusCode() int }
	return errors.As(err, &httpErr) && httpErr.HTTPStatusCode() == http.StatusNotFound
}
