package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mkoval/tradepilot/internal/domain"
)

// uploadPartSize is the part size handed to the upload manager. Monthly
// archive files are usually well under this, in which case the manager
// falls back to a single PutObject.
const uploadPartSize int64 = 8 * 1024 * 1024

// Writer implements domain.BlobWriter over the archive bucket.
type Writer struct {
	uploader *manager.Uploader
	bucket   string
}

var _ domain.BlobWriter = (*Writer)(nil)

// NewWriter builds a Writer over the given client's bucket.
func NewWriter(c *Client) *Writer {
	uploader := manager.NewUploader(c.S3(), func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})
	return &Writer{uploader: uploader, bucket: c.Bucket()}
}

// Put streams data to the given object path. The upload manager splits
// payloads larger than one part into a concurrent multipart upload, so a
// backlogged archive run does not have to buffer the whole export in memory.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}
