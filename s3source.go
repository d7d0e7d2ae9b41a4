package austrianelevation

import (
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// An S3Source fetches row files from a mirror in an S3 bucket, laid out as
// {prefix}/{database}/master/{y}.txt.
type S3Source struct {
	downloader    *s3manager.Downloader
	bucket        string
	prefix        string
	requesterPays bool
}

// NewS3Source returns a new S3Source using the shared AWS configuration.
func NewS3Source(bucket, prefix string, requesterPays bool) (*S3Source, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}
	return &S3Source{
		downloader:    s3manager.NewDownloader(sess),
		bucket:        bucket,
		prefix:        prefix,
		requesterPays: requesterPays,
	}, nil
}

// Key returns the object key of the row file for key.
func (s *S3Source) Key(key RowKey) string {
	return path.Join(s.prefix, fmt.Sprintf("%d/master/%d.txt", key.Database, key.Y))
}

func (s *S3Source) FetchRow(ctx context.Context, key RowKey) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.Key(key)),
	}
	if s.requesterPays {
		input.RequestPayer = aws.String(s3.RequestPayerRequester)
	}

	buffer := &aws.WriteAtBuffer{}
	if _, err := s.downloader.DownloadWithContext(ctx, buffer, input); err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", s.bucket, *input.Key, err)
	}
	return buffer.Bytes(), nil
}
