package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
)

// S3Options configures S3BlobStore. Endpoint and ForcePathStyle allow
// S3-compatible stores (MinIO, Supabase storage's S3 gateway).
type S3Options struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
	PublicBaseURL  string        // when set, URLs are PublicBaseURL/<name>
	PresignTTL     time.Duration // otherwise URLs are pre-signed for this long
}

// S3BlobStore keeps receipts as objects in one bucket.
type S3BlobStore struct {
	client *s3.S3
	opts   S3Options
}

// NewS3BlobStore builds the S3 client. Static credentials are used when both
// keys are set, otherwise the SDK's default chain applies.
func NewS3BlobStore(opts S3Options) (*S3BlobStore, error) {
	awsCfg := &aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(opts.ForcePathStyle),
	}
	if opts.Endpoint != "" {
		awsCfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(opts.AccessKey, opts.SecretKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, err
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	opts.PublicBaseURL = strings.TrimRight(opts.PublicBaseURL, "/")
	return &S3BlobStore{client: s3.New(sess), opts: opts}, nil
}

func (s *S3BlobStore) Kind() string { return "s3" }

// Put uploads the object. Existing objects are not expected since names are unique.
func (s *S3BlobStore) Put(ctx context.Context, name, contentType string, data []byte) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.opts.Bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

func (s *S3BlobStore) Get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3BlobStore) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(name),
	})
	return err
}

// URL returns the public object URL, or a pre-signed GET URL for private buckets.
func (s *S3BlobStore) URL(name string) string {
	if s.opts.PublicBaseURL != "" {
		return s.opts.PublicBaseURL + "/" + url.PathEscape(name)
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(name),
	})
	signed, err := req.Presign(s.opts.PresignTTL)
	if err != nil {
		logrus.WithFields(logrus.Fields{"blob": name, "error": err.Error()}).Warn("Failed to presign receipt URL")
		return ""
	}
	return signed
}

func (s *S3BlobStore) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.opts.Bucket)})
	return err
}
