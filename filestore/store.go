// Package filestore keeps uploaded business documents in an S3 bucket and
// hands back their public URLs.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrForeignURL is returned when a URL does not point into the bucket.
var ErrForeignURL = errors.New("filestore: url is not in bucket")

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Object is a file to upload. Field is the form field it arrived in (logo,
// certificate) and Owner the id it belongs to; both shape the key.
type Object struct {
	Field       string
	Owner       string
	Filename    string
	ContentType string
	Size        int64
	Body        io.ReadSeeker
}

// Store uploads to and deletes from one bucket.
type Store struct {
	api    s3API
	bucket string
	region string
	logger *zap.Logger
	newID  func() string
}

// NewClient builds the S3 client used by Store.
func NewClient(cfg aws.Config) *s3.Client {
	return s3.NewFromConfig(cfg)
}

func New(api s3API, bucket, region string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		api:    api,
		bucket: bucket,
		region: region,
		logger: logger,
		newID:  uuid.NewString,
	}
}

// Put uploads obj as a public object and returns its URL.
func (s *Store) Put(ctx context.Context, obj Object) (string, error) {
	key := s.key(obj)
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        obj.Body,
		ContentType: aws.String(contentType(obj.ContentType)),
		ACL:         types.ObjectCannedACLPublicRead,
		Metadata: map[string]string{
			"fieldname":    obj.Field,
			"originalname": obj.Filename,
		},
	}
	if obj.Size > 0 {
		in.ContentLength = aws.Int64(obj.Size)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("filestore: put %s: %w", key, err)
	}

	url := s.URL(key)
	s.logger.Debug("file uploaded", zap.String("key", key))
	return url, nil
}

// Delete removes the object behind url.
func (s *Store) Delete(ctx context.Context, url string) error {
	key, ok := s.KeyFromURL(url)
	if !ok {
		return fmt.Errorf("%w: %s", ErrForeignURL, url)
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("filestore: delete %s: %w", key, err)
	}
	return nil
}

// URL is the public virtual-hosted URL of key.
func (s *Store) URL(key string) string {
	return s.baseURL() + key
}

// KeyFromURL extracts the object key from a URL produced by URL.
func (s *Store) KeyFromURL(url string) (string, bool) {
	key, ok := strings.CutPrefix(url, s.baseURL())
	if !ok || key == "" {
		return "", false
	}
	return key, true
}

func (s *Store) baseURL() string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/", s.bucket, s.region)
}

// key is uploads/<field>/<owner>/<field>-<id><ext>.
func (s *Store) key(obj Object) string {
	field := obj.Field
	if field == "" {
		field = "file"
	}
	owner := obj.Owner
	if owner == "" {
		owner = "general"
	}
	ext := strings.ToLower(path.Ext(obj.Filename))
	return path.Join("uploads", field, owner, field+"-"+s.newID()+ext)
}

func contentType(ct string) string {
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}
