package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/sirupsen/logrus"

	"github.com/seqforge/seqnet/pkg/errors"
	"github.com/seqforge/seqnet/pkg/models"
)

// S3Config holds configuration for the S3 artifact store.
type S3Config struct {
	Region          string `json:"region"`
	Bucket          string `json:"bucket"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	ForcePathStyle  bool   `json:"force_path_style"`
	DisableSSL      bool   `json:"disable_ssl"`
	Prefix          string `json:"prefix"`
	MaxRetries      int    `json:"max_retries"`
	PartSize        int64  `json:"part_size"`
	UseCompression  bool   `json:"use_compression"`
	StorageClass    string `json:"storage_class"`
}

// S3Store implements interfaces.ArtifactStore on AWS S3 or any
// S3-compatible service reachable through a custom endpoint.
type S3Store struct {
	config     *S3Config
	s3Client   *s3.S3
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	logger     *logrus.Logger
	mu         sync.RWMutex
	closed     bool
}

// NewS3Store creates a new S3 artifact store.
func NewS3Store(config *S3Config, logger *logrus.Logger) (*S3Store, error) {
	if config == nil {
		return nil, errors.NewStorageError(errors.CodeInvalidInput, "s3 config cannot be nil")
	}
	if config.Bucket == "" {
		return nil, errors.NewStorageError(errors.CodeMissingField, "s3 bucket is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &S3Store{
		config: config,
		logger: logger,
	}, nil
}

// Connect establishes the AWS session and verifies bucket access.
func (s *S3Store) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.s3Client != nil {
		return nil
	}

	awsConfig := &aws.Config{
		Region: aws.String(s.config.Region),
	}
	if s.config.MaxRetries > 0 {
		awsConfig.MaxRetries = aws.Int(s.config.MaxRetries)
	}
	if s.config.AccessKeyID != "" && s.config.SecretAccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			s.config.AccessKeyID,
			s.config.SecretAccessKey,
			s.config.SessionToken,
		)
	}
	// Custom endpoints cover S3-compatible services such as MinIO.
	if s.config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(s.config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(s.config.ForcePathStyle)
	}
	if s.config.DisableSSL {
		awsConfig.DisableSSL = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			"failed to create AWS session")
	}

	client := s3.New(sess)
	_, err = client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed,
			fmt.Sprintf("failed to access bucket %q", s.config.Bucket))
	}

	s.s3Client = client
	s.uploader = s3manager.NewUploader(sess)
	s.downloader = s3manager.NewDownloader(sess)
	if s.config.PartSize > 0 {
		s.uploader.PartSize = s.config.PartSize
	}
	s.closed = false

	s.logger.WithFields(logrus.Fields{
		"region": s.config.Region,
		"bucket": s.config.Bucket,
	}).Info("Connected to S3")

	return nil
}

// Close releases the S3 clients.
func (s *S3Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.s3Client = nil
	s.uploader = nil
	s.downloader = nil
	s.closed = true

	s.logger.Info("S3 connection closed")
	return nil
}

// Ping verifies the bucket is still reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected(); err != nil {
		return err
	}

	_, err := s.s3Client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.config.Bucket),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError, "s3 ping failed")
	}
	return nil
}

// Put uploads the content read from r under key and returns the object URL.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected(); err != nil {
		return "", err
	}

	body := r
	contentEncoding := ""
	if s.config.UseCompression {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := io.Copy(gz, r); err != nil {
			return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				fmt.Sprintf("failed to compress artifact %q", key))
		}
		if err := gz.Close(); err != nil {
			return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				fmt.Sprintf("failed to compress artifact %q", key))
		}
		body = &buf
		contentEncoding = "gzip"
	}

	objectKey := s.objectKey(key)
	input := &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(objectKey),
		Body:        body,
		ContentType: aws.String("application/octet-stream"),
	}
	if contentEncoding != "" {
		input.ContentEncoding = aws.String(contentEncoding)
	}
	if s.config.StorageClass != "" {
		input.StorageClass = aws.String(s.config.StorageClass)
	}

	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return "", errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to upload artifact %q", key))
	}

	s.logger.WithFields(logrus.Fields{
		"bucket": s.config.Bucket,
		"key":    objectKey,
	}).Debug("Uploaded artifact")

	return s.location(objectKey), nil
}

// Get downloads the artifact stored under key.
func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	buf := aws.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, errors.NewStorageError(errors.CodeArtifactNotFound,
				fmt.Sprintf("artifact %q not found", key))
		}
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to download artifact %q", key))
	}

	data := buf.Bytes()
	if s.config.UseCompression {
		gz, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
				fmt.Sprintf("failed to decompress artifact %q", key))
		}
		defer gz.Close()

		decompressed, err := io.ReadAll(gz)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
				fmt.Sprintf("failed to decompress artifact %q", key))
		}
		data = decompressed
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the artifact stored under key. S3 delete is idempotent, so
// deleting a missing key succeeds.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected(); err != nil {
		return err
	}

	_, err := s.s3Client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeStorageError,
			fmt.Sprintf("failed to delete artifact %q", key))
	}
	return nil
}

// Exists reports whether an artifact is stored under key.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected(); err != nil {
		return false, err
	}

	_, err := s.s3Client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			fmt.Sprintf("failed to check artifact %q", key))
	}
	return true, nil
}

// List returns the keys stored under prefix, relative to the configured
// store prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkConnected(); err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	}

	var keys []string
	err := s.s3Client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				if obj.Key == nil {
					continue
				}
				if key := s.stripPrefix(*obj.Key); key != "" {
					keys = append(keys, key)
				}
			}
			return true
		})
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeReadFailed,
			"failed to list artifacts")
	}
	return keys, nil
}

// GetInfo returns a description of the S3 store.
func (s *S3Store) GetInfo(ctx context.Context) (*models.StorageInfo, error) {
	return &models.StorageInfo{
		Type:        "s3",
		Name:        "Amazon S3 Storage",
		Description: fmt.Sprintf("S3 artifact store using bucket %s", s.config.Bucket),
	}, nil
}

func (s *S3Store) checkConnected() error {
	if s.closed || s.s3Client == nil {
		return errors.NewStorageError(errors.CodeConnectionFailed, "s3 store not connected")
	}
	return nil
}

// objectKey maps an artifact key to the full object key in the bucket.
func (s *S3Store) objectKey(key string) string {
	if s.config.Prefix == "" {
		return key
	}
	if key == "" {
		return strings.TrimSuffix(s.config.Prefix, "/") + "/"
	}
	return path.Join(s.config.Prefix, key)
}

// stripPrefix maps an object key back to an artifact key. Keys outside the
// configured prefix map to the empty string.
func (s *S3Store) stripPrefix(objectKey string) string {
	if s.config.Prefix == "" {
		return objectKey
	}
	base := strings.TrimSuffix(s.config.Prefix, "/") + "/"
	if !strings.HasPrefix(objectKey, base) {
		return ""
	}
	return strings.TrimPrefix(objectKey, base)
}

func (s *S3Store) location(objectKey string) string {
	return fmt.Sprintf("s3://%s/%s", s.config.Bucket, objectKey)
}

// isNotFound reports whether err is an S3 missing-object error. HeadObject
// reports a bare 404 without the NoSuchKey code, so both are checked.
func isNotFound(err error) bool {
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
		if reqErr, ok := err.(awserr.RequestFailure); ok && reqErr.StatusCode() == 404 {
			return true
		}
	}
	return strings.Contains(err.Error(), "NoSuchKey")
}
