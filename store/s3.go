package store

import (
	"bytes"
	"log"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	raven "github.com/getsentry/raven-go"
)

// An S3 store keeps objects on AWS S3 or an S3 compatible service such as
// Minio. It exists so a migration can target self-hosted storage with the
// same orchestration code used for the hosted service.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc    *s3.S3
	Bucket string
	Prefix string
}

// NewS3 creates a new S3 store. It will use the given bucket and will
// prepend prefix to all keys. This is to allow for a bucket to be used for
// more than one store. The authorization method and credentials in the
// session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return &S3{
		Bucket: bucket,
		Prefix: prefix,
		svc:    s3.New(awsSession),
	}
}

// BucketExists reports whether the bucket is reachable with the current
// credentials.
func (s *S3) BucketExists() (bool, error) {
	_, err := s.svc.HeadBucket(&s3.HeadBucketInput{
		Bucket: aws.String(s.Bucket),
	})
	if err == nil {
		return true, nil
	}
	if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == 404 {
		return false, nil
	}
	return false, s.wrap("bucket", "", err)
}

// CreateBucket creates the bucket. S3 has no per-bucket public flag or
// file size limit in the create call, so both arguments are ignored;
// access policy is expected to be provisioned separately.
func (s *S3) CreateBucket(public bool, fileSizeLimit int64) error {
	_, err := s.svc.CreateBucket(&s3.CreateBucketInput{
		Bucket: aws.String(s.Bucket),
	})
	if err != nil {
		return s.wrap("create-bucket", "", err)
	}
	return nil
}

// List returns the entries directly under prefix. Common prefixes are
// returned as folder markers so listings mirror the hosted service's
// folder placeholders.
func (s *S3) List(prefix string) ([]Entry, error) {
	full := s.Prefix + prefix
	if full != "" && !strings.HasSuffix(full, "/") {
		full += "/"
	}
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.Bucket),
		Prefix:    aws.String(full),
		Delimiter: aws.String("/"),
	}
	var entries []Entry
	err := s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, p := range page.CommonPrefixes {
				name := strings.TrimSuffix(strings.TrimPrefix(*p.Prefix, full), "/")
				if name != "" {
					entries = append(entries, Entry{Name: name, IsFolder: true})
				}
			}
			for _, item := range page.Contents {
				name := strings.TrimPrefix(*item.Key, full)
				if name != "" {
					entries = append(entries, Entry{Name: name})
				}
			}
			return !lastpage
		})
	if err != nil {
		log.Println("S3 List:", s.Prefix, prefix, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix})
		return nil, s.wrap("list", prefix, err)
	}
	return entries, nil
}

// Upload stores data under key with a single PutObject. The assets being
// migrated are small files, so the multipart interface is not needed.
// PutObject always overwrites, so opts.Upsert is implicit.
func (s *S3) Upload(key string, data []byte, opts UploadOptions) error {
	input := &s3.PutObjectInput{
		Body:          bytes.NewReader(data),
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(s.Prefix + key),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	_, err := s.svc.PutObject(input)
	if err != nil {
		log.Println("S3 Upload:", s.Prefix, key, err)
		raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Key": key})
		return s.wrap("upload", key, err)
	}
	return nil
}

// SignedURL presigns a GET of the given key.
func (s *S3) SignedURL(key string, expires time.Duration) (string, error) {
	req, _ := s.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	u, err := req.Presign(expires)
	if err != nil {
		return "", s.wrap("sign", key, err)
	}
	return u, nil
}

// wrap converts an SDK error into a tagged *Error. Throttling and server
// faults are transient; everything else needs operator attention.
func (s *S3) wrap(op, key string, err error) error {
	kind := KindFatal
	if e, ok := err.(awserr.RequestFailure); ok {
		switch {
		case e.StatusCode() >= 500:
			kind = KindTransient
		case e.Code() == "RequestTimeout" || e.Code() == "SlowDown":
			kind = KindTransient
		}
	} else if transientPattern.MatchString(err.Error()) {
		kind = KindTransient
	}
	return &Error{Kind: kind, Op: op, Key: key, Message: err.Error()}
}
