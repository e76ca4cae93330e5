package registry

import (
	"bytes"
	"context"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// BackupMirror stores copies of registry backups off-site.
type BackupMirror interface {
	Upload(ctx context.Context, name string, data []byte) error
	Rotate(ctx context.Context, keep int) (int, error)
}

// S3Options configures the S3 backup mirror.
type S3Options struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Mirror uploads backups to an S3 compatible bucket and rotates them.
type S3Mirror struct {
	client s3API
	bucket string
	prefix string
}

var _ BackupMirror = (*S3Mirror)(nil)

// NewS3Mirror builds an S3 client from opts. Static credentials are used when both keys are
// set, otherwise the default AWS credential chain applies.
func NewS3Mirror(ctx context.Context, opts S3Options) (*S3Mirror, error) {
	if opts.Bucket == "" {
		return nil, eris.New("backup bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "loading aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Mirror(client, opts.Bucket, opts.Prefix), nil
}

func newS3Mirror(client s3API, bucket, prefix string) *S3Mirror {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Mirror{client: client, bucket: bucket, prefix: prefix}
}

// Upload stores data under the mirror prefix.
func (m *S3Mirror) Upload(ctx context.Context, name string, data []byte) error {
	key := m.prefix + path.Base(name)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return eris.Wrapf(err, "uploading %s", key)
	}
	return nil
}

// Rotate deletes all but the keep newest objects under the prefix and returns how many
// were removed.
func (m *S3Mirror) Rotate(ctx context.Context, keep int) (int, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(m.bucket),
		Prefix: aws.String(m.prefix),
	}
	for {
		output, err := m.client.ListObjectsV2(ctx, input)
		if err != nil {
			return 0, eris.Wrap(err, "listing mirrored backups")
		}
		for _, obj := range output.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if output.IsTruncated == nil || !*output.IsTruncated || output.NextContinuationToken == nil {
			break
		}
		input.ContinuationToken = output.NextContinuationToken
	}

	if len(keys) <= keep {
		return 0, nil
	}

	// Keys embed the backup timestamp, so name order is age order.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	removed := 0
	var firstErr error
	for _, key := range keys[keep:] {
		_, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if firstErr == nil {
				firstErr = eris.Wrapf(err, "deleting %s", key)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// mirrorBackup uploads a fresh local backup and rotates the mirror. Failures never fail
// the registry write.
func (s *Store) mirrorBackup(ctx context.Context, backup Backup) {
	if s.mirror == nil {
		return
	}

	fields := logrus.Fields{"backup": backup.Name}
	data, err := os.ReadFile(backup.Path)
	if err != nil {
		s.logError(fields, err, "reading backup for mirror")
		s.metrics.RecordBackup("s3", "error")
		return
	}

	if err := s.mirror.Upload(ctx, backup.Name, data); err != nil {
		s.logError(fields, err, "mirroring backup")
		s.metrics.RecordBackup("s3", "error")
		return
	}
	s.metrics.RecordBackup("s3", "success")

	removed, err := s.mirror.Rotate(ctx, s.retention)
	s.metrics.RecordPruned("s3", removed)
	if err != nil {
		s.logError(fields, err, "rotating mirrored backups")
	}
}
