package registry

import (
	"context"
	"io"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeS3 struct {
	objects  map[string][]byte
	pageSize int
}

var _ s3API = (*fakeS3)(nil)

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(params.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	prefix := aws.ToString(params.Prefix)
	for key := range f.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if params.ContinuationToken != nil {
		start = sort.SearchStrings(keys, *params.ContinuationToken)
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, key := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3MirrorUploadUsesPrefix(t *testing.T) {
	t.Parallel()

	client := newFakeS3()
	mirror := newS3Mirror(client, "blog-backups", "/registry/")

	if err := mirror.Upload(context.Background(), "articles-db.backup.2025-10-08T00-35-49-217Z.js", []byte("data")); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	if _, ok := client.objects["registry/articles-db.backup.2025-10-08T00-35-49-217Z.js"]; !ok {
		t.Fatalf("expected object under prefix, got %v", client.objects)
	}
}

func TestS3MirrorRotateKeepsNewest(t *testing.T) {
	t.Parallel()

	client := newFakeS3()
	client.objects["other/unrelated.js"] = nil
	mirror := newS3Mirror(client, "blog-backups", "registry")
	ctx := context.Background()

	stamps := []string{"01", "02", "03", "04", "05", "06", "07"}
	for _, s := range stamps {
		name := "articles-db.backup.2025-10-" + s + "T00-00-00-000Z.js"
		if err := mirror.Upload(ctx, name, []byte(s)); err != nil {
			t.Fatalf("Upload returned error: %v", err)
		}
	}

	removed, err := mirror.Rotate(ctx, 5)
	if err != nil {
		t.Fatalf("Rotate returned error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed objects, got %d", removed)
	}

	for _, gone := range []string{"01", "02"} {
		if _, ok := client.objects["registry/articles-db.backup.2025-10-"+gone+"T00-00-00-000Z.js"]; ok {
			t.Fatalf("expected oldest backup %s to be rotated out", gone)
		}
	}
	if _, ok := client.objects["registry/articles-db.backup.2025-10-07T00-00-00-000Z.js"]; !ok {
		t.Fatalf("expected newest backup to remain")
	}
	if _, ok := client.objects["other/unrelated.js"]; !ok {
		t.Fatalf("expected objects outside the prefix to be left alone")
	}
}

func TestNewS3MirrorRequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := NewS3Mirror(context.Background(), S3Options{}); err == nil {
		t.Fatalf("expected error when bucket is missing")
	}
}
