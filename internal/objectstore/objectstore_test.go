package objectstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/voxlate/internal/config"
)

type fakeS3 struct {
	bucketExists  bool
	putCalls      int
	createCalls   int
	putErr        error
	lastKey       string
	lastContentTy string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.putCalls++
	f.lastKey = *in.Key
	if in.ContentType != nil {
		f.lastContentTy = *in.ContentType
	}
	if f.putErr != nil {
		return nil, f.putErr
	}
	if !f.bucketExists {
		return nil, &smithy.GenericAPIError{Code: "NoSuchBucket", Message: "bucket does not exist"}
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) CreateBucket(context.Context, *s3.CreateBucketInput, ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createCalls++
	f.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

func testCfg() config.StorageConfig {
	return config.StorageConfig{Bucket: "voxlate-audio", Region: "us-east-1"}
}

func TestPutAudioHappyPath(t *testing.T) {
	f := &fakeS3{bucketExists: true}
	s := NewWithClient(f, testCfg(), nil)

	url, err := s.PutAudio(context.Background(), []byte("mp3"))
	if err != nil {
		t.Fatalf("PutAudio: %v", err)
	}
	if f.putCalls != 1 || f.createCalls != 0 {
		t.Errorf("puts=%d creates=%d", f.putCalls, f.createCalls)
	}
	if !strings.HasPrefix(url, "https://voxlate-audio.s3.us-east-1.amazonaws.com/audio/") {
		t.Errorf("url = %q", url)
	}
	if !strings.HasSuffix(url, ".mp3") {
		t.Errorf("url missing .mp3 suffix: %q", url)
	}
	if f.lastContentTy != "audio/mpeg" {
		t.Errorf("content type = %q", f.lastContentTy)
	}
}

func TestPutAudioCreatesMissingBucketAndRetries(t *testing.T) {
	f := &fakeS3{bucketExists: false}
	s := NewWithClient(f, testCfg(), nil)

	url, err := s.PutAudio(context.Background(), []byte("mp3"))
	if err != nil {
		t.Fatalf("PutAudio: %v", err)
	}
	if f.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", f.createCalls)
	}
	if f.putCalls != 2 {
		t.Errorf("put calls = %d, want 2 (original + retry)", f.putCalls)
	}
	if url == "" {
		t.Error("expected url after self-heal")
	}
}

func TestPutAudioOtherErrorsPropagate(t *testing.T) {
	f := &fakeS3{putErr: errors.New("access denied")}
	s := NewWithClient(f, testCfg(), nil)

	if _, err := s.PutAudio(context.Background(), []byte("mp3")); err == nil {
		t.Fatal("expected error")
	}
	if f.createCalls != 0 {
		t.Error("non-bucket errors must not trigger bucket creation")
	}
	if f.putCalls != 1 {
		t.Errorf("put calls = %d, want 1", f.putCalls)
	}
}

func TestPublicURLOverrides(t *testing.T) {
	cfg := testCfg()
	cfg.PublicBaseURL = "https://cdn.example.com/"
	s := NewWithClient(&fakeS3{bucketExists: true}, cfg, nil)

	url, err := s.PutAudio(context.Background(), []byte("mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "https://cdn.example.com/audio/") {
		t.Errorf("url = %q", url)
	}
}

func TestPublicURLEndpointPathStyle(t *testing.T) {
	cfg := testCfg()
	cfg.Endpoint = "http://minio:9000"
	s := NewWithClient(&fakeS3{bucketExists: true}, cfg, nil)

	url, err := s.PutAudio(context.Background(), []byte("mp3"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(url, "http://minio:9000/voxlate-audio/audio/") {
		t.Errorf("url = %q", url)
	}
}
