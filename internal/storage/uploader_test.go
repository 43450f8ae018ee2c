package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestMirrorCopiesResultIntoBucket(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(pngHeader)
	}))
	defer src.Close()

	putter := &fakePutter{}
	u := newUploader(Config{Bucket: "media", PublicBaseURL: "https://cdn.example/"}, putter, nil)
	u.now = func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) }

	url, err := u.Mirror(context.Background(), src.URL+"/a")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(url, "https://cdn.example/results/2026/03/09/"), url)
	assert.True(t, strings.HasSuffix(url, ".png"), url)
	assert.Equal(t, "media", aws.ToString(putter.input.Bucket))
	assert.Equal(t, "image/png", aws.ToString(putter.input.ContentType))
	assert.Equal(t, pngHeader, putter.body)
}

func TestMirrorSourceError(t *testing.T) {
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer src.Close()

	putter := &fakePutter{}
	u := newUploader(Config{Bucket: "media", PublicBaseURL: "https://cdn.example"}, putter, nil)
	_, err := u.Mirror(context.Background(), src.URL)
	assert.Error(t, err)
	assert.Nil(t, putter.input)
}

func TestNewUploaderValidates(t *testing.T) {
	_, err := NewUploader(Config{Bucket: "b"}, nil)
	assert.Error(t, err)
	_, err = NewUploader(Config{Bucket: "b", Region: "ru-1", AccessKey: "a", SecretKey: "s", PublicBaseURL: "https://cdn"}, nil)
	assert.NoError(t, err)
}

func TestImageContentType(t *testing.T) {
	assert.Equal(t, "image/jpeg", imageContentType("image/jpg; charset=binary", nil))
	assert.Equal(t, "image/png", imageContentType("", pngHeader))
}
