package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const maxMirrorBytes = 32 << 20

type Config struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader copies generated images into a public bucket so results outlive
// the provider's temporary links.
type Uploader struct {
	cfg    Config
	client objectPutter
	http   *http.Client
	log    *slog.Logger
	now    func() time.Time
}

func NewUploader(cfg Config, log *slog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("s3 public base url is required")
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return newUploader(cfg, s3.New(options), log), nil
}

func newUploader(cfg Config, client objectPutter, log *slog.Logger) *Uploader {
	if cfg.Prefix == "" {
		cfg.Prefix = "results"
	}
	return &Uploader{
		cfg:    cfg,
		client: client,
		http:   &http.Client{Timeout: 60 * time.Second},
		log:    log,
		now:    time.Now,
	}
}

// Mirror downloads sourceURL and stores it in the bucket, returning the public URL.
func (u *Uploader) Mirror(ctx context.Context, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("new download request: %w", err)
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download result: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("download result: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMirrorBytes+1))
	if err != nil {
		return "", fmt.Errorf("read result: %w", err)
	}
	if len(data) > maxMirrorBytes {
		return "", fmt.Errorf("result larger than %d bytes", maxMirrorBytes)
	}

	url, err := u.Upload(ctx, data, imageContentType(resp.Header.Get("Content-Type"), data))
	if err != nil {
		return "", err
	}
	if u.log != nil {
		u.log.Info("result mirrored", "source", sourceURL, "url", url, "bytes", len(data))
	}
	return url, nil
}

func (u *Uploader) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no data to upload")
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := u.generateKey(contentType)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return strings.TrimRight(u.cfg.PublicBaseURL, "/") + "/" + key, nil
}

func (u *Uploader) generateKey(contentType string) string {
	now := u.now().UTC()
	prefix := strings.Trim(u.cfg.Prefix, "/")
	return path.Join(prefix, fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day()), uuid.NewString()+extensionFromContentType(contentType))
}

// imageContentType trusts the header only when it names an image.
func imageContentType(header string, data []byte) string {
	ct, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(header)), ";")
	if !strings.HasPrefix(ct, "image/") {
		ct, _, _ = strings.Cut(http.DetectContentType(data), ";")
	}
	if ct == "image/jpg" {
		ct = "image/jpeg"
	}
	return ct
}

func extensionFromContentType(contentType string) string {
	switch strings.ToLower(contentType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
