package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"market-genome/internal/domain"
	"market-genome/internal/domain/ports/adapter"
)

var _ adapter.ArtifactStore = (*S3Store)(nil)

type S3Config struct {
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
	PresignTTL time.Duration
}

// S3Store keeps artifacts in an S3-compatible bucket. Returned URLs are
// presigned GET links.
type S3Store struct {
	client     *minio.Client
	bucketName string
	region     string
	presignTTL time.Duration
	initOnce   sync.Once
	initErr    error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Store{
		client:     client,
		bucketName: bucket,
		region:     region,
		presignTTL: ttl,
	}, nil
}

func (s *S3Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3Store) Put(ctx context.Context, key string, content []byte, contentType string) (adapter.StoredObject, error) {
	key, err := cleanKey(key)
	if err != nil {
		return adapter.StoredObject{}, err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return adapter.StoredObject{}, fmt.Errorf("ensure bucket: %w", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	info, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return adapter.StoredObject{}, fmt.Errorf("put %s: %w", key, err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.presignTTL, nil)
	if err != nil {
		return adapter.StoredObject{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return adapter.StoredObject{Key: key, URL: u.String(), Size: info.Size}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, "", err
	}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, "", fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return nil, "", domain.ErrNotFound
		}
		return nil, "", err
	}
	ct := "application/octet-stream"
	if st, err := obj.Stat(); err == nil && st.ContentType != "" {
		ct = st.ContentType
	}
	return data, ct, nil
}
