package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bryanwahyu/trustai-client/internal/domain/reports"
)

// Minio keeps exported reports in a bucket.
type Minio struct {
	client     *minio.Client
	bucketName string
	region     string
}

var _ reports.ArtifactStore = (*Minio)(nil)

// NewMinio buat koneksi MinIO dan pastikan bucket ada
func NewMinio(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Minio, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, fmt.Errorf("creating bucket %s: %w", bucket, err)
		}
	}

	return &Minio{client: cli, bucketName: bucket, region: region}, nil
}

// Put uploads the report under key/<filename> and returns its URL.
func (s *Minio) Put(ctx context.Context, key string, r reports.Report) (string, error) {
	object := key + "/" + r.Filename()
	_, err := s.client.PutObject(ctx, s.bucketName, object, bytes.NewReader(r.Data), int64(len(r.Data)),
		minio.PutObjectOptions{ContentType: r.Format.ContentType()})
	if err != nil {
		return "", fmt.Errorf("uploading report: %w", err)
	}

	// URL publik (jika bucket public), kalau private harus generate presigned URL
	u := s.client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, s.bucketName, object), nil
}
