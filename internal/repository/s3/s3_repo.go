package s3

import (
	"context"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"

	"github.com/strudel-workshops/metfish-gateway/internal/domain/usecase"
	"github.com/strudel-workshops/metfish-gateway/pkg/client/s3"
)

type S3Repo struct {
	StorageS3 *s3.StorageS3
}

func NewS3Repo(storageS3 *s3.StorageS3) *S3Repo {
	return &S3Repo{
		StorageS3: storageS3,
	}
}

// Get downloads an object to a local path. A missing object is reported as
// usecase.ErrObjectNotFound; what that means for the job is the caller's
// business.
func (s *S3Repo) Get(ctx context.Context, bucket, name, localPath string) error {
	if s.StorageS3 == nil || s.StorageS3.Client == nil {
		return fmt.Errorf("s3 client not initialized")
	}

	err := s.StorageS3.Client.FGetObject(ctx, bucket, name, localPath, minio.GetObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s/%s: %w", bucket, name, usecase.ErrObjectNotFound)
		}
		return fmt.Errorf("s3 get object: %w", err)
	}
	return nil
}

// Put uploads a local file and returns its bucket-qualified location.
func (s *S3Repo) Put(ctx context.Context, bucket, localPath, name string) (string, error) {
	if s.StorageS3 == nil || s.StorageS3.Client == nil {
		return "", fmt.Errorf("s3 client not initialized")
	}

	_, err := s.StorageS3.Client.FPutObject(
		ctx,
		bucket,
		name,
		localPath,
		minio.PutObjectOptions{
			ContentType: "application/octet-stream",
		},
	)
	if err != nil {
		return "", fmt.Errorf("s3 put object: %w", err)
	}
	return bucket + "/" + name, nil
}

// List returns object names under the prefix, in listing order.
func (s *S3Repo) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	if s.StorageS3 == nil || s.StorageS3.Client == nil {
		return nil, fmt.Errorf("s3 client not initialized")
	}

	names := make([]string, 0)
	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	for object := range s.StorageS3.Client.ListObjects(ctx, bucket, opts) {
		if object.Err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", object.Err)
		}
		names = append(names, object.Key)
	}
	return names, nil
}
