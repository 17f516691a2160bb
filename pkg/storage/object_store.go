package storage

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/minio/minio-go/v7"
)

// errObjectNotFound 对应 S3 的 NoSuchKey。
var errObjectNotFound = errors.New("object not found")

// objectStore 是 MinioBackend 用到的对象存储操作集合。
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string) error
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	// Get 读取整个对象，对象不存在时返回 errObjectNotFound。
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// Put 写入对象。progress 非空时按已上传的字节数被读取。
	Put(ctx context.Context, bucket, key string, data []byte, contentType string, progress io.Reader) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

type minioStore struct {
	client *minio.Client
}

func (s *minioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return s.client.BucketExists(ctx, bucket)
}

func (s *minioStore) MakeBucket(ctx context.Context, bucket string) error {
	return s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

func (s *minioStore) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

func (s *minioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, notFound(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFound(err)
	}
	return data, nil
}

func (s *minioStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string, progress io.Reader) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
		Progress:    progress,
	})
	return err
}

func (s *minioStore) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if errors.Is(notFound(err), errObjectNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func notFound(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return errObjectNotFound
	}
	return err
}
