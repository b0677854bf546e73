// Package s3 stores snapshot records as one zstd-compressed JSON object in
// an S3 compatible bucket.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/vfsindex/data"
	"github.com/mwantia/vfsindex/store"
)

const DefaultObjectName = "vfsindex/records.json.zst"

type S3Store struct {
	mu sync.Mutex

	client     *minio.Client
	bucketName string
	objectName string
}

type S3Options struct {
	Endpoint   string
	BucketName string
	ObjectName string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
}

// New connects to the endpoint and verifies that the bucket exists.
func New(ctx context.Context, opts S3Options) (*S3Store, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, opts.BucketName)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("bucket '%s': %w", opts.BucketName, data.ErrNotExist)
	}

	objectName := opts.ObjectName
	if objectName == "" {
		objectName = DefaultObjectName
	}

	return &S3Store{
		client:     client,
		bucketName: opts.BucketName,
		objectName: objectName,
	}, nil
}

func (*S3Store) Name() string {
	return "s3"
}

// Save overwrites the object with the encoded records.
func (s *S3Store) Save(ctx context.Context, records []store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := encode(records)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucketName, s.objectName, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

// Load reads the object. A missing object means nothing was saved yet.
func (s *S3Store) Load(ctx context.Context) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, err := s.client.GetObject(ctx, s.bucketName, s.objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	payload, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}

	return decode(payload)
}

func (s *S3Store) Close() error {
	return nil
}

func encode(records []store.Record) ([]byte, error) {
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer encoder.Close()

	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

func decode(payload []byte) ([]store.Record, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress records: %w", err)
	}

	var records []store.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	return records, nil
}
