package s3

import (
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/mwantia/vfsindex/store/storetest"
)

func TestEncode(t *testing.T) {
	want := storetest.Records()

	payload, err := encode(want)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	got, err := decode(payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	storetest.Equal(t, got, want)

	if records, err := decode(nil); err != nil || records != nil {
		t.Errorf("decode(nil) = %v, %v", records, err)
	}
	if _, err := decode([]byte("not zstd")); err == nil {
		t.Error("decode accepted garbage")
	}
}

// Set VFSINDEX_S3_ENDPOINT and VFSINDEX_S3_BUCKET to run against a live
// endpoint such as a local minio server.
func TestS3Store(t *testing.T) {
	endpoint := os.Getenv("VFSINDEX_S3_ENDPOINT")
	bucket := os.Getenv("VFSINDEX_S3_BUCKET")
	if endpoint == "" || bucket == "" {
		t.Skip("VFSINDEX_S3_ENDPOINT or VFSINDEX_S3_BUCKET not set")
	}

	s, err := New(t.Context(), S3Options{
		Endpoint:   endpoint,
		BucketName: bucket,
		ObjectName: "vfsindex-test/" + t.Name() + ".json.zst",
		AccessKey:  os.Getenv("VFSINDEX_S3_ACCESS_KEY"),
		SecretKey:  os.Getenv("VFSINDEX_S3_SECRET_KEY"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	if err := s.client.RemoveObject(t.Context(), s.bucketName, s.objectName, minio.RemoveObjectOptions{}); err != nil {
		t.Fatalf("RemoveObject failed: %v", err)
	}
	storetest.Run(t, s)
}
