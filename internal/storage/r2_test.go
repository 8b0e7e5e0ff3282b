package storage

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBucket answers the handful of S3 calls R2Storage makes.
type fakeBucket struct {
	mu           sync.Mutex
	objects      map[string]bool
	contentTypes map[string]string
	requests     []string
}

func (b *fakeBucket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := strings.TrimPrefix(r.URL.Path, "/test-bucket/")
	b.requests = append(b.requests, r.Method+" "+key)

	switch r.Method {
	case http.MethodPut:
		if key == "snapshot/hd/denied" {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>Access Denied</Message></Error>`))
			return
		}
		b.objects[key] = true
		b.contentTypes[key] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(b.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestR2Storage(t *testing.T, publicURL string) (*R2Storage, *fakeBucket) {
	t.Helper()
	bucket := &fakeBucket{objects: map[string]bool{}, contentTypes: map[string]string{}}
	srv := httptest.NewServer(bucket)
	t.Cleanup(srv.Close)

	s, err := NewR2Storage(R2Config{
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "test-bucket",
		Endpoint:        srv.URL,
		PublicURL:       publicURL,
	}, testLogger())
	require.NoError(t, err)
	return s, bucket
}

func TestNewR2Storage_RequiresBucketAndEndpoint(t *testing.T) {
	_, err := NewR2Storage(R2Config{AccountID: "acc"}, testLogger())
	assert.Error(t, err)

	_, err = NewR2Storage(R2Config{BucketName: "b"}, testLogger())
	assert.Error(t, err)
}

func TestR2Storage_URL(t *testing.T) {
	s, _ := newTestR2Storage(t, "https://cdn.snapshot.test/")

	url, err := s.URL(context.Background(), "snapshot/hd/k")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.snapshot.test/snapshot/hd/k", url)
}

func TestR2Storage_URLWithoutPublicURL(t *testing.T) {
	s, _ := newTestR2Storage(t, "")

	url, err := s.URL(context.Background(), "snapshot/hd/k")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(url, "/test-bucket/snapshot/hd/k"), url)
}

func TestR2Storage_PutDelete(t *testing.T) {
	s, bucket := newTestR2Storage(t, "")
	ctx := context.Background()
	key := "snapshot/thumbnails/k"

	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("x")), PutOptions{ContentType: "image/webp"}))
	require.NoError(t, s.Put(ctx, key, bytes.NewReader([]byte("y")), PutOptions{ContentType: "image/webp"}))
	assert.True(t, bucket.objects[key])
	assert.Equal(t, "image/webp", bucket.contentTypes[key])

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	assert.False(t, bucket.objects[key])
	assert.Equal(t, []string{"PUT " + key, "PUT " + key, "DELETE " + key, "DELETE " + key}, bucket.requests)
}

func TestR2Storage_PutAccessDenied(t *testing.T) {
	s, _ := newTestR2Storage(t, "")

	err := s.Put(context.Background(), "snapshot/hd/denied", bytes.NewReader([]byte("x")), PutOptions{})
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.True(t, IsPermanent(err))
}

func TestR2Storage_RejectsTraversal(t *testing.T) {
	s, bucket := newTestR2Storage(t, "")

	err := s.Delete(context.Background(), "../k")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.Empty(t, bucket.requests)
}

func TestR2Storage_PutTooLarge(t *testing.T) {
	s, bucket := newTestR2Storage(t, "")

	err := s.Put(context.Background(), "snapshot/hd/k", bytes.NewReader(make([]byte, 11)), PutOptions{MaxSize: 10})
	assert.ErrorIs(t, err, ErrTooLarge)
	assert.Empty(t, bucket.requests, "oversized objects must not be sent")
}
