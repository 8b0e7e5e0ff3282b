package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploader records calls and answers destroys with a per-public-ID result.
type fakeUploader struct {
	mu        sync.Mutex
	uploads   []uploader.UploadParams
	destroys  []string
	results   map[string]string
	uploadErr error
	body      []byte
}

func (f *fakeUploader) Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	if r, ok := file.(io.Reader); ok {
		f.body, _ = io.ReadAll(r)
	}
	f.uploads = append(f.uploads, params)
	return &uploader.UploadResult{
		SecureURL: "https://res.cloudinary.test/" + params.Folder + "/" + params.PublicID + "." + params.Format,
	}, nil
}

func (f *fakeUploader) Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroys = append(f.destroys, params.PublicID)
	result := "ok"
	if r, ok := f.results[params.PublicID]; ok {
		result = r
	}
	return &uploader.DestroyResult{Result: result}, nil
}

func TestCloudinaryGateway_Upload(t *testing.T) {
	fake := &fakeUploader{}
	gw := newCloudinaryGateway(fake, GatewayConfig{}, testLogger())

	url, err := gw.Upload(context.Background(), []byte("webp-bytes"), "sunset_abc", domain.FolderHD, domain.CodecWebP)
	require.NoError(t, err)
	assert.Equal(t, "https://res.cloudinary.test/snapshot/hd/sunset_abc.webp", url)

	require.Len(t, fake.uploads, 1)
	params := fake.uploads[0]
	assert.Equal(t, "sunset_abc", params.PublicID)
	assert.Equal(t, "snapshot/hd", params.Folder)
	assert.Equal(t, "webp", params.Format)
	require.NotNil(t, params.Overwrite)
	assert.True(t, *params.Overwrite)
	assert.Equal(t, "webp-bytes", string(fake.body))
}

func TestCloudinaryGateway_UploadError(t *testing.T) {
	fake := &fakeUploader{uploadErr: errors.New("network down")}
	gw := newCloudinaryGateway(fake, GatewayConfig{}, testLogger())

	_, err := gw.Upload(context.Background(), []byte("x"), "k", domain.FolderThumbnails, domain.CodecWebP)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network down")
}

type emptyResultUploader struct{ fakeUploader }

func (e *emptyResultUploader) Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error) {
	return &uploader.UploadResult{Error: api.ErrorResp{Message: "Invalid image file"}}, nil
}

func TestCloudinaryGateway_UploadNotOK(t *testing.T) {
	gw := newCloudinaryGateway(&emptyResultUploader{}, GatewayConfig{}, testLogger())

	_, err := gw.Upload(context.Background(), []byte("x"), "k", domain.FolderThumbnails, domain.CodecWebP)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotOK))
	assert.Contains(t, err.Error(), "Invalid image file")
}

func TestCloudinaryGateway_Delete(t *testing.T) {
	fake := &fakeUploader{}
	gw := newCloudinaryGateway(fake, GatewayConfig{Prefix: "media"}, testLogger())

	require.NoError(t, gw.Delete(context.Background(), "k"))
	assert.ElementsMatch(t, []string{"media/thumbnails/k", "media/hd/k"}, fake.destroys)
}

func TestCloudinaryGateway_DeleteNotFoundFailsClosed(t *testing.T) {
	fake := &fakeUploader{results: map[string]string{"snapshot/hd/k": "not found"}}
	gw := newCloudinaryGateway(fake, GatewayConfig{}, testLogger())

	err := gw.Delete(context.Background(), "k")
	require.Error(t, err)
	assert.Equal(t, domain.EDELETE, domain.ErrorCode(err))
	assert.Equal(t, "Unexpected error", domain.ErrorMessage(err))
	assert.True(t, errors.Is(err, ErrNotOK))
	assert.True(t, strings.Contains(err.Error(), "k"))

	// The thumbnail destroy was still attempted.
	assert.Len(t, fake.destroys, 2)
}
