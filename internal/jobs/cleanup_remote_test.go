package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/DukeRupert/snapshot/internal/storage"
	"github.com/DukeRupert/snapshot/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	deleted []string
	fail    map[string]bool
}

func (g *fakeGateway) Upload(ctx context.Context, data []byte, key string, folder domain.Folder, codec domain.Codec) (string, error) {
	return "", errors.New("not used")
}

func (g *fakeGateway) Delete(ctx context.Context, key string) error {
	g.deleted = append(g.deleted, key)
	if g.fail[key] {
		return domain.DeleteInconsistency(errors.New("not ok"), "gateway.delete", key)
	}
	return nil
}

func newHandler(g *fakeGateway) *CleanupRemoteHandler {
	return NewCleanupRemoteHandler(g, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCleanupRemoteHandler_Type(t *testing.T) {
	assert.Equal(t, worker.JobTypeCleanupRemote, newHandler(&fakeGateway{}).Type())
}

func TestCleanupRemoteHandler_DeletesEveryKey(t *testing.T) {
	g := &fakeGateway{}
	err := newHandler(g).Handle(context.Background(), []byte(`{"keys":["a_1","b_2"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a_1", "b_2"}, g.deleted)
}

func TestCleanupRemoteHandler_PartialFailureIsRetryable(t *testing.T) {
	g := &fakeGateway{fail: map[string]bool{"a_1": true}}
	err := newHandler(g).Handle(context.Background(), []byte(`{"keys":["a_1","b_2"]}`))
	require.Error(t, err)
	assert.False(t, worker.IsPermanent(err))
	assert.Contains(t, err.Error(), "a_1")
	assert.Equal(t, []string{"a_1", "b_2"}, g.deleted)
}

func TestCleanupRemoteHandler_BadPayloadIsPermanent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"malformed", `{`},
		{"no keys", `{"keys":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGateway{}
			err := newHandler(g).Handle(context.Background(), []byte(tt.payload))
			require.Error(t, err)
			assert.True(t, worker.IsPermanent(err))
			assert.Empty(t, g.deleted)
		})
	}
}

func TestCleanupRemoteHandler_PermanentCauses(t *testing.T) {
	tests := []struct {
		name          string
		errs          map[string]error
		wantPermanent bool
	}{
		{
			name:          "invalid key only",
			errs:          map[string]error{"a_1": &storage.StorageError{Op: "Delete", Key: "a_1", Err: storage.ErrInvalidKey}},
			wantPermanent: true,
		},
		{
			name: "invalid key and transient failure",
			errs: map[string]error{
				"a_1": &storage.StorageError{Op: "Delete", Key: "a_1", Err: storage.ErrInvalidKey},
				"b_2": errors.New("connection reset"),
			},
			wantPermanent: false,
		},
		{
			name:          "access denied inside delete inconsistency",
			errs:          map[string]error{"b_2": domain.DeleteInconsistency(storage.ErrAccessDenied, "gateway.delete", "b_2")},
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &errGateway{errs: tt.errs}
			err := NewCleanupRemoteHandler(g, slog.New(slog.NewTextHandler(io.Discard, nil))).
				Handle(context.Background(), []byte(`{"keys":["a_1","b_2"]}`))
			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, worker.IsPermanent(err))
		})
	}
}

type errGateway struct {
	fakeGateway
	errs map[string]error
}

func (g *errGateway) Delete(ctx context.Context, key string) error {
	return g.errs[key]
}

// folderStorage fails deletes with a per-object error.
type folderStorage struct {
	deleteErrs map[string]error
}

func (s *folderStorage) Put(ctx context.Context, key string, data io.Reader, opts storage.PutOptions) error {
	return nil
}

func (s *folderStorage) Delete(ctx context.Context, key string) error {
	return s.deleteErrs[key]
}

func (s *folderStorage) URL(ctx context.Context, key string) (string, error) {
	return "https://cdn.test/" + key, nil
}

func TestCleanupRemoteHandler_MixedFolderFailuresRetry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name          string
		deleteErrs    map[string]error
		wantPermanent bool
	}{
		{
			name: "denied thumbnail, transient hd",
			deleteErrs: map[string]error{
				"snapshot/thumbnails/a_1": storage.ErrAccessDenied,
				"snapshot/hd/a_1":         errors.New("connection reset by peer"),
			},
			wantPermanent: false,
		},
		{
			name: "denied in both folders",
			deleteErrs: map[string]error{
				"snapshot/thumbnails/a_1": storage.ErrAccessDenied,
				"snapshot/hd/a_1":         storage.ErrAccessDenied,
			},
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := storage.NewObjectGateway(&folderStorage{deleteErrs: tt.deleteErrs}, storage.GatewayConfig{}, logger)

			err := NewCleanupRemoteHandler(gw, logger).Handle(context.Background(), []byte(`{"keys":["a_1"]}`))
			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, worker.IsPermanent(err))
		})
	}
}
