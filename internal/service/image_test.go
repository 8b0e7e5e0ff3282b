package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/DukeRupert/snapshot/internal/media"
	"github.com/DukeRupert/snapshot/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeStore struct {
	mu      sync.Mutex
	assets  map[uuid.UUID]domain.ImageAsset
	saves   int
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{assets: map[uuid.UUID]domain.ImageAsset{}}
}

func (f *fakeStore) SaveAll(ctx context.Context, assets []domain.ImageAsset) ([]domain.ImageAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	saved := make([]domain.ImageAsset, len(assets))
	for i, a := range assets {
		a.ID = uuid.New()
		a.CreatedAt = time.Now()
		f.assets[a.ID] = a
		saved[i] = a
	}
	return saved, nil
}

func (f *fakeStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.ImageAsset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok || a.IsDeleted() {
		return nil, domain.NotFound("store.find_by_id", "image", id.String())
	}
	return &a, nil
}

func (f *fakeStore) DeleteByID(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assets[id]
	if !ok || a.IsDeleted() {
		return domain.NotFound("store.delete_by_id", "image", id.String())
	}
	now := time.Now()
	a.DeletedAt = &now
	f.assets[id] = a
	return nil
}

func (f *fakeStore) List(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error) {
	return f.filter(func(domain.ImageAsset) bool { return true }), nil
}

func (f *fakeStore) ListByOwner(ctx context.Context, ownerID uuid.UUID, page domain.Page) ([]domain.ImageAsset, error) {
	return f.filter(func(a domain.ImageAsset) bool { return a.OwnerID == ownerID }), nil
}

func (f *fakeStore) ListPublic(ctx context.Context, page domain.Page) ([]domain.ImageAsset, error) {
	return f.filter(func(a domain.ImageAsset) bool { return a.IsPublic }), nil
}

func (f *fakeStore) filter(keep func(domain.ImageAsset) bool) []domain.ImageAsset {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ImageAsset
	for _, a := range f.assets {
		if !a.IsDeleted() && keep(a) {
			out = append(out, a)
		}
	}
	return out
}

type fakeGateway struct {
	mu        sync.Mutex
	objects   map[string][]byte // "<folder>/<key>"
	uploads   int
	deletes   []string
	uploadErr func(key string, folder domain.Folder) error
	deleteErr error
	block     bool // uploads wait for their context
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{objects: map[string][]byte{}}
}

func (g *fakeGateway) Upload(ctx context.Context, data []byte, key string, folder domain.Folder, codec domain.Codec) (string, error) {
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uploads++
	if g.uploadErr != nil {
		if err := g.uploadErr(key, folder); err != nil {
			return "", err
		}
	}
	g.objects[string(folder)+"/"+key] = data
	return "https://cdn.test/snapshot/" + string(folder) + "/" + key, nil
}

func (g *fakeGateway) Delete(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deletes = append(g.deletes, key)
	if g.deleteErr != nil {
		return domain.DeleteInconsistency(g.deleteErr, "gateway.delete", key)
	}
	for _, f := range domain.Folders {
		delete(g.objects, string(f)+"/"+key)
	}
	return nil
}

func (g *fakeGateway) uploadCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.uploads
}

// stubRenderer returns a tiny payload naming the requested geometry.
type stubRenderer struct {
	err   func(width, height int) error
	delay time.Duration
}

func (r *stubRenderer) Render(src []byte, width, height int, codec domain.Codec, quality int) ([]byte, error) {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		if err := r.err(width, height); err != nil {
			return nil, err
		}
	}
	return []byte(fmt.Sprintf("%dx%d", width, height)), nil
}

type stubHasher struct {
	hash string
	err  error
}

func (h *stubHasher) Hash(src []byte) (string, error) {
	return h.hash, h.err
}

type fakeScheduler struct {
	mu   sync.Mutex
	keys []string
}

func (s *fakeScheduler) ScheduleCleanup(ctx context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, keys...)
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

const testHash = "LEHV6nWB2yk8pyo0adR*.7kCMdnj"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}))
	return buf.Bytes()
}

type testEnv struct {
	svc       *imageService
	store     *fakeStore
	gateway   *fakeGateway
	renderer  *stubRenderer
	hasher    *stubHasher
	scheduler *fakeScheduler
}

func newTestEnv(cfg Config) *testEnv {
	env := &testEnv{
		store:     newFakeStore(),
		gateway:   newFakeGateway(),
		renderer:  &stubRenderer{},
		hasher:    &stubHasher{hash: testHash},
		scheduler: &fakeScheduler{},
	}
	env.svc = NewImageService(env.store, env.gateway, env.renderer, env.hasher, env.scheduler, cfg, testLogger()).(*imageService)
	return env
}

func oneFile(t *testing.T, name string) domain.CreateImagesParams {
	return domain.CreateImagesParams{
		OwnerID: uuid.New(),
		Files:   []domain.UploadFile{{Filename: name, Data: jpegBytes(t, 64, 48)}},
	}
}

// =============================================================================
// Create
// =============================================================================

func TestCreate_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("renders full size images")
	}

	store := newFakeStore()
	gateway := newFakeGateway()
	svc := NewImageService(store, gateway, media.NewRenderer(), media.NewHasher(), nil, DefaultConfig(), testLogger())

	owner := uuid.New()
	assets, err := svc.Create(context.Background(), domain.CreateImagesParams{
		OwnerID: owner,
		Files: []domain.UploadFile{
			{Filename: "landscape.jpg", Data: jpegBytes(t, 4000, 3000)},
			{Filename: "portrait.jpg", Data: jpegBytes(t, 1000, 2000)},
		},
	})
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, 1, store.saves)

	want := map[string]map[domain.Folder]domain.Size{
		"landscape.jpg": {
			domain.FolderThumbnails: {Width: 1280, Height: 720},
			domain.FolderHD:         {Width: 2560, Height: 1440},
		},
		"portrait.jpg": {
			domain.FolderThumbnails: {Width: 720, Height: 1080},
			domain.FolderHD:         {Width: 1440, Height: 2160},
		},
	}

	assert.NotEqual(t, assets[0].RemoteKey, assets[1].RemoteKey)
	for _, a := range assets {
		assert.Equal(t, owner, a.OwnerID)
		assert.NotEqual(t, uuid.Nil, a.ID)
		assert.NotEmpty(t, a.Blurhash)
		assert.Contains(t, a.ThumbnailURL, "/thumbnails/"+a.RemoteKey)
		assert.Contains(t, a.HDURL, "/hd/"+a.RemoteKey)

		for folder, size := range want[a.Name] {
			data, ok := gateway.objects[string(folder)+"/"+a.RemoteKey]
			require.True(t, ok, "%s missing %s", a.Name, folder)
			cfg, err := webp.DecodeConfig(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, size.Width, cfg.Width, "%s %s width", a.Name, folder)
			assert.Equal(t, size.Height, cfg.Height, "%s %s height", a.Name, folder)
		}
	}
}

func TestCreate_SelectsGeometryPerVariant(t *testing.T) {
	env := newTestEnv(DefaultConfig())

	params := oneFile(t, "square.png")
	params.Files[0].Data = jpegBytes(t, 50, 50)

	assets, err := env.svc.Create(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, assets, 1)

	key := assets[0].RemoteKey
	assert.Equal(t, "720x1080", string(env.gateway.objects["thumbnails/"+key]))
	assert.Equal(t, "1440x2160", string(env.gateway.objects["hd/"+key]))
	assert.Equal(t, testHash, assets[0].Blurhash)
	assert.Equal(t, "square.png", assets[0].Name)
}

func TestCreate_ValidationFailures(t *testing.T) {
	img := jpegBytes(t, 8, 8)

	tooMany := make([]domain.UploadFile, domain.MaxFilesPerBatch+1)
	for i := range tooMany {
		tooMany[i] = domain.UploadFile{Filename: "a.jpg", Data: img}
	}

	tests := []struct {
		name   string
		params domain.CreateImagesParams
	}{
		{"missing owner", domain.CreateImagesParams{Files: []domain.UploadFile{{Filename: "a.jpg", Data: img}}}},
		{"no files", domain.CreateImagesParams{OwnerID: uuid.New()}},
		{"too many files", domain.CreateImagesParams{OwnerID: uuid.New(), Files: tooMany}},
		{"empty file", domain.CreateImagesParams{OwnerID: uuid.New(), Files: []domain.UploadFile{{Filename: "a.jpg"}}}},
		{"not an image", domain.CreateImagesParams{OwnerID: uuid.New(), Files: []domain.UploadFile{{Filename: "a.txt", Data: []byte("hello world")}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(DefaultConfig())

			_, err := env.svc.Create(context.Background(), tt.params)
			require.Error(t, err)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
			assert.Zero(t, env.gateway.uploadCount())
			assert.Zero(t, env.store.saves)
		})
	}
}

func TestCreate_RenderFailure(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	env.renderer.err = func(width, height int) error {
		if width == domain.HD.Wide.Width || width == domain.HD.Tall.Width {
			return media.ErrEncode
		}
		return nil
	}

	_, err := env.svc.Create(context.Background(), oneFile(t, "broken.jpg"))
	require.Error(t, err)
	assert.Equal(t, domain.ERENDER, domain.ErrorCode(err))
	assert.True(t, errors.Is(err, media.ErrEncode))
	assert.Contains(t, domain.ErrorMessage(err), "broken.jpg")

	assert.Zero(t, env.gateway.uploadCount())
	assert.Empty(t, env.gateway.deletes)
	assert.Zero(t, env.store.saves)
}

func TestCreate_UndecodableSource(t *testing.T) {
	env := newTestEnv(DefaultConfig())

	// Sniffs as JPEG but cannot be decoded.
	data := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, bytes.Repeat([]byte{0}, 64)...)
	_, err := env.svc.Create(context.Background(), domain.CreateImagesParams{
		OwnerID: uuid.New(),
		Files:   []domain.UploadFile{{Filename: "corrupt.jpg", Data: data}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.ERENDER, domain.ErrorCode(err))
	assert.Zero(t, env.gateway.uploadCount())
}

func TestCreate_HashFailure(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	env.hasher.err = media.ErrDecode

	_, err := env.svc.Create(context.Background(), oneFile(t, "a.jpg"))
	require.Error(t, err)
	assert.Equal(t, domain.EHASH, domain.ErrorCode(err))
	assert.Zero(t, env.gateway.uploadCount())
	assert.Zero(t, env.store.saves)
}

func TestCreate_EmptyHashFails(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	env.hasher.hash = ""

	_, err := env.svc.Create(context.Background(), oneFile(t, "a.jpg"))
	assert.Equal(t, domain.EHASH, domain.ErrorCode(err))
}

func TestCreate_UploadFailureCompensates(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	env.gateway.uploadErr = func(key string, folder domain.Folder) error {
		if folder == domain.FolderHD {
			return errors.New("remote rejected")
		}
		return nil
	}

	_, err := env.svc.Create(context.Background(), oneFile(t, "a.jpg"))
	require.Error(t, err)
	assert.Equal(t, domain.EUPLOAD, domain.ErrorCode(err))
	assert.Zero(t, env.store.saves)

	require.Len(t, env.gateway.deletes, 1)
	assert.True(t, strings.HasPrefix(env.gateway.deletes[0], "a_"))
	assert.Empty(t, env.gateway.objects)
	assert.Empty(t, env.scheduler.keys)
}

func TestCreate_FailedCompensationIsScheduled(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	env.gateway.uploadErr = func(key string, folder domain.Folder) error {
		if folder == domain.FolderHD {
			return errors.New("remote rejected")
		}
		return nil
	}
	env.gateway.deleteErr = errors.New("not found")

	_, err := env.svc.Create(context.Background(), oneFile(t, "a.jpg"))
	assert.Equal(t, domain.EUPLOAD, domain.ErrorCode(err))

	require.Len(t, env.scheduler.keys, 1)
	assert.Equal(t, env.gateway.deletes[0], env.scheduler.keys[0])
}

func TestCreate_CompensatesOnlyUploadsThatMayHaveLanded(t *testing.T) {
	tooLarge := &storage.StorageError{Op: "Put", Key: "k", Err: storage.ErrTooLarge}

	tests := []struct {
		name        string
		uploadErr   func(key string, folder domain.Folder) error
		wantDeletes int
	}{
		{
			name:        "every upload rejected locally",
			uploadErr:   func(string, domain.Folder) error { return tooLarge },
			wantDeletes: 0,
		},
		{
			name:        "remote failure",
			uploadErr:   func(string, domain.Folder) error { return errors.New("connection reset by peer") },
			wantDeletes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(DefaultConfig())
			env.gateway.uploadErr = tt.uploadErr
			env.gateway.deleteErr = errors.New("not found")

			_, err := env.svc.Create(context.Background(), oneFile(t, "a.jpg"))
			require.Error(t, err)
			assert.Equal(t, domain.EUPLOAD, domain.ErrorCode(err))

			assert.Len(t, env.gateway.deletes, tt.wantDeletes)
			assert.Len(t, env.scheduler.keys, tt.wantDeletes)
		})
	}
}

func TestCreate_SaveFailureCompensatesEveryKey(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	env.store.saveErr = errors.New("connection reset")

	params := oneFile(t, "a.jpg")
	params.Files = append(params.Files, domain.UploadFile{Filename: "b.jpg", Data: params.Files[0].Data})

	_, err := env.svc.Create(context.Background(), params)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	assert.Len(t, env.gateway.deletes, 2)
	assert.Empty(t, env.gateway.objects)
}

func TestCreate_RenderTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RenderTimeout = 20 * time.Millisecond
	env := newTestEnv(cfg)
	env.renderer.delay = 500 * time.Millisecond

	start := time.Now()
	_, err := env.svc.Create(context.Background(), oneFile(t, "slow.jpg"))
	require.Error(t, err)
	assert.Equal(t, domain.ERENDER, domain.ErrorCode(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestCreate_UploadTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UploadTimeout = 20 * time.Millisecond
	env := newTestEnv(cfg)
	env.gateway.block = true

	_, err := env.svc.Create(context.Background(), oneFile(t, "a.jpg"))
	require.Error(t, err)
	assert.Equal(t, domain.EUPLOAD, domain.ErrorCode(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	// The started uploads are compensated.
	assert.Len(t, env.gateway.deletes, 1)
}

func TestCreate_SameFilenameGetsDistinctKeys(t *testing.T) {
	env := newTestEnv(DefaultConfig())

	suffixes := []string{"aaaaaaaaaaaa", "aaaaaaaaaaaa", "bbbbbbbbbbbb"}
	var mu sync.Mutex
	env.svc.newSuffix = func() string {
		mu.Lock()
		defer mu.Unlock()
		s := suffixes[0]
		suffixes = suffixes[1:]
		return s
	}

	params := oneFile(t, "photo.jpg")
	params.Files = append(params.Files, params.Files[0])

	assets, err := env.svc.Create(context.Background(), params)
	require.NoError(t, err)
	require.Len(t, assets, 2)

	keys := []string{assets[0].RemoteKey, assets[1].RemoteKey}
	assert.ElementsMatch(t, []string{"photo_aaaaaaaaaaaa", "photo_bbbbbbbbbbbb"}, keys)
	assert.Len(t, env.gateway.objects, 4)
}

// =============================================================================
// Delete
// =============================================================================

func TestDelete_RoundTrip(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	ctx := context.Background()

	assets, err := env.svc.Create(ctx, oneFile(t, "holiday.jpg"))
	require.NoError(t, err)
	id := assets[0].ID

	msg, err := env.svc.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, `Image "holiday.jpg" deleted`, msg)

	assert.Equal(t, []string{assets[0].RemoteKey}, env.gateway.deletes)
	assert.Empty(t, env.gateway.objects)

	_, err = env.svc.GetByID(ctx, id)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestDelete_NotFound(t *testing.T) {
	env := newTestEnv(DefaultConfig())

	_, err := env.svc.Delete(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
	assert.Empty(t, env.gateway.deletes)
}

func TestDelete_RemoteFailureKeepsRecord(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	ctx := context.Background()

	assets, err := env.svc.Create(ctx, oneFile(t, "a.jpg"))
	require.NoError(t, err)

	env.gateway.deleteErr = errors.New("not found")
	_, err = env.svc.Delete(ctx, assets[0].ID)
	require.Error(t, err)
	assert.Equal(t, domain.EDELETE, domain.ErrorCode(err))
	assert.Equal(t, "Unexpected error", domain.ErrorMessage(err))

	got, err := env.svc.GetByID(ctx, assets[0].ID)
	require.NoError(t, err)
	assert.Equal(t, assets[0].RemoteKey, got.RemoteKey)
}

// =============================================================================
// Queries
// =============================================================================

func TestListByOwner(t *testing.T) {
	env := newTestEnv(DefaultConfig())
	ctx := context.Background()

	params := oneFile(t, "a.jpg")
	_, err := env.svc.Create(ctx, params)
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, oneFile(t, "b.jpg"))
	require.NoError(t, err)

	mine, err := env.svc.ListByOwner(ctx, params.OwnerID, domain.Page{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "a.jpg", mine[0].Name)

	all, err := env.svc.List(ctx, domain.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	public, err := env.svc.ListPublic(ctx, domain.Page{})
	require.NoError(t, err)
	assert.Empty(t, public)

	_, err = env.svc.ListByOwner(ctx, uuid.Nil, domain.Page{})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

// =============================================================================
// Helpers
// =============================================================================

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sunset.jpg", "sunset"},
		{"Sunset Beach.final.JPG", "sunset-beach"},
		{"Café Crème.png", "cafe-creme"},
		{"C:\\Users\\me\\photo.webp", "photo"},
		{"../../etc/passwd", "passwd"},
		{".hidden", "image"},
		{"日本.jpg", "image"},
		{"a__b--c.gif", "a-b-c"},
		{strings.Repeat("x", 150) + ".jpg", strings.Repeat("x", 100)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, slugify(tt.in))
		})
	}
}

func TestRandomSuffix(t *testing.T) {
	a, b := randomSuffix(), randomSuffix()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "photo.jpg", displayName("/tmp/photo.jpg"))
	assert.Equal(t, "image", displayName("  "))
	assert.Equal(t, domain.MaxNameLength, len([]rune(displayName(strings.Repeat("é", 150)))))
}
