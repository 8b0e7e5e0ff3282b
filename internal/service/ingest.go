package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/DukeRupert/snapshot/internal/media"
	"github.com/DukeRupert/snapshot/internal/metrics"
	"github.com/DukeRupert/snapshot/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// File State
// =============================================================================

// FileState is the position of one file in the ingestion pipeline.
type FileState string

const (
	FilePending   FileState = "pending"
	FileRendering FileState = "rendering"
	FileHashing   FileState = "hashing"
	FileUploading FileState = "uploading"
	FileRecorded  FileState = "recorded"
	FileFailed    FileState = "failed"
)

// maxSlugLength keeps remote keys within the remote_key column.
const maxSlugLength = 100

// fileJob is the private working set of one file. Nothing in it is shared
// with the pipelines of other files.
type fileJob struct {
	index    int
	file     domain.UploadFile
	key      string
	state    FileState
	uploaded atomic.Bool // an upload under key may have reached the host
	logger   *slog.Logger
}

func (j *fileJob) transition(to FileState) {
	j.logger.Debug("file state changed", "from", j.state, "to", to)
	j.state = to
}

// renderedVariant is the encoded output of one variant class.
type renderedVariant struct {
	variant domain.Variant
	data    []byte
}

// =============================================================================
// Create
// =============================================================================

// Create ingests a batch of uploaded files.
func (s *imageService) Create(ctx context.Context, params domain.CreateImagesParams) ([]domain.ImageAsset, error) {
	const op = "image.create"

	if err := validateBatch(op, params); err != nil {
		return nil, err
	}

	jobs := s.newJobs(params.Files)
	metrics.BatchSize.Observe(float64(len(jobs)))

	s.logger.Info("ingesting batch", "owner_id", params.OwnerID, "files", len(jobs))

	assets := make([]domain.ImageAsset, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if s.config.IngestConcurrency > 0 {
		g.SetLimit(s.config.IngestConcurrency)
	}
	for _, job := range jobs {
		g.Go(func() error {
			asset, err := s.ingestFile(gctx, job, params.OwnerID)
			if err != nil {
				job.transition(FileFailed)
				return err
			}
			assets[job.index] = asset
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Error("batch failed", "owner_id", params.OwnerID, "error", err)
		s.compensate(ctx, jobs)
		return nil, err
	}

	saved, err := s.store.SaveAll(ctx, assets)
	if err != nil {
		s.logger.Error("failed to persist batch", "owner_id", params.OwnerID, "error", err)
		s.compensate(ctx, jobs)
		if domain.ErrorCode(err) == domain.EINTERNAL {
			return nil, domain.Internal(err, op, "failed to save images")
		}
		return nil, err
	}

	for _, job := range jobs {
		job.transition(FileRecorded)
		metrics.FileRecorded()
	}

	s.logger.Info("batch ingested", "owner_id", params.OwnerID, "files", len(saved))
	return saved, nil
}

// validateBatch rejects input that must never reach the pipeline.
func validateBatch(op string, params domain.CreateImagesParams) error {
	if params.OwnerID == uuid.Nil {
		return domain.Invalid(op, "Owner ID is required")
	}
	if len(params.Files) == 0 {
		return domain.Invalid(op, "At least one image is required")
	}
	if len(params.Files) > domain.MaxFilesPerBatch {
		return domain.Invalid(op, fmt.Sprintf("At most %d images can be uploaded at once", domain.MaxFilesPerBatch))
	}
	for _, f := range params.Files {
		if err := domain.ValidateUploadFile(f); err != nil {
			return err
		}
	}
	return nil
}

// newJobs assigns every file a remote key that is unique within the batch.
func (s *imageService) newJobs(files []domain.UploadFile) []*fileJob {
	jobs := make([]*fileJob, len(files))
	seen := make(map[string]bool, len(files))
	for i, f := range files {
		slug := slugify(f.Filename)
		key := slug + "_" + s.newSuffix()
		for seen[key] {
			key = slug + "_" + s.newSuffix()
		}
		seen[key] = true

		jobs[i] = &fileJob{
			index:  i,
			file:   f,
			key:    key,
			state:  FilePending,
			logger: s.logger.With("file", f.Filename, "key", key),
		}
	}
	return jobs
}

// ingestFile runs one file from Pending to an assembled, unsaved record.
func (s *imageService) ingestFile(ctx context.Context, job *fileJob, ownerID uuid.UUID) (domain.ImageAsset, error) {
	variants, blurhash, err := s.renderAndHash(ctx, job)
	if err != nil {
		return domain.ImageAsset{}, err
	}

	urls, err := s.uploadVariants(ctx, job, variants)
	if err != nil {
		return domain.ImageAsset{}, err
	}

	return domain.ImageAsset{
		Name:         displayName(job.file.Filename),
		RemoteKey:    job.key,
		ThumbnailURL: urls[domain.VariantThumbnail],
		HDURL:        urls[domain.VariantHD],
		Blurhash:     blurhash,
		OwnerID:      ownerID,
	}, nil
}

// renderAndHash renders every variant and computes the placeholder, all
// concurrently.
func (s *imageService) renderAndHash(ctx context.Context, job *fileJob) ([]renderedVariant, string, error) {
	const op = "image.render"

	job.transition(FileRendering)
	start := time.Now()

	if s.config.RenderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RenderTimeout)
		defer cancel()
	}

	src, err := runBounded(ctx, func() (domain.Size, error) {
		w, h, err := media.Dimensions(job.file.Data)
		return domain.Size{Width: w, Height: h}, err
	})
	if err != nil {
		return nil, "", s.failStage(job, "render", domain.RenderFailure(err, op, job.file.Filename))
	}

	rendered := make([]renderedVariant, len(domain.Variants))
	var blurhash string

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range domain.Variants {
		g.Go(func() error {
			width, height := domain.SelectGeometry(src.Width, src.Height, v.Class)
			data, err := runBounded(gctx, func() ([]byte, error) {
				return s.renderer.Render(job.file.Data, width, height, v.Codec, v.Quality)
			})
			if err != nil {
				return domain.RenderFailure(fmt.Errorf("%s: %w", v.Class, err), op, job.file.Filename)
			}
			rendered[i] = renderedVariant{variant: v, data: data}
			return nil
		})
	}
	g.Go(func() error {
		hash, err := runBounded(gctx, func() (string, error) {
			return s.hasher.Hash(job.file.Data)
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return domain.RenderFailure(err, op, job.file.Filename)
			}
			return domain.HashFailure(err, "image.hash", job.file.Filename)
		}
		blurhash = hash
		return nil
	})

	if err := g.Wait(); err != nil {
		stage := "render"
		if domain.IsCode(err, domain.EHASH) {
			stage = "hash"
		}
		return nil, "", s.failStage(job, stage, err)
	}

	job.transition(FileHashing)
	if blurhash == "" {
		return nil, "", s.failStage(job, "hash", domain.HashFailure(errors.New("empty placeholder"), "image.hash", job.file.Filename))
	}

	metrics.ObserveStage("render", time.Since(start))
	return rendered, blurhash, nil
}

// uploadVariants uploads every rendered variant concurrently and returns
// their URLs by class.
func (s *imageService) uploadVariants(ctx context.Context, job *fileJob, variants []renderedVariant) (map[domain.VariantClass]string, error) {
	const op = "image.upload"

	job.transition(FileUploading)
	start := time.Now()

	urls := make([]string, len(variants))

	g, gctx := errgroup.WithContext(ctx)
	for i, rv := range variants {
		g.Go(func() error {
			uctx := gctx
			if s.config.UploadTimeout > 0 {
				var cancel context.CancelFunc
				uctx, cancel = context.WithTimeout(gctx, s.config.UploadTimeout)
				defer cancel()
			}

			if err := uctx.Err(); err != nil {
				return domain.UploadFailure(err, op, job.key, rv.variant.Folder)
			}
			url, err := s.gateway.Upload(uctx, rv.data, job.key, rv.variant.Folder, rv.variant.Codec)
			if err == nil || !rejectedBeforeSend(err) {
				job.uploaded.Store(true)
			}
			if err != nil {
				return domain.UploadFailure(err, op, job.key, rv.variant.Folder)
			}
			urls[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, s.failStage(job, "upload", err)
	}

	metrics.ObserveStage("upload", time.Since(start))

	byClass := make(map[domain.VariantClass]string, len(variants))
	for i, rv := range variants {
		byClass[rv.variant.Class] = urls[i]
	}
	return byClass, nil
}

// rejectedBeforeSend reports whether an upload failed a local check, so no
// object can exist for it on the host.
func rejectedBeforeSend(err error) bool {
	return errors.Is(err, storage.ErrInvalidKey) || errors.Is(err, storage.ErrTooLarge)
}

func (s *imageService) failStage(job *fileJob, stage string, err error) error {
	job.logger.Error("file failed", "stage", stage, "state", job.state, "error", err)
	metrics.FileFailed(stage)
	return err
}

// =============================================================================
// Compensation
// =============================================================================

// compensate removes the remote objects of every file whose uploads started.
// Keys that cannot be removed inline are handed to the cleanup scheduler.
func (s *imageService) compensate(ctx context.Context, jobs []*fileJob) {
	var keys []string
	for _, job := range jobs {
		if job.uploaded.Load() {
			keys = append(keys, job.key)
		}
	}
	if len(keys) == 0 {
		return
	}

	// The request may already be cancelled; cleanup must still run.
	ctx = context.WithoutCancel(ctx)
	if s.config.CleanupTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.CleanupTimeout)
		defer cancel()
	}

	failed := make([]bool, len(keys))
	var g errgroup.Group
	for i, key := range keys {
		g.Go(func() error {
			err := s.gateway.Delete(ctx, key)
			metrics.CompensatingDelete(err)
			if err != nil {
				s.logger.Warn("compensating delete failed", "key", key, "error", err)
				failed[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	var pending []string
	for i, key := range keys {
		if failed[i] {
			pending = append(pending, key)
		}
	}
	if len(pending) == 0 {
		s.logger.Info("removed remote objects of failed batch", "keys", len(keys))
		return
	}

	if s.cleanup == nil {
		s.logger.Error("remote objects left behind", "keys", pending)
		return
	}
	if err := s.cleanup.ScheduleCleanup(ctx, pending); err != nil {
		s.logger.Error("failed to schedule remote cleanup", "keys", pending, "error", err)
		return
	}
	s.logger.Info("scheduled remote cleanup", "keys", pending)
}

// =============================================================================
// Helper Functions
// =============================================================================

// runBounded runs fn and returns early with ctx's error if ctx is done first.
// fn keeps running in the background until it returns.
func runBounded[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

var slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns the part of a filename before its first dot into a
// lowercase ASCII slug. Diacritics are removed.
func slugify(filename string) string {
	base := filename
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	base, _, _ = strings.Cut(base, ".")

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, base); err == nil {
		base = folded
	}

	slug := slugSeparators.ReplaceAllString(strings.ToLower(base), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		return "image"
	}
	return slug
}

// randomSuffix returns 12 random hex characters.
func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// displayName returns the filename without directories, bounded to
// domain.MaxNameLength characters.
func displayName(filename string) string {
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > domain.MaxNameLength {
		name = string([]rune(name)[:domain.MaxNameLength])
	}
	if name == "" {
		return "image"
	}
	return name
}
