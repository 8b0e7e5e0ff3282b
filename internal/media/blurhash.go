package media

import (
	"fmt"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/buckket/go-blurhash"
	"github.com/disintegration/imaging"
)

// Hasher computes the perceptual placeholder of a source image.
type Hasher interface {
	// Hash returns the BlurHash of src. The result depends only on the
	// input bytes.
	Hash(src []byte) (string, error)
}

type blurHasher struct {
	grid       int
	componentX int
	componentY int
}

// NewHasher creates a Hasher that reduces the source to a 32x32 grid and
// encodes 4x3 components.
func NewHasher() Hasher {
	return &blurHasher{
		grid:       domain.PlaceholderGridSize,
		componentX: domain.PlaceholderComponentsX,
		componentY: domain.PlaceholderComponentsY,
	}
}

// Hash implements Hasher.
func (h *blurHasher) Hash(src []byte) (string, error) {
	img, err := decode(src)
	if err != nil {
		return "", err
	}

	// Bounds the encoding cost regardless of source resolution.
	small := imaging.Fill(img, h.grid, h.grid, imaging.Center, imaging.Lanczos)

	hash, err := blurhash.Encode(h.componentX, h.componentY, small)
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	if hash == "" {
		return "", fmt.Errorf("encode blurhash: empty result")
	}
	return hash, nil
}
