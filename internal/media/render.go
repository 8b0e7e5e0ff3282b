package media

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/DukeRupert/snapshot/internal/domain"
	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Renderer produces fixed-geometry variants of a source image.
type Renderer interface {
	// Render decodes src, cover-fits it to exactly width x height (cropping
	// the overflow around the center) and encodes the result with codec at
	// the given quality (0-100). It never returns a partial buffer: any
	// decode or encode error yields a nil slice.
	Render(src []byte, width, height int, codec domain.Codec, quality int) ([]byte, error)
}

// =============================================================================
// Implementation
// =============================================================================

// imagingRenderer implements Renderer using the imaging library.
type imagingRenderer struct{}

// NewRenderer creates a new Renderer backed by the imaging library.
func NewRenderer() Renderer {
	return &imagingRenderer{}
}

// Render implements Renderer.
func (r *imagingRenderer) Render(src []byte, width, height int, codec domain.Codec, quality int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidGeometry, width, height)
	}
	if quality < 0 || quality > 100 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuality, quality)
	}
	if !codec.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, codec)
	}

	img, err := decode(src)
	if err != nil {
		return nil, err
	}

	variant := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)

	return Encode(variant, codec, quality)
}

// Encode writes img with the given codec and quality.
func Encode(img image.Image, codec domain.Codec, quality int) ([]byte, error) {
	var buf bytes.Buffer

	switch codec {
	case domain.CodecWebP:
		opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
		if err != nil {
			return nil, fmt.Errorf("%w: webp options: %v", ErrEncode, err)
		}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, fmt.Errorf("%w: webp: %v", ErrEncode, err)
		}
	case domain.CodecJPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrEncode, err)
		}
	case domain.CodecPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(pngCompression(quality))); err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrEncode, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedCodec, codec)
	}

	return buf.Bytes(), nil
}

// pngCompression maps a quality onto zlib effort. PNG is lossless, so a low
// quality only asks for the smallest file.
func pngCompression(quality int) png.CompressionLevel {
	if quality <= 50 {
		return png.BestCompression
	}
	return png.DefaultCompression
}
