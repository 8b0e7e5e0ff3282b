// Package media turns uploaded image bytes into the artifacts the ingestion
// pipeline stores: fixed-geometry raster variants and a BlurHash placeholder.
//
// Every operation takes the complete source buffer and decodes it itself, so
// renders and the hash of one file can run concurrently without sharing
// decoded pixels. Decoded images are never cached.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"

	// Register decoders used by imaging.Decode beyond its defaults.
	_ "golang.org/x/image/webp"
)

// Sentinel errors returned (wrapped) by the package.
var (
	// ErrDecode is returned when the source bytes are not a decodable image.
	ErrDecode = errors.New("failed to decode image")

	// ErrEncode is returned when a variant could not be encoded.
	ErrEncode = errors.New("failed to encode image")

	// ErrUnsupportedCodec is returned for codecs the renderer does not know.
	ErrUnsupportedCodec = errors.New("unsupported codec")

	// ErrInvalidGeometry is returned for non-positive target dimensions.
	ErrInvalidGeometry = errors.New("invalid target geometry")

	// ErrInvalidQuality is returned for a quality outside 0..100.
	ErrInvalidQuality = errors.New("quality must be between 0 and 100")
)

// decode reads the source with its EXIF orientation applied to the pixels.
// Encoders never write orientation metadata back, so every output produced
// from the result is upright with "no rotation".
func decode(src []byte) (image.Image, error) {
	if len(src) == 0 {
		return nil, fmt.Errorf("%w: empty buffer", ErrDecode)
	}
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Dimensions returns the displayed width and height of the source, i.e. after
// its EXIF orientation has been applied. Only the image header is read.
func Dimensions(src []byte) (int, int, error) {
	if len(src) == 0 {
		return 0, 0, fmt.Errorf("%w: empty buffer", ErrDecode)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	// imaging only honours orientation tags in JPEG sources.
	if format == "jpeg" && swapsAxes(orientation(src)) {
		return cfg.Height, cfg.Width, nil
	}
	return cfg.Width, cfg.Height, nil
}

// orientation returns the EXIF orientation of src, 1 when it has none.
func orientation(src []byte) int {
	x, err := exif.Decode(bytes.NewReader(src))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	o, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return o
}

// swapsAxes reports whether an orientation turns the image by 90 degrees.
func swapsAxes(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}
