package domain

// SelectGeometry picks the target dimensions of a variant class for a source
// image. Landscape sources (width > height) get the class's wide pair; portrait
// and square sources get the tall pair. Unknown classes fall back to the
// thumbnail geometry.
func SelectGeometry(sourceWidth, sourceHeight int, class VariantClass) (int, int) {
	v, ok := VariantFor(class)
	if !ok {
		v = Thumbnail
	}
	size := v.Tall
	if sourceWidth > sourceHeight {
		size = v.Wide
	}
	return size.Width, size.Height
}
