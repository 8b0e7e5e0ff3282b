package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectGeometry(t *testing.T) {
	tests := []struct {
		name       string
		width      int
		height     int
		class      VariantClass
		wantWidth  int
		wantHeight int
	}{
		// Landscape sources get the wide pair
		{"landscape thumbnail", 4000, 3000, VariantThumbnail, 1280, 720},
		{"landscape hd", 4000, 3000, VariantHD, 2560, 1440},
		{"barely landscape thumbnail", 1001, 1000, VariantThumbnail, 1280, 720},
		{"barely landscape hd", 1001, 1000, VariantHD, 2560, 1440},

		// Portrait sources get the tall pair
		{"portrait thumbnail", 1000, 2000, VariantThumbnail, 720, 1080},
		{"portrait hd", 1000, 2000, VariantHD, 1440, 2160},
		{"barely portrait hd", 1000, 1001, VariantHD, 1440, 2160},

		// Square sources are treated as tall
		{"square thumbnail", 1000, 1000, VariantThumbnail, 720, 1080},
		{"square hd", 1000, 1000, VariantHD, 1440, 2160},
		{"zero dimensions", 0, 0, VariantThumbnail, 720, 1080},

		// Unknown class falls back to thumbnail geometry
		{"unknown class", 4000, 3000, VariantClass("poster"), 1280, 720},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := SelectGeometry(tt.width, tt.height, tt.class)
			assert.Equal(t, tt.wantWidth, w)
			assert.Equal(t, tt.wantHeight, h)
		})
	}
}

func TestVariants_FixedSet(t *testing.T) {
	assert.Len(t, Variants, 2)
	assert.Less(t, Thumbnail.Quality, HD.Quality, "thumbnails trade fidelity for bandwidth")

	folders := map[Folder]bool{}
	for _, v := range Variants {
		assert.True(t, v.Class.IsValid())
		assert.True(t, v.Codec.IsValid())
		folders[v.Folder] = true
	}
	for _, f := range Folders {
		assert.True(t, folders[f], "folder %s has no variant", f)
	}
}
