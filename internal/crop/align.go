package crop

import (
	"math"

	"cropcall/native/internal/domain"
	"cropcall/native/internal/media"
)

// AlignToSample rounds p down to an even value so a crop never splits a
// 4:2:0 chroma sample.
func AlignToSample(p int) int {
	if p%2 == 0 {
		return p
	}
	return p - 1
}

// AlignCoordinates rounds each coordinate to the nearest integer and aligns
// it to the chroma sample grid.
func AlignCoordinates(c domain.CropCoordinates) media.Rect {
	return media.Rect{
		X:      AlignToSample(int(math.Round(c.X))),
		Y:      AlignToSample(int(math.Round(c.Y))),
		Width:  AlignToSample(int(math.Round(c.Width))),
		Height: AlignToSample(int(math.Round(c.Height))),
	}
}
