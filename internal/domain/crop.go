package domain

// CropCoordinates describes a crop region in source-frame pixels. Values may
// be fractional; they are rounded and sample aligned before use.
type CropCoordinates struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}
