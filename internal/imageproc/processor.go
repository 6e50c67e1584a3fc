// Package imageproc prepares uploaded images before they are stored.
package imageproc

// OneMB is the size under which images are stored as uploaded.
const OneMB = 1024 * 1024

// DefaultMaxDimension bounds the longest side of a processed image.
const DefaultMaxDimension = 2560

// Processor transforms image bytes ahead of upload. Implementations must
// return the input unchanged when there is nothing to do.
type Processor interface {
	Process(data []byte, contentType string) (*ProcessResult, error)
}

type ProcessResult struct {
	Data           []byte
	ContentType    string
	Width          int
	Height         int
	HasAlpha       bool
	OriginalSize   int
	CompressedSize int
}

// FitWithin maintains aspect ratio while ensuring neither width nor height
// exceeds maxDimension.
func FitWithin(width, height, maxDimension int) (int, int) {
	if maxDimension <= 0 || (width <= maxDimension && height <= maxDimension) {
		return width, height
	}
	if height == 0 || width == 0 {
		return width, height
	}

	ratio := float64(width) / float64(height)
	if width > height {
		return maxDimension, max(1, int(float64(maxDimension)/ratio))
	}
	return max(1, int(float64(maxDimension)*ratio)), maxDimension
}
