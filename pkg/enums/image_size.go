package enums

import "fmt"

// ImageSize is the requested output resolution.
type ImageSize string

const (
	ImageSize1K ImageSize = "1K"
	ImageSize2K ImageSize = "2K"
	ImageSize4K ImageSize = "4K"
)

var validImageSizes = []ImageSize{
	ImageSize1K,
	ImageSize2K,
	ImageSize4K,
}

// String implements fmt.Stringer.
func (s ImageSize) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s ImageSize) IsValid() bool {
	for _, candidate := range validImageSizes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseImageSize converts raw input into a ImageSize.
func ParseImageSize(value string) (ImageSize, error) {
	for _, candidate := range validImageSizes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid image size %q", value)
}
