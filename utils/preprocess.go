package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/disintegration/imaging"
)

const (
	enrollmentJPEGQuality = 95
	// images are not halved below this width
	minEnrollmentWidth = 160
)

// PreprocessEnrollmentImage normalizes an enrollment photo: EXIF orientation
// applied, converted to grayscale and scaled to half size. The model later
// reads it back as three identical channels.
func PreprocessEnrollmentImage(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	w := gray.Bounds().Dx()
	if w/2 < minEnrollmentWidth {
		return gray
	}
	return imaging.Resize(gray, w/2, 0, imaging.Lanczos)
}

// PrepareEnrollmentImage decodes r, preprocesses it and returns JPEG bytes.
func PrepareEnrollmentImage(r io.Reader) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode enrollment image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("enrollment image is empty")
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, PreprocessEnrollmentImage(img), imaging.JPEG, imaging.JPEGQuality(enrollmentJPEGQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode enrollment image: %w", err)
	}
	return buf.Bytes(), nil
}
