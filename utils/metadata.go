package utils

import (
	"fmt"
	"image"
	"io"
	"log"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// ImageInfo is what enrollment keeps about a source image.
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Format      string  `json:"format"`
	CameraMake  *string `json:"camera_make,omitempty"`
	CameraModel *string `json:"camera_model,omitempty"`
	TakenAt     *int64  `json:"taken_at,omitempty"`
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val := strings.Trim(strings.TrimRight(tag.String(), "\x00"), `"`)
	if val == "" {
		return nil
	}
	return &val
}

// GetImageInfo decodes dimensions and, when present, EXIF camera and capture
// time. Missing EXIF is not an error.
func GetImageInfo(r io.ReadSeeker) (*ImageInfo, error) {
	config, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to decode image header: %w", err)
	}
	info := &ImageInfo{Width: config.Width, Height: config.Height, Format: format}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("metadata: failed to seek image: %w", err)
	}

	exifData, err := exif.Decode(r)
	if err != nil {
		// not necessarily a fatal error, camera frames and PNGs carry no EXIF
		return info, nil
	}

	info.CameraMake = getString(exifData, exif.Make)
	info.CameraModel = getString(exifData, exif.Model)
	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		info.TakenAt = &ts
	} else {
		log.Printf("metadata: could not read DateTimeOriginal: %v", err)
	}
	return info, nil
}
