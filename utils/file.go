package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/facette/natsort"
)

var supportedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
}

// IsRasterImage checks if the filename has a common raster image extension
func IsRasterImage(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext]
}

// SnapshotFilename is the dataset file name for an enrollment image: {id}_{name}.jpg
func SnapshotFilename(id int64, name string) string {
	return fmt.Sprintf("%d_%s.jpg", id, FileSafeName(name))
}

// ParseEnrollmentFilename splits "{id}_{name}.ext" into its id and name.
func ParseEnrollmentFilename(filename string) (int64, string, bool) {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	idPart, namePart, found := strings.Cut(base, "_")
	if !found {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id < 0 {
		return 0, "", false
	}
	name := strings.TrimSpace(strings.ReplaceAll(namePart, "_", " "))
	if name == "" {
		return 0, "", false
	}
	return id, name, true
}

// EnrollmentImage is one file found by ListEnrollmentImages.
type EnrollmentImage struct {
	Path string
	ID   int64
	Name string
}

// ListEnrollmentImages returns the images in dir named {id}_{name}.ext in
// natural order. Files that do not follow the pattern are returned in skipped.
func ListEnrollmentImages(dir string) (images []EnrollmentImage, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read enrollment directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	natsort.Sort(names)

	for _, name := range names {
		if !IsRasterImage(name) {
			skipped = append(skipped, name)
			continue
		}
		id, person, ok := ParseEnrollmentFilename(name)
		if !ok {
			skipped = append(skipped, name)
			continue
		}
		images = append(images, EnrollmentImage{Path: filepath.Join(dir, name), ID: id, Name: person})
	}
	return images, skipped, nil
}
