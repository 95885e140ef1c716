package recognition

import (
	"errors"
	"fmt"
)

var (
	// ErrCameraUnavailable is returned when the frame source stops producing frames.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrNoFaceDetected is returned by enrollment when the image holds no usable face.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrExtractorBusy is returned by TimeoutExtractor while a timed-out call is still running.
	ErrExtractorBusy = errors.New("extractor busy")
	// ErrExtractTimeout is returned when an extraction exceeds its bound. The
	// frame passed in now belongs to the extractor.
	ErrExtractTimeout = errors.New("extract timed out")
)

// StorageError wraps a persistence failure with the operation that triggered it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err carries a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
