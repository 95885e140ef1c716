package media

import (
	"context"
	"fmt"
	"log"

	"github.com/camden-git/faceattend/recognition"
	"gocv.io/x/gocv"
)

// Camera reads frames from a local capture device.
type Camera struct {
	device  int
	capture *gocv.VideoCapture
}

// OpenCamera opens the capture device. Failure wraps recognition.ErrCameraUnavailable.
func OpenCamera(device int) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open device %d: %v", recognition.ErrCameraUnavailable, device, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: device %d is not available", recognition.ErrCameraUnavailable, device)
	}
	log.Printf("camera: opened device %d", device)
	return &Camera{device: device, capture: capture}, nil
}

// CameraOpener adapts OpenCamera for the recognition pipeline.
func CameraOpener(device int) recognition.SourceOpener {
	return func(ctx context.Context) (recognition.FrameSource, error) {
		return OpenCamera(device)
	}
}

func (c *Camera) Read(ctx context.Context) (recognition.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: device %d returned no frame", recognition.ErrCameraUnavailable, c.device)
	}
	return NewMatFrame(mat), nil
}

func (c *Camera) Close() error {
	if c == nil || c.capture == nil {
		return nil
	}
	err := c.capture.Close()
	c.capture = nil
	log.Printf("camera: released device %d", c.device)
	return err
}
