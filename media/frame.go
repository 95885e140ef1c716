package media

import (
	"errors"
	"fmt"

	"github.com/camden-git/faceattend/recognition"
	"gocv.io/x/gocv"
)

// MatFrame is a frame backed by a gocv.Mat in BGR order.
type MatFrame struct {
	Mat    gocv.Mat
	closed bool
}

func NewMatFrame(mat gocv.Mat) *MatFrame {
	return &MatFrame{Mat: mat}
}

func (f *MatFrame) Close() error {
	if f == nil || f.closed {
		return nil
	}
	f.closed = true
	return f.Mat.Close()
}

// DecodeFrame decodes encoded image bytes (JPEG, PNG) into a 3-channel frame.
// Grayscale input is expanded to three identical channels.
func DecodeFrame(data []byte) (*MatFrame, error) {
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if mat.Empty() {
		mat.Close()
		return nil, errors.New("failed to decode image: empty result")
	}
	return NewMatFrame(mat), nil
}

// matOf unwraps a frame produced by this package.
func matOf(frame recognition.Frame) (gocv.Mat, error) {
	f, ok := frame.(*MatFrame)
	if !ok || f == nil {
		return gocv.Mat{}, fmt.Errorf("unsupported frame type %T", frame)
	}
	if f.closed || f.Mat.Empty() {
		return gocv.Mat{}, errors.New("frame is empty or already closed")
	}
	return f.Mat, nil
}

// EncodeJPEG encodes the frame for storage or for the enrollment service.
func EncodeJPEG(frame *MatFrame) ([]byte, error) {
	mat, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// Decoder adapts DecodeFrame to services.FrameDecoder.
func Decoder(data []byte) (recognition.Frame, error) {
	f, err := DecodeFrame(data)
	if err != nil {
		return nil, err
	}
	return f, nil
}
