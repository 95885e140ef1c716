package media

import (
	"context"
	"errors"
	"image"
	"image/color"
	"log"

	"github.com/camden-git/faceattend/recognition"
	"gocv.io/x/gocv"
)

const (
	keyEsc   = 27
	keySpace = 32
)

// ErrCaptureAborted is returned by CaptureStill when the user presses ESC or q.
var ErrCaptureAborted = errors.New("capture aborted")

var boxColor = color.RGBA{G: 255, A: 255}

// WindowRenderer shows annotated frames in a desktop window. Pressing q stops the run.
type WindowRenderer struct {
	window *gocv.Window
}

func NewWindowRenderer(title string) *WindowRenderer {
	return &WindowRenderer{window: gocv.NewWindow(title)}
}

func (w *WindowRenderer) Render(frame recognition.Frame, annotations []recognition.Annotation) (bool, error) {
	mat, err := matOf(frame)
	if err != nil {
		return true, err
	}
	drawAnnotations(&mat, annotations)
	w.window.IMShow(mat)
	key := w.window.WaitKey(1)
	return key == 'q' || key == 'Q', nil
}

func (w *WindowRenderer) Close() error {
	if w == nil || w.window == nil {
		return nil
	}
	return w.window.Close()
}

func drawAnnotations(mat *gocv.Mat, annotations []recognition.Annotation) {
	for _, a := range annotations {
		gocv.Rectangle(mat, a.Box, boxColor, 2)
		textAt := image.Pt(a.Box.Min.X, a.Box.Min.Y-10)
		if textAt.Y < 15 {
			textAt.Y = a.Box.Max.Y + 20
		}
		gocv.PutText(mat, a.Label, textAt, gocv.FontHersheySimplex, 0.75, boxColor, 2)
	}
}

// LogRenderer replaces the window when running headless.
type LogRenderer struct {
	frames int
}

func (l *LogRenderer) Render(frame recognition.Frame, annotations []recognition.Annotation) (bool, error) {
	l.frames++
	for _, a := range annotations {
		if a.Result.Known {
			log.Printf("recognize: frame %d: %s (id %d, distance %.3f, recorded %t)", l.frames, a.Label, a.Result.ID, a.Result.Distance, a.Recorded)
		} else {
			log.Printf("recognize: frame %d: %s face at %v", l.frames, a.Label, a.Box)
		}
	}
	return false, nil
}

// CaptureStill shows the live feed until SPACE is pressed and returns that
// frame. ESC or q returns ErrCaptureAborted. The camera is released before
// returning.
func CaptureStill(ctx context.Context, device int, title string) (*MatFrame, error) {
	cam, err := OpenCamera(device)
	if err != nil {
		return nil, err
	}
	defer cam.Close()

	window := gocv.NewWindow(title)
	defer window.Close()

	for {
		frame, err := cam.Read(ctx)
		if err != nil {
			return nil, err
		}
		mf := frame.(*MatFrame)
		window.IMShow(mf.Mat)

		switch window.WaitKey(1) {
		case keySpace:
			log.Printf("camera: captured still from device %d", device)
			return mf, nil
		case keyEsc, 'q', 'Q':
			mf.Close()
			return nil, ErrCaptureAborted
		}
		mf.Close()
	}
}
