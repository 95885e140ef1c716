package media

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/Kagami/go-face"
	"github.com/camden-git/faceattend/recognition"
	"gocv.io/x/gocv"
)

// DlibExtractor produces 128-d descriptors with dlib's ResNet model. The
// models directory must hold shape_predictor_5_face_landmarks.dat,
// dlib_face_recognition_resnet_model_v1.dat and mmod_human_face_detector.dat.
type DlibExtractor struct {
	rec *face.Recognizer
	mu  sync.Mutex
}

func NewDlibExtractor(modelsDir string) (*DlibExtractor, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("recognition(dlib): failed to load models from %s: %w", modelsDir, err)
	}
	log.Printf("recognition(dlib): loaded models from %s", modelsDir)
	return &DlibExtractor{rec: rec}, nil
}

func (x *DlibExtractor) Extract(ctx context.Context, frame recognition.Frame) ([]recognition.Detection, error) {
	mat, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("recognition(dlib): failed to encode frame: %w", err)
	}
	defer buf.Close()

	x.mu.Lock()
	faces, err := x.rec.Recognize(buf.GetBytes())
	x.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("recognition(dlib): %w", err)
	}

	dets := make([]recognition.Detection, 0, len(faces))
	for _, f := range faces {
		descriptor := f.Descriptor
		sig := recognition.FromFloat32(descriptor[:])
		if !sig.Usable() {
			continue
		}
		dets = append(dets, recognition.Detection{Box: f.Rectangle, Signature: sig})
	}
	return dets, nil
}

func (x *DlibExtractor) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.rec != nil {
		x.rec.Close()
		x.rec = nil
	}
	return nil
}
