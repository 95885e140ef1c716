package media

import (
	"fmt"

	"github.com/camden-git/faceattend/config"
	"github.com/camden-git/faceattend/recognition"
)

// Extractor is a recognition.Extractor that holds native resources.
type Extractor interface {
	recognition.Extractor
	Close() error
}

// NewExtractor loads the backend selected by EXTRACTOR_BACKEND.
func NewExtractor(cfg config.Config) (Extractor, error) {
	switch cfg.ExtractorBackend {
	case config.BackendDlib:
		return NewDlibExtractor(cfg.DlibModelsPath)
	case config.BackendDNN:
		return NewDNNExtractor(cfg.FaceDNNNetConfigPath, cfg.FaceDNNNetModelPath, cfg.FaceDetectionConfidence,
			cfg.FaceRecognitionModelPath, cfg.FaceRecognitionModelName)
	}
	return nil, fmt.Errorf("unknown extractor backend %q", cfg.ExtractorBackend)
}
