package media

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"os"
	"sync"

	"github.com/camden-git/faceattend/recognition"
	"gocv.io/x/gocv"
)

// preferCUDA tries the CUDA backend and falls back to the CPU.
func preferCUDA(net *gocv.Net, component string) {
	cudaBackendErr := net.SetPreferableBackend(gocv.NetBackendCUDA)
	cudaTargetErr := net.SetPreferableTarget(gocv.NetTargetCUDA)
	if cudaBackendErr == nil && cudaTargetErr == nil {
		log.Printf("%s: set backend/target to CUDA", component)
		return
	}
	if cudaBackendErr != nil {
		log.Printf("%s: CUDA backend not available: %v. Using default backend.", component, cudaBackendErr)
	}
	if cudaTargetErr != nil {
		log.Printf("%s: CUDA target not available: %v. Using default target.", component, cudaTargetErr)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
}

// FaceDetector finds face boxes with the res10 SSD network.
type FaceDetector struct {
	Net gocv.Net

	InputSizeW    int
	InputSizeH    int
	ScaleFactor   float64
	MeanVal       gocv.Scalar
	ConfThreshold float32
}

func NewFaceDetector(configPath, modelPath string, confidence float64) (*FaceDetector, error) {
	if configPath == "" || modelPath == "" {
		return nil, fmt.Errorf("detection(dnn): config and model paths are required")
	}
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("detection(dnn): failed to load network config=%s model=%s", configPath, modelPath)
	}
	log.Printf("detection(dnn): loaded face detection model %s", modelPath)
	preferCUDA(&net, "detection(dnn)")

	return &FaceDetector{
		Net:           net,
		InputSizeW:    300,
		InputSizeH:    300,
		ScaleFactor:   1.0,
		MeanVal:       gocv.NewScalar(104.0, 177.0, 123.0, 0),
		ConfThreshold: float32(confidence),
	}, nil
}

func (d *FaceDetector) Close() error {
	if d == nil {
		return nil
	}
	return d.Net.Close()
}

// Detect returns face boxes in detector order, clipped to the image.
func (d *FaceDetector) Detect(img gocv.Mat) []image.Rectangle {
	if img.Empty() {
		return nil
	}
	imgHeight := float32(img.Rows())
	imgWidth := float32(img.Cols())

	blob := gocv.BlobFromImage(img, d.ScaleFactor, image.Pt(d.InputSizeW, d.InputSizeH), d.MeanVal, false, false)
	defer blob.Close()

	d.Net.SetInput(blob, "")
	detectionsMat := d.Net.Forward("")
	defer detectionsMat.Close()

	sizes := detectionsMat.Size()
	if len(sizes) < 4 {
		log.Printf("detection(dnn): unexpected output dimensions %v", sizes)
		return nil
	}
	numDetections := sizes[2]
	if numDetections == 0 {
		return nil
	}

	// [1,1,N,7] -> [N,7]
	detectionsData := detectionsMat.Reshape(1, numDetections)
	defer detectionsData.Close()

	var boxes []image.Rectangle
	for i := 0; i < numDetections; i++ {
		confidence := detectionsData.GetFloatAt(i, 2)
		if confidence <= d.ConfThreshold {
			continue
		}
		xMin := max(0, detectionsData.GetFloatAt(i, 3)*imgWidth)
		yMin := max(0, detectionsData.GetFloatAt(i, 4)*imgHeight)
		xMax := min(imgWidth, detectionsData.GetFloatAt(i, 5)*imgWidth)
		yMax := min(imgHeight, detectionsData.GetFloatAt(i, 6)*imgHeight)
		if xMax > xMin && yMax > yMin {
			boxes = append(boxes, image.Rect(int(xMin), int(yMin), int(xMax), int(yMax)))
		}
	}
	return boxes
}

// EmbeddingNet turns a face crop into an L2-normalized embedding
// (ArcFace, FaceNet or a compatible ONNX network).
type EmbeddingNet struct {
	Net       gocv.Net
	ModelName string

	InputSizeW int
	InputSizeH int
}

func NewEmbeddingNet(modelPath, modelName string) (*EmbeddingNet, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("recognition(dnn): model path is empty")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("recognition(dnn): model file %s: %w", modelPath, err)
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("recognition(dnn): ReadNet returned an empty network for %s", modelPath)
	}
	log.Printf("recognition(dnn): loaded %s model %s", modelName, modelPath)
	preferCUDA(&net, "recognition(dnn)")

	size := 112
	if modelName == "facenet" {
		size = 160
	}
	return &EmbeddingNet{Net: net, ModelName: modelName, InputSizeW: size, InputSizeH: size}, nil
}

func (e *EmbeddingNet) Close() error {
	if e == nil {
		return nil
	}
	return e.Net.Close()
}

// Embed returns nil when the network yields no usable vector.
func (e *EmbeddingNet) Embed(face gocv.Mat) []float32 {
	if face.Empty() {
		return nil
	}

	// the network expects RGB
	rgb := gocv.NewMat()
	defer rgb.Close()
	if face.Channels() == 3 {
		gocv.CvtColor(face, &rgb, gocv.ColorBGRToRGB)
	} else {
		gocv.CvtColor(face, &rgb, gocv.ColorGrayToRGB)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(rgb, &resized, image.Pt(e.InputSizeW, e.InputSizeH), 0, 0, gocv.InterpolationLinear)

	blob := gocv.BlobFromImage(resized, 1.0/255.0, image.Pt(e.InputSizeW, e.InputSizeH), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	e.Net.SetInput(blob, "")
	output := e.Net.Forward("")
	defer output.Close()
	if output.Empty() {
		return nil
	}

	flattened := output.Reshape(1, 1)
	defer flattened.Close()

	embedding := make([]float32, flattened.Cols())
	for i := range embedding {
		embedding[i] = flattened.GetFloatAt(0, i)
	}
	return normalizeEmbedding(embedding)
}

// normalizeEmbedding scales to unit length; a zero vector yields nil.
func normalizeEmbedding(embedding []float32) []float32 {
	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil
	}
	out := make([]float32, len(embedding))
	for i, v := range embedding {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

// DNNExtractor runs the SSD detector and the embedding network on a frame.
type DNNExtractor struct {
	Detector *FaceDetector
	Embedder *EmbeddingNet

	mu sync.Mutex // gocv.Net is not safe for concurrent use
}

func NewDNNExtractor(detectorConfig, detectorModel string, confidence float64, embedModel, embedName string) (*DNNExtractor, error) {
	detector, err := NewFaceDetector(detectorConfig, detectorModel, confidence)
	if err != nil {
		return nil, err
	}
	embedder, err := NewEmbeddingNet(embedModel, embedName)
	if err != nil {
		detector.Close()
		return nil, err
	}
	return &DNNExtractor{Detector: detector, Embedder: embedder}, nil
}

func (x *DNNExtractor) Extract(ctx context.Context, frame recognition.Frame) ([]recognition.Detection, error) {
	mat, err := matOf(frame)
	if err != nil {
		return nil, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	var dets []recognition.Detection
	for _, box := range x.Detector.Detect(mat) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		region := mat.Region(box)
		embedding := x.Embedder.Embed(region)
		region.Close()
		if embedding == nil {
			continue
		}
		dets = append(dets, recognition.Detection{Box: box, Signature: recognition.FromFloat32(embedding)})
	}
	return dets, nil
}

func (x *DNNExtractor) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	errDet := x.Detector.Close()
	errEmb := x.Embedder.Close()
	if errDet != nil {
		return errDet
	}
	return errEmb
}
