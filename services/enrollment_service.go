package services

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/utils"
)

// Enrollment sources recorded in the audit trail.
const (
	SourceCamera = "camera"
	SourceFile   = "file"
	SourceUpload = "upload"
	SourceBulk   = "bulk"
)

// FrameDecoder turns encoded image bytes into a frame the extractor accepts.
type FrameDecoder func(data []byte) (recognition.Frame, error)

type EnrollmentRequest struct {
	ID     int64
	Name   string
	Image  []byte // encoded image as captured or uploaded
	Source string
}

type EnrollmentResult struct {
	recognition.Identity
	Dimension int    `json:"dimension"`
	Faces     int    `json:"faces"`
	Snapshot  string `json:"snapshot,omitempty"`
}

// EnrollmentService turns one image into a gallery entry.
type EnrollmentService struct {
	Gallery   *recognition.Gallery
	Extractor recognition.Extractor
	Decode    FrameDecoder
	Store     *Store
	Snapshots *utils.SnapshotStore // optional
	Clock     func() time.Time
}

// Enroll preprocesses the image, extracts the largest face and upserts it.
// Nothing is stored when no face is found. The snapshot and the audit row
// are written only after the gallery accepted the signature.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollmentRequest) (*EnrollmentResult, error) {
	name := strings.TrimSpace(req.Name)
	if req.ID < 0 || name == "" {
		return nil, fmt.Errorf("%w: enrollment needs a non-negative id and a name", ErrInvalidInput)
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: enrollment image is empty", ErrInvalidInput)
	}

	var takenAt *int64
	if info, err := utils.GetImageInfo(bytes.NewReader(req.Image)); err == nil {
		takenAt = info.TakenAt
	}

	prepared, err := utils.PrepareEnrollmentImage(bytes.NewReader(req.Image))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sig, faces, err := s.extract(ctx, prepared)
	if err != nil {
		return nil, err
	}

	identity := recognition.Identity{ID: req.ID, Name: name}
	if err := s.Gallery.Upsert(ctx, identity, sig); err != nil {
		return nil, err
	}
	log.Printf("enroll: stored %d-d signature for %s (id %d)", len(sig), name, req.ID)

	result := &EnrollmentResult{Identity: identity, Dimension: len(sig), Faces: faces}
	if s.Snapshots == nil {
		return result, nil
	}

	snapshot, err := s.Snapshots.Save(utils.SnapshotFilename(req.ID, name), bytes.NewReader(prepared))
	if err != nil {
		log.Printf("enroll: WARNING snapshot for id %d not saved: %v", req.ID, err)
		return result, nil
	}
	result.Snapshot = snapshot

	source := req.Source
	if source == "" {
		source = SourceFile
	}
	audit := &models.Enrollment{StudentID: req.ID, ImagePath: snapshot, Source: source, TakenAt: takenAt}
	if s.Clock != nil {
		audit.CreatedAt = s.Clock().Unix()
	}
	if err := s.Store.RecordEnrollment(ctx, audit); err != nil {
		log.Printf("enroll: WARNING audit row for id %d not written: %v", req.ID, err)
	}
	return result, nil
}

// extract returns the signature of the largest usable face.
func (s *EnrollmentService) extract(ctx context.Context, image []byte) (recognition.Signature, int, error) {
	frame, err := s.Decode(image)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer frame.Close()

	dets, err := s.Extractor.Extract(ctx, frame)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to extract signature: %w", err)
	}

	var (
		best     recognition.Signature
		bestArea = -1
		usable   int
	)
	for _, d := range dets {
		if !d.Signature.Usable() {
			continue
		}
		usable++
		if area := d.Box.Dx() * d.Box.Dy(); area > bestArea {
			best, bestArea = d.Signature, area
		}
	}
	if best == nil {
		return nil, 0, recognition.ErrNoFaceDetected
	}
	if usable > 1 {
		log.Printf("enroll: %d faces found, using the largest", usable)
	}
	return best, usable, nil
}
