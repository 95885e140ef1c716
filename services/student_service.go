package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/utils"
	"gorm.io/gorm"
)

// StudentSummary is a student as listed to operators. The signature itself
// is never exposed.
type StudentSummary struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Dimension  int    `json:"dimension"`
	EnrolledAt *int64 `json:"enrolled_at,omitempty"`
	Snapshot   string `json:"snapshot,omitempty"`
}

// StudentService manages enrolled students. With a Gallery set, renames and
// removals go through it so the running matcher sees them immediately.
type StudentService struct {
	Store     *Store
	Gallery   *recognition.Gallery // optional
	Snapshots *utils.SnapshotStore // optional
}

func (s *StudentService) List(ctx context.Context) ([]StudentSummary, error) {
	students, err := s.Store.Students.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := s.Store.Enrollments.LatestByStudent(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]StudentSummary, 0, len(students))
	for i := range students {
		sum := StudentSummary{ID: students[i].ID, Name: students[i].Name, Dimension: students[i].Dimension()}
		if e, ok := latest[students[i].ID]; ok {
			enrolledAt := e.CreatedAt
			sum.EnrolledAt = &enrolledAt
			sum.Snapshot = e.ImagePath
		}
		out = append(out, sum)
	}
	return out, nil
}

// Rename corrects a student's name and keeps the signature.
// Students missing from the gallery are renamed in storage only.
func (s *StudentService) Rename(ctx context.Context, id int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}

	if s.Gallery != nil {
		if entry, ok := s.Gallery.Lookup(id); ok {
			return s.Gallery.Upsert(ctx, recognition.Identity{ID: id, Name: name}, entry.Signature)
		}
		// rows with an unusable encoding are listed but never loaded
	}

	err := s.Store.RenameStudent(ctx, id, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrStudentNotFound
	}
	return err
}

// Count is the number of stored students, including rows the gallery
// could not load.
func (s *StudentService) Count(ctx context.Context) (int64, error) {
	return s.Store.Students.Count(ctx)
}

// Snapshot opens the image of the student's most recent enrollment.
func (s *StudentService) Snapshot(ctx context.Context, id int64) (io.ReadCloser, os.FileInfo, error) {
	if _, err := s.Store.Students.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrStudentNotFound
		}
		return nil, nil, err
	}
	if s.Snapshots == nil {
		return nil, nil, ErrNoSnapshot
	}
	enrollments, err := s.Store.Enrollments.ListByStudentID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range enrollments {
		if e.ImagePath == "" {
			continue
		}
		rc, info, err := s.Snapshots.Open(e.ImagePath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Printf("students: WARNING snapshot %s for id %d is missing", e.ImagePath, id)
				continue
			}
			return nil, nil, err
		}
		return rc, info, nil
	}
	return nil, nil, ErrNoSnapshot
}

// Remove deletes the signature, the enrollment audit rows and the dataset
// snapshots. Attendance history is kept.
func (s *StudentService) Remove(ctx context.Context, id int64) error {
	if _, err := s.Store.Students.GetByID(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrStudentNotFound
		}
		return err
	}

	if s.Gallery != nil {
		if err := s.Gallery.Remove(ctx, id); err != nil {
			return err
		}
	} else if err := s.Store.DeleteSignature(ctx, id); err != nil {
		return err
	}

	paths, err := s.Store.ForgetEnrollments(ctx, id)
	if err != nil {
		log.Printf("students: WARNING enrollment history for id %d not removed: %v", id, err)
		return nil
	}
	if s.Snapshots != nil {
		for _, p := range paths {
			if err := s.Snapshots.Delete(p); err != nil {
				log.Printf("students: WARNING %v", err)
			}
		}
	}
	log.Printf("students: removed id %d", id)
	return nil
}
