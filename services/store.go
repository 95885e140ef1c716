package services

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/repository"
	"gorm.io/gorm"
)

// Store backs the gallery and the recorder with the repositories. Every
// write goes through one mutex so SQLite sees a single writer.
type Store struct {
	Students    repository.StudentRepositoryInterface
	Attendance  repository.AttendanceRepositoryInterface
	Enrollments repository.EnrollmentRepositoryInterface

	mu sync.Mutex
}

var (
	_ recognition.GalleryStore    = (*Store)(nil)
	_ recognition.AttendanceStore = (*Store)(nil)
)

func NewStore(db *gorm.DB) *Store {
	return &Store{
		Students:    repository.NewStudentRepository(db),
		Attendance:  repository.NewAttendanceRepository(db),
		Enrollments: repository.NewEnrollmentRepository(db),
	}
}

// LoadSignatures returns every student with a decodable signature. Rows
// whose blob cannot be decoded are logged and left out of the gallery.
func (s *Store) LoadSignatures(ctx context.Context) ([]recognition.Entry, error) {
	students, err := s.Students.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]recognition.Entry, 0, len(students))
	for i := range students {
		sig, err := students[i].GetSignature()
		if err != nil || len(sig) == 0 {
			log.Printf("store: skipping student %d (%s): unusable encoding: %v", students[i].ID, students[i].Name, err)
			continue
		}
		entries = append(entries, recognition.Entry{
			Identity:  recognition.Identity{ID: students[i].ID, Name: students[i].Name},
			Signature: sig,
		})
	}
	return entries, nil
}

func (s *Store) SaveSignature(ctx context.Context, id recognition.Identity, sig recognition.Signature) error {
	student := &models.Student{ID: id.ID, Name: id.Name}
	student.SetSignature(sig)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Students.Upsert(ctx, student)
}

func (s *Store) DeleteSignature(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.Students.Delete(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func (s *Store) AppendAttendance(ctx context.Context, ev recognition.AttendanceEvent) error {
	row := models.AttendanceFromEvent(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Attendance.Create(ctx, &row)
}

func (s *Store) HasAttendanceOn(ctx context.Context, id int64, date string) (bool, error) {
	return s.Attendance.ExistsOnDate(ctx, id, date)
}

// RenameStudent changes the stored name and keeps the signature.
func (s *Store) RenameStudent(ctx context.Context, id int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Students.Rename(ctx, id, name)
}

func (s *Store) RecordEnrollment(ctx context.Context, enrollment *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Enrollments.Create(ctx, enrollment)
}

// ForgetEnrollments removes the audit trail of a student and returns the
// snapshot paths it referenced.
func (s *Store) ForgetEnrollments(ctx context.Context, studentID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.Enrollments.ListByStudentID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := s.Enrollments.DeleteByStudentID(ctx, studentID); err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var paths []string
	for _, e := range list {
		if e.ImagePath != "" && !seen[e.ImagePath] {
			seen[e.ImagePath] = true
			paths = append(paths, e.ImagePath)
		}
	}
	return paths, nil
}
