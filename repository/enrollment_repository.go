package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/camden-git/faceattend/models"
	"gorm.io/gorm"
)

// EnrollmentRepository handles the enrollment audit trail
type EnrollmentRepository struct {
	DB *gorm.DB
}

// Ensure EnrollmentRepository implements EnrollmentRepositoryInterface
var _ EnrollmentRepositoryInterface = (*EnrollmentRepository)(nil)

// NewEnrollmentRepository creates a new instance of EnrollmentRepository
func NewEnrollmentRepository(db *gorm.DB) *EnrollmentRepository {
	return &EnrollmentRepository{DB: db}
}

// Create stores an enrollment record
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.CreatedAt == 0 {
		enrollment.CreatedAt = time.Now().Unix()
	}
	if err := r.DB.WithContext(ctx).Create(enrollment).Error; err != nil {
		return fmt.Errorf("failed to create enrollment for student ID %d: %w", enrollment.StudentID, err)
	}
	return nil
}

// ListByStudentID returns a student's enrollments, newest first
func (r *EnrollmentRepository) ListByStudentID(ctx context.Context, studentID int64) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	err := r.DB.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").Order("id DESC").
		Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments for student ID %d: %w", studentID, err)
	}
	return enrollments, nil
}

// LatestByStudent returns the most recent enrollment of every student
func (r *EnrollmentRepository) LatestByStudent(ctx context.Context) (map[int64]models.Enrollment, error) {
	var enrollments []models.Enrollment
	latestIDs := r.DB.Model(&models.Enrollment{}).Select("MAX(id)").Group("student_id")
	err := r.DB.WithContext(ctx).Where("id IN (?)", latestIDs).Find(&enrollments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest enrollments: %w", err)
	}
	out := make(map[int64]models.Enrollment, len(enrollments))
	for _, e := range enrollments {
		out[e.StudentID] = e
	}
	return out, nil
}

// DeleteByStudentID removes the audit trail of a student
func (r *EnrollmentRepository) DeleteByStudentID(ctx context.Context, studentID int64) error {
	if err := r.DB.WithContext(ctx).Where("student_id = ?", studentID).Delete(&models.Enrollment{}).Error; err != nil {
		return fmt.Errorf("failed to delete enrollments for student ID %d: %w", studentID, err)
	}
	return nil
}
