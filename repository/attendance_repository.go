package repository

import (
	"context"
	"fmt"

	"github.com/camden-git/faceattend/models"
	"gorm.io/gorm"
)

// AttendanceFilter narrows List. Zero values mean no constraint.
type AttendanceFilter struct {
	Date      string
	StudentID *int64
	Limit     int
}

// AttendanceRepository handles database operations for Attendance rows
type AttendanceRepository struct {
	DB *gorm.DB
}

// Ensure AttendanceRepository implements AttendanceRepositoryInterface
var _ AttendanceRepositoryInterface = (*AttendanceRepository)(nil)

// NewAttendanceRepository creates a new instance of AttendanceRepository
func NewAttendanceRepository(db *gorm.DB) *AttendanceRepository {
	return &AttendanceRepository{DB: db}
}

// Create appends an attendance row
func (r *AttendanceRepository) Create(ctx context.Context, row *models.Attendance) error {
	if err := r.DB.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create attendance for student ID %d: %w", row.StudentID, err)
	}
	return nil
}

// List returns rows newest first
func (r *AttendanceRepository) List(ctx context.Context, filter AttendanceFilter) ([]models.Attendance, error) {
	q := r.DB.WithContext(ctx).Model(&models.Attendance{})
	if filter.Date != "" {
		q = q.Where("date = ?", filter.Date)
	}
	if filter.StudentID != nil {
		q = q.Where("id = ?", *filter.StudentID)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []models.Attendance
	if err := q.Order("date DESC").Order("time DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	return rows, nil
}

// ExistsOnDate reports whether the student already has a row dated date
func (r *AttendanceRepository) ExistsOnDate(ctx context.Context, studentID int64, date string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Attendance{}).
		Where("id = ? AND date = ?", studentID, date).
		Limit(1).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to check attendance for student ID %d on %s: %w", studentID, date, err)
	}
	return n > 0, nil
}
