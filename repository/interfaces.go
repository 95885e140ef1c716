package repository

import (
	"context"

	"github.com/camden-git/faceattend/models"
)

// StudentRepositoryInterface defines the methods for student data operations
type StudentRepositoryInterface interface {
	Upsert(ctx context.Context, student *models.Student) error
	GetByID(ctx context.Context, id int64) (*models.Student, error)
	ListAll(ctx context.Context) ([]models.Student, error)
	Rename(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int64, error)
}

// AttendanceRepositoryInterface defines the methods for attendance data operations
type AttendanceRepositoryInterface interface {
	Create(ctx context.Context, row *models.Attendance) error
	List(ctx context.Context, filter AttendanceFilter) ([]models.Attendance, error)
	ExistsOnDate(ctx context.Context, studentID int64, date string) (bool, error)
}

// EnrollmentRepositoryInterface defines the methods for enrollment audit records
type EnrollmentRepositoryInterface interface {
	Create(ctx context.Context, enrollment *models.Enrollment) error
	ListByStudentID(ctx context.Context, studentID int64) ([]models.Enrollment, error)
	LatestByStudent(ctx context.Context) (map[int64]models.Enrollment, error)
	DeleteByStudentID(ctx context.Context, studentID int64) error
}
