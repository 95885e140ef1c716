package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/camden-git/faceattend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StudentRepository handles database operations for Student entities
type StudentRepository struct {
	DB *gorm.DB
}

// Ensure StudentRepository implements StudentRepositoryInterface
var _ StudentRepositoryInterface = (*StudentRepository)(nil)

// NewStudentRepository creates a new instance of StudentRepository
func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{DB: db}
}

// Upsert inserts the student or replaces the name and encoding of an existing id.
func (r *StudentRepository) Upsert(ctx context.Context, student *models.Student) error {
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "encoding"}),
	}).Create(student).Error
	if err != nil {
		return fmt.Errorf("failed to upsert student ID %d: %w", student.ID, err)
	}
	return nil
}

// GetByID retrieves a student by id
func (r *StudentRepository) GetByID(ctx context.Context, id int64) (*models.Student, error) {
	var student models.Student
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get student by ID %d: %w", id, err)
	}
	return &student, nil
}

// ListAll retrieves every student ordered by id
func (r *StudentRepository) ListAll(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.DB.WithContext(ctx).Order("id ASC").Find(&students).Error; err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	return students, nil
}

// Rename corrects a student's name without touching the signature
func (r *StudentRepository) Rename(ctx context.Context, id int64, name string) error {
	result := r.DB.WithContext(ctx).Model(&models.Student{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("failed to rename student ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a student by id. Attendance history is kept.
func (r *StudentRepository) Delete(ctx context.Context, id int64) error {
	result := r.DB.WithContext(ctx).Where("id = ?", id).Delete(&models.Student{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete student ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *StudentRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Student{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count students: %w", err)
	}
	return n, nil
}
