package models

// Enrollment is an audit record of one successful enrollment.
// It corresponds to the 'enrollments' table.
type Enrollment struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID int64  `gorm:"not null;index" json:"student_id"`
	ImagePath string `gorm:"not null" json:"image_path"`            // dataset snapshot, relative to DATASET_PATH
	Source    string `gorm:"not null;default:'file'" json:"source"` // camera, file, upload or bulk
	TakenAt   *int64 `json:"taken_at,omitempty"`                    // EXIF capture time, Unix seconds
	CreatedAt int64  `gorm:"not null" json:"created_at"`            // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Enrollment) TableName() string {
	return "enrollments"
}
