package models

import "github.com/camden-git/faceattend/recognition"

// Attendance is one recorded presence. The table has no primary key of its
// own; the id column holds the student id and repeats freely.
type Attendance struct {
	StudentID int64  `gorm:"column:id;autoIncrement:false" json:"id"`
	Name      string `gorm:"column:name" json:"name"`
	Date      string `gorm:"column:date" json:"date"` // YYYY-MM-DD, local
	Time      string `gorm:"column:time" json:"time"` // HH:MM:SS, local
}

// TableName explicitly sets the table name for GORM.
func (Attendance) TableName() string {
	return "attendance"
}

func AttendanceFromEvent(ev recognition.AttendanceEvent) Attendance {
	return Attendance{StudentID: ev.IdentityID, Name: ev.Name, Date: ev.Date, Time: ev.Time}
}
