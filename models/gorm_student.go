package models

import "github.com/camden-git/faceattend/recognition"

// Student is an enrolled identity with its face signature.
// It corresponds to the 'students' table.
type Student struct {
	ID       int64  `gorm:"primaryKey;autoIncrement:false;column:id" json:"id"`
	Name     string `gorm:"column:name" json:"name"`
	Encoding []byte `gorm:"column:encoding" json:"-"` // little-endian float64 signature
}

// TableName explicitly sets the table name for GORM.
func (Student) TableName() string {
	return "students"
}

// GetSignature decodes the encoding BLOB.
func (s *Student) GetSignature() (recognition.Signature, error) {
	return recognition.DecodeSignature(s.Encoding)
}

// SetSignature encodes sig into the encoding BLOB.
func (s *Student) SetSignature(sig recognition.Signature) {
	if len(sig) == 0 {
		s.Encoding = nil
		return
	}
	s.Encoding = sig.Encode()
}

// Dimension is the number of float64 values in the stored signature.
func (s *Student) Dimension() int {
	return len(s.Encoding) / 8
}
