package services

import (
	"context"
	"errors"
	"time"

	"github.com/camden-git/faceattend/database"
	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/repository"
	"github.com/camden-git/faceattend/utils"
	"gorm.io/gorm"
)

// AttendanceQuery filters attendance listings. Name matches accent- and
// case-insensitively on the name stored with each row.
type AttendanceQuery struct {
	Date      string
	StudentID *int64
	Name      string
	Limit     int
}

// AttendanceService lists, marks and summarizes attendance.
type AttendanceService struct {
	Store  *Store
	DB     *database.DB
	marker *recognition.Recorder
}

// NewAttendanceService wires manual marking through a daily recorder so a
// student is marked at most once per date. Notifiers see manual marks too.
func NewAttendanceService(store *Store, db *database.DB, notifiers ...recognition.AttendanceNotifier) *AttendanceService {
	opts := []recognition.RecorderOption{recognition.WithDedup(recognition.DedupDaily, 0)}
	for _, n := range notifiers {
		opts = append(opts, recognition.WithNotifier(n))
	}
	return &AttendanceService{Store: store, DB: db, marker: recognition.NewRecorder(store, opts...)}
}

func (s *AttendanceService) List(ctx context.Context, q AttendanceQuery) ([]models.Attendance, error) {
	filter := repository.AttendanceFilter{Date: q.Date, StudentID: q.StudentID}
	if q.Name == "" {
		filter.Limit = q.Limit
	}
	rows, err := s.Store.Attendance.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	if q.Name == "" {
		return rows, nil
	}

	out := rows[:0]
	for _, r := range rows {
		if utils.NameMatches(r.Name, q.Name) {
			out = append(out, r)
			if q.Limit > 0 && len(out) == q.Limit {
				break
			}
		}
	}
	return out, nil
}

// Mark records attendance for an enrolled student at now. A second mark on
// the same date returns ErrAlreadyMarked.
func (s *AttendanceService) Mark(ctx context.Context, id int64, now time.Time) (recognition.AttendanceEvent, error) {
	student, err := s.Store.Students.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return recognition.AttendanceEvent{}, ErrStudentNotFound
		}
		return recognition.AttendanceEvent{}, err
	}

	recorded, err := s.marker.RecordIfDue(ctx, student.ID, student.Name, now)
	if err != nil {
		return recognition.AttendanceEvent{}, err
	}
	if !recorded {
		return recognition.AttendanceEvent{}, ErrAlreadyMarked
	}
	return recognition.NewAttendanceEvent(student.ID, student.Name, now), nil
}

func (s *AttendanceService) Stats(ctx context.Context, today time.Time) (database.AttendanceStats, error) {
	return database.GetAttendanceStats(ctx, s.DB.SQL, s.DB.Builder, today)
}
