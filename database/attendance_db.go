package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/camden-git/faceattend/recognition"
)

// AttendanceRow is one row of the attendance table in export column order.
type AttendanceRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// StreamAttendance calls fn for every attendance row ordered by date, time
// and id. It stops at the first error returned by fn.
func StreamAttendance(ctx context.Context, db Querier, b sq.StatementBuilderType, fn func(AttendanceRow) error) error {
	queryBuilder := b.Select("id", "name", "date", "time").
		From("attendance").
		OrderBy("date ASC", "time ASC", "id ASC")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL for StreamAttendance: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("failed to execute StreamAttendance query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r AttendanceRow
		var name, date, tm sql.NullString
		if err := rows.Scan(&r.ID, &name, &date, &tm); err != nil {
			return fmt.Errorf("failed to scan attendance row: %w", err)
		}
		r.Name, r.Date, r.Time = name.String, date.String, tm.String
		if err := fn(r); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating attendance rows: %w", err)
	}
	return nil
}

// AttendanceStats summarizes enrollment and attendance counts.
type AttendanceStats struct {
	TotalStudents      int64 `json:"total_students"`
	TodayAttendance    int64 `json:"today_attendance"`
	ThisWeekAttendance int64 `json:"this_week_attendance"`
}

func countQuery(ctx context.Context, db Querier, qb sq.SelectBuilder, what string) (int64, error) {
	sqlStr, args, err := qb.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for %s count: %w", what, err)
	}
	var n int64
	if err := db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", what, err)
	}
	return n, nil
}

// GetAttendanceStats counts students, attendance rows dated today and rows
// dated within the seven days before today.
func GetAttendanceStats(ctx context.Context, db Querier, b sq.StatementBuilderType, today time.Time) (AttendanceStats, error) {
	var stats AttendanceStats
	var err error

	stats.TotalStudents, err = countQuery(ctx, db, b.Select("COUNT(*)").From("students"), "students")
	if err != nil {
		return AttendanceStats{}, err
	}

	todayStr := today.Format(recognition.DateLayout)
	stats.TodayAttendance, err = countQuery(ctx, db,
		b.Select("COUNT(*)").From("attendance").Where(sq.Eq{"date": todayStr}), "today's attendance")
	if err != nil {
		return AttendanceStats{}, err
	}

	weekStart := today.AddDate(0, 0, -7).Format(recognition.DateLayout)
	stats.ThisWeekAttendance, err = countQuery(ctx, db,
		b.Select("COUNT(*)").From("attendance").Where(sq.GtOrEq{"date": weekStart}), "this week's attendance")
	if err != nil {
		return AttendanceStats{}, err
	}
	return stats, nil
}
