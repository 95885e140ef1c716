// Package report exports the attendance table.
package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/camden-git/faceattend/database"
)

// Header is the first line of every export.
var Header = []string{"id", "name", "date", "time"}

// WriteCSV writes the whole attendance table to w ordered by date, time and
// id. It returns the number of data rows written.
func WriteCSV(ctx context.Context, w io.Writer, db database.Querier, b sq.StatementBuilderType) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("failed to write report header: %w", err)
	}

	n := 0
	err := database.StreamAttendance(ctx, db, b, func(r database.AttendanceRow) error {
		n++
		return cw.Write([]string{strconv.FormatInt(r.ID, 10), r.Name, r.Date, r.Time})
	})
	if err != nil {
		return n, fmt.Errorf("failed to export attendance: %w", err)
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("failed to flush report: %w", err)
	}
	return n, nil
}

// ExportFile writes the report to path. The previous file is replaced only
// once the new one is complete.
func ExportFile(ctx context.Context, db *database.DB, path string) (int, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create report directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".attendance-*.csv")
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary report: %w", err)
	}
	tmpPath := tmp.Name()

	// CreateTemp uses 0600; reports are meant to be shared
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to set report permissions: %w", err)
	}

	n, err := WriteCSV(ctx, tmp, db.SQL, db.Builder)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close report: %w", closeErr)
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move report into place at '%s': %w", path, err)
	}

	log.Printf("report: exported %d attendance rows to %s", n, path)
	return n, nil
}
