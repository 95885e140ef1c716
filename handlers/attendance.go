package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/faceattend/database"
	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/report"
	"github.com/camden-git/faceattend/services"
)

type AttendanceHandler struct {
	Attendance *services.AttendanceService
	DB         *database.DB
	Clock      func() time.Time
}

func (ah *AttendanceHandler) now() time.Time {
	if ah.Clock != nil {
		return ah.Clock()
	}
	return time.Now()
}

func validDate(s string) bool {
	_, err := time.Parse(recognition.DateLayout, s)
	return err == nil
}

// ListAttendance supports date, student_id, name and limit query parameters.
func (ah *AttendanceHandler) ListAttendance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := services.AttendanceQuery{Date: q.Get("date"), Name: q.Get("name")}

	if query.Date != "" && !validDate(query.Date) {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "date must be formatted YYYY-MM-DD")
		return
	}
	if s := q.Get("student_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid student_id value")
			return
		}
		query.StudentID = &id
	}
	if s := q.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid limit value")
			return
		}
		query.Limit = limit
	}

	rows, err := ah.Attendance.List(r.Context(), query)
	if err != nil {
		log.Printf("Error listing attendance: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve attendance")
		return
	}
	if rows == nil {
		rows = []models.Attendance{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// MarkAttendance records a manual mark. Date and time default to now.
func (ah *AttendanceHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   *int64 `json:"id"`
		Date string `json:"date"`
		Time string `json:"time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ID == nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Missing required field: id")
		return
	}

	at, err := ah.markTime(req.Date, req.Time)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}

	ev, err := ah.Attendance.Mark(r.Context(), *req.ID, at)
	if err != nil {
		writeServiceError(w, err, "mark attendance")
		return
	}
	writeJSON(w, http.StatusCreated, models.AttendanceFromEvent(ev))
}

func (ah *AttendanceHandler) markTime(date, clock string) (time.Time, error) {
	now := ah.now()
	if date == "" {
		date = now.Format(recognition.DateLayout)
	}
	if clock == "" {
		clock = now.Format(recognition.TimeLayout)
	}
	at, err := time.ParseInLocation(recognition.DateLayout+" "+recognition.TimeLayout, date+" "+clock, now.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("date and time must be formatted YYYY-MM-DD and HH:MM:SS")
	}
	return at, nil
}

// ExportAttendance streams the whole table as CSV.
func (ah *AttendanceHandler) ExportAttendance(w http.ResponseWriter, r *http.Request) {
	filename := fmt.Sprintf("attendance_%s.csv", strings.ReplaceAll(ah.now().Format(recognition.DateLayout), "-", ""))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	n, err := report.WriteCSV(r.Context(), w, ah.DB.SQL, ah.DB.Builder)
	if err != nil {
		// headers are already sent
		log.Printf("Error exporting attendance after %d rows: %v", n, err)
		return
	}
	log.Printf("Exported %d attendance rows over HTTP", n)
}

func (ah *AttendanceHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := ah.Attendance.Stats(r.Context(), ah.now())
	if err != nil {
		log.Printf("Error computing attendance stats: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternalError, "Failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
