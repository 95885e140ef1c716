package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/camden-git/faceattend/realtime"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/services"
	"github.com/go-chi/chi/v5"
)

const maxUploadSize = 16 << 20

type StudentHandler struct {
	Students *services.StudentService
	Enroll   *services.EnrollmentService
	Hub      *realtime.Hub // optional
}

func parseStudentID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "student_id"), 10, 64)
}

func (sh *StudentHandler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := sh.Students.List(r.Context())
	if err != nil {
		log.Printf("Error listing students: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternalError, "Failed to retrieve students")
		return
	}
	if students == nil {
		students = []services.StudentSummary{}
	}
	writeJSON(w, http.StatusOK, students)
}

// CreateStudent enrolls from a multipart form with id, name and image fields.
func (sh *StudentHandler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteAPIError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Image exceeds the upload limit")
			return
		}
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Expected multipart form with id, name and image")
		return
	}

	id, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("id")), 10, 64)
	if err != nil || id < 0 {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Missing or invalid field: id")
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Missing required field: name")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Missing required file: image")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Failed to read image")
		return
	}

	res, err := sh.Enroll.Enroll(r.Context(), services.EnrollmentRequest{ID: id, Name: name, Image: data, Source: services.SourceUpload})
	if err != nil {
		writeServiceError(w, err, "enroll student")
		return
	}
	if sh.Hub != nil {
		sh.Hub.EnrollmentCompleted(res.Identity)
	}
	writeJSON(w, http.StatusCreated, res)
}

func (sh *StudentHandler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id, err := parseStudentID(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid student ID format")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := sh.Students.Rename(r.Context(), id, req.Name); err != nil {
		writeServiceError(w, err, "rename student")
		return
	}
	writeJSON(w, http.StatusOK, recognition.Identity{ID: id, Name: strings.TrimSpace(req.Name)})
}

func (sh *StudentHandler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id, err := parseStudentID(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid student ID format")
		return
	}
	if err := sh.Students.Remove(r.Context(), id); err != nil {
		writeServiceError(w, err, "remove student")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSnapshot streams the image saved by the student's latest enrollment.
func (sh *StudentHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := parseStudentID(r)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "Invalid student ID format")
		return
	}
	rc, info, err := sh.Students.Snapshot(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "load snapshot")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("Error streaming snapshot for student %d: %v", id, err)
	}
}

// writeServiceError maps service and recognition errors to API errors.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, services.ErrStudentNotFound):
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Student not found")
	case errors.Is(err, services.ErrNoSnapshot):
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "No enrollment snapshot for this student")
	case errors.Is(err, services.ErrAlreadyMarked):
		WriteAPIError(w, http.StatusConflict, CodeAlreadyMarked, err.Error())
	case errors.Is(err, recognition.ErrNoFaceDetected):
		WriteAPIError(w, http.StatusUnprocessableEntity, CodeNoFaceDetected, "No face detected in image")
	case recognition.IsStorageError(err):
		log.Printf("Error: failed to %s: %v", action, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeStorageError, "Storage error")
	default:
		log.Printf("Error: failed to %s: %v", action, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternalError, "Failed to "+action)
	}
}
