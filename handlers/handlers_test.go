package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/camden-git/faceattend/database"
	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/services"
	"github.com/camden-git/faceattend/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

type nopFrame struct{}

func (nopFrame) Close() error { return nil }

type testEnv struct {
	router  http.Handler
	store   *services.Store
	gallery *recognition.Gallery
	snaps   *utils.SnapshotStore
	dets    []recognition.Detection
}

var testNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.Local)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(database.DriverSQLite, database.SQLiteDSN(filepath.Join(dir, "attendance.db")), database.GormOptions{LogLevel: logger.Silent})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := services.NewStore(db.Gorm)
	g, err := recognition.LoadGallery(context.Background(), store)
	require.NoError(t, err)
	snaps, err := utils.NewSnapshotStore(filepath.Join(dir, "dataset"))
	require.NoError(t, err)

	env := &testEnv{store: store, gallery: g, snaps: snaps}
	enroll := &services.EnrollmentService{
		Gallery: g,
		Extractor: recognition.ExtractorFunc(func(ctx context.Context, frame recognition.Frame) ([]recognition.Detection, error) {
			return env.dets, nil
		}),
		Decode:    func([]byte) (recognition.Frame, error) { return nopFrame{}, nil },
		Store:     store,
		Snapshots: snaps,
	}
	env.router = NewRouter(RouterDeps{
		Students: &StudentHandler{
			Students: &services.StudentService{Store: store, Gallery: g, Snapshots: snaps},
			Enroll:   enroll,
		},
		Attendance: &AttendanceHandler{
			Attendance: services.NewAttendanceService(store, db),
			DB:         db,
			Clock:      func() time.Time { return testNow },
		},
		AllowedOrigins: []string{"http://localhost:5173"},
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	return e.do(t, method, path, bytes.NewBufferString(body), "application/json")
}

func (e *testEnv) seedStudent(t *testing.T, id int64, name string) {
	t.Helper()
	require.NoError(t, e.gallery.Upsert(context.Background(), recognition.Identity{ID: id, Name: name}, recognition.Signature{float64(id), 1}))
}

func enrollForm(t *testing.T, id, name string, withImage bool) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("id", id))
	require.NoError(t, mw.WriteField("name", name))
	if withImage {
		fw, err := mw.CreateFormFile("image", "face.png")
		require.NoError(t, err)
		require.NoError(t, png.Encode(fw, image.NewRGBA(image.Rect(0, 0, 80, 60))))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Errors, 1)
	return resp.Errors[0]
}

func TestCreateStudentEnrolls(t *testing.T) {
	env := newTestEnv(t)
	env.dets = []recognition.Detection{{Box: image.Rect(0, 0, 10, 10), Signature: recognition.Signature{0.1, 0.2}}}

	body, ct := enrollForm(t, "5", "Ann", true)
	rec := env.do(t, http.MethodPost, "/api/students", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res services.EnrollmentResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, int64(5), res.ID)
	assert.Equal(t, 2, res.Dimension)
	assert.Equal(t, "5_Ann.jpg", res.Snapshot)

	rec = env.do(t, http.MethodGet, "/api/students", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []services.StudentSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, "Ann", list[0].Name)
	assert.NotContains(t, rec.Body.String(), "encoding")
}

func TestCreateStudentErrors(t *testing.T) {
	env := newTestEnv(t)

	body, ct := enrollForm(t, "5", "Ann", true)
	rec := env.do(t, http.MethodPost, "/api/students", body, ct)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, CodeNoFaceDetected, decodeError(t, rec).Code)

	body, ct = enrollForm(t, "x", "Ann", true)
	rec = env.do(t, http.MethodPost, "/api/students", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = enrollForm(t, "5", "Ann", false)
	rec = env.do(t, http.MethodPost, "/api/students", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/api/students", `{"id":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateAndDeleteStudent(t *testing.T) {
	env := newTestEnv(t)
	env.seedStudent(t, 3, "Jon")

	rec := env.doJSON(t, http.MethodPut, "/api/students/3", `{"name":"John"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	e, ok := env.gallery.Lookup(3)
	require.True(t, ok)
	assert.Equal(t, "John", e.Name)

	rec = env.doJSON(t, http.MethodPut, "/api/students/99", `{"name":"X"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.doJSON(t, http.MethodPut, "/api/students/abc", `{"name":"X"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.doJSON(t, http.MethodPut, "/api/students/3", `{"name":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/students/3", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/students/3", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetStudentSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.dets = []recognition.Detection{{Box: image.Rect(0, 0, 10, 10), Signature: recognition.Signature{0.1, 0.2}}}
	body, ct := enrollForm(t, "5", "Ann", true)
	rec := env.do(t, http.MethodPost, "/api/students", body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	want, err := os.ReadFile(filepath.Join(env.snaps.BasePath(), "5_Ann.jpg"))
	require.NoError(t, err)

	rec = env.do(t, http.MethodGet, "/api/students/5/snapshot", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, strconv.Itoa(len(want)), rec.Header().Get("Content-Length"))
	assert.Equal(t, want, rec.Body.Bytes())

	env.seedStudent(t, 6, "Bo")
	rec = env.do(t, http.MethodGet, "/api/students/6/snapshot", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/students/99/snapshot", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/students/abc/snapshot", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkAttendance(t *testing.T) {
	env := newTestEnv(t)
	env.seedStudent(t, 1, "Ann")

	rec := env.doJSON(t, http.MethodPost, "/api/attendance", `{"id":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var row models.Attendance
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&row))
	assert.Equal(t, models.Attendance{StudentID: 1, Name: "Ann", Date: "2024-03-10", Time: "09:30:00"}, row)

	rec = env.doJSON(t, http.MethodPost, "/api/attendance", `{"id":1,"time":"15:00:00"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, CodeAlreadyMarked, decodeError(t, rec).Code)

	rec = env.doJSON(t, http.MethodPost, "/api/attendance", `{"id":1,"date":"2024-03-09","time":"08:00:00"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = env.doJSON(t, http.MethodPost, "/api/attendance", `{"id":2}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.doJSON(t, http.MethodPost, "/api/attendance", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.doJSON(t, http.MethodPost, "/api/attendance", `{"id":1,"date":"10/03/2024"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAttendanceFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i, name := range []string{"Ann", "Bob", "Ann"} {
		at := testNow.Add(time.Duration(i) * time.Minute)
		if i == 2 {
			at = at.AddDate(0, 0, -1)
		}
		require.NoError(t, env.store.AppendAttendance(ctx, recognition.NewAttendanceEvent(int64(len(name)+i), name, at)))
	}

	list := func(query string) []models.Attendance {
		rec := env.do(t, http.MethodGet, "/api/attendance"+query, nil, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var rows []models.Attendance
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&rows))
		return rows
	}

	assert.Len(t, list(""), 3)
	assert.Len(t, list("?date=2024-03-10"), 2)
	assert.Len(t, list("?name=ann"), 2)
	assert.Len(t, list("?limit=1"), 1)
	assert.Len(t, list("?student_id=4"), 1)
	assert.Empty(t, list("?date=2023-01-01"))

	rec := env.do(t, http.MethodGet, "/api/attendance?date=yesterday", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/attendance?student_id=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportAttendance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.store.AppendAttendance(ctx, recognition.NewAttendanceEvent(2, "Bob", testNow.Add(time.Minute))))
	require.NoError(t, env.store.AppendAttendance(ctx, recognition.NewAttendanceEvent(1, "Ann", testNow)))

	rec := env.do(t, http.MethodGet, "/api/attendance/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attendance_20240310.csv")
	assert.Equal(t, "id,name,date,time\n1,Ann,2024-03-10,09:30:00\n2,Bob,2024-03-10,09:31:00\n", rec.Body.String())
}

func TestGetStats(t *testing.T) {
	env := newTestEnv(t)
	env.seedStudent(t, 1, "Ann")
	env.seedStudent(t, 2, "Bob")
	require.NoError(t, env.store.AppendAttendance(context.Background(), recognition.NewAttendanceEvent(1, "Ann", testNow)))

	rec := env.do(t, http.MethodGet, "/api/stats", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats database.AttendanceStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, database.AttendanceStats{TotalStudents: 2, TodayAttendance: 1, ThisWeekAttendance: 1}, stats)
}
