package handlers

import (
	"net/http"
	"time"

	"github.com/camden-git/faceattend/realtime"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

type RouterDeps struct {
	Students       *StudentHandler
	Attendance     *AttendanceHandler
	Hub            *realtime.Hub // optional; enables /ws
	AllowedOrigins []string
}

func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   deps.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsHandler.Handler)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		r.Route("/students", func(r chi.Router) {
			r.Get("/", deps.Students.ListStudents)
			r.Post("/", deps.Students.CreateStudent)
			r.Route("/{student_id}", func(r chi.Router) {
				r.Put("/", deps.Students.UpdateStudent)
				r.Delete("/", deps.Students.DeleteStudent)
				r.Get("/snapshot", deps.Students.GetSnapshot)
			})
		})

		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", deps.Attendance.ListAttendance)
			r.Post("/", deps.Attendance.MarkAttendance)
			r.Get("/export", deps.Attendance.ExportAttendance)
		})

		r.Get("/stats", deps.Attendance.GetStats)
	})

	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.ServeWS)
	}
	return r
}
