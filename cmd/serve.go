package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/camden-git/faceattend/handlers"
	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/realtime"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/report"
	"github.com/camden-git/faceattend/services"
	"github.com/camden-git/faceattend/workers"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API",
	Long: `Start the HTTP API for enrolling students, listing and marking attendance and
downloading the CSV report. Live attendance events are pushed to websocket
clients on /ws. With --camera recognition runs in the background while the
server is up. EXPORT_CRON schedules a recurring CSV export to REPORT_PATH.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (defaults to LISTEN_ADDR)")
	serveCmd.Flags().Bool("camera", false, "Run camera recognition in the background")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	gallery, err := a.loadGallery(ctx)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d enrolled student(s)", gallery.Len())

	extractor, err := media.NewExtractor(a.cfg)
	if err != nil {
		return err
	}
	defer extractor.Close()

	hub := realtime.NewHub(a.cfg.CORSAllowedOrigins...)
	go hub.Run(ctx)

	router := handlers.NewRouter(handlers.RouterDeps{
		Students: &handlers.StudentHandler{
			Students: a.students(gallery),
			Enroll:   a.enrollment(gallery, extractor),
			Hub:      hub,
		},
		Attendance: &handlers.AttendanceHandler{
			Attendance: services.NewAttendanceService(a.store, a.db, hub),
			DB:         a.db,
		},
		Hub:            hub,
		AllowedOrigins: a.cfg.CORSAllowedOrigins,
	})

	if a.cfg.ExportCron != "" {
		scheduler, err := workers.NewReportScheduler(a.cfg.ExportCron, func(ctx context.Context) (int, error) {
			return report.ExportFile(ctx, a.db, a.cfg.ReportPath)
		})
		if err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	var wg sync.WaitGroup
	if mustGetBool(cmd, "camera") {
		opts := a.recognitionDefaults()
		opts.notifiers = []recognition.AttendanceNotifier{hub}
		pipeline, release, err := a.newPipeline(gallery, opts)
		if err != nil {
			return err
		}
		defer release()

		wg.Add(1)
		go func() {
			defer wg.Done()
			sum, err := pipeline.Run(ctx)
			if err != nil {
				log.Printf("recognize: ERROR background recognition stopped: %v", err)
			}
			log.Printf("recognize: %d frames, %d recorded", sum.Frames, sum.Recorded)
		}()
	}

	addr := mustGetString(cmd, "addr")
	if addr == "" {
		addr = a.cfg.ListenAddr
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		fmt.Printf("Server starting on http://%s\n", addr)
		log.Printf("Server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		stop()
		wg.Wait()
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Warning: server shutdown: %v", err)
	}
	wg.Wait()
	return nil
}
