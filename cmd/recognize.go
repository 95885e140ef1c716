package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/report"
	"github.com/spf13/cobra"
)

var recognizeCmd = &cobra.Command{
	Use:   "recognize",
	Short: "Recognize enrolled faces on the camera and record attendance",
	Long: `Open the camera, match every detected face against the enrolled students and
record attendance for every match. Each face is shown with a green box and the
student's name, or "Unknown". Press q in the window or Ctrl+C to stop.`,
	Args: cobra.NoArgs,
	RunE: runRecognize,
}

func init() {
	rootCmd.AddCommand(recognizeCmd)

	recognizeCmd.Flags().Bool("headless", false, "Log matches instead of opening a window")
	recognizeCmd.Flags().String("mode", "", "Pipeline mode: sync or latest (defaults to PIPELINE_MODE)")
	recognizeCmd.Flags().String("dedup", "", "Attendance dedup: none, daily or cooldown (defaults to ATTENDANCE_DEDUP)")
	recognizeCmd.Flags().Float64("tolerance", -1, "Match tolerance (defaults to MATCH_TOLERANCE)")
	recognizeCmd.Flags().Bool("export-on-exit", false, "Write the CSV report when recognition stops")
	recognizeCmd.Flags().Int("camera", -1, "Camera device (defaults to CAMERA_DEVICE)")
}

// recognitionOptions are the per-run settings that flags may override.
type recognitionOptions struct {
	device    int
	mode      recognition.PipelineMode
	dedup     recognition.DedupPolicy
	tolerance float64
	renderer  recognition.Renderer
	notifiers []recognition.AttendanceNotifier
}

func (a *app) recognitionDefaults() recognitionOptions {
	return recognitionOptions{
		device:    a.cfg.CameraDevice,
		mode:      a.cfg.PipelineMode,
		dedup:     a.cfg.AttendanceDedup,
		tolerance: a.cfg.MatchTolerance,
	}
}

// newPipeline loads an extractor and assembles a pipeline. release frees the extractor.
func (a *app) newPipeline(gallery *recognition.Gallery, opts recognitionOptions) (*recognition.Pipeline, func(), error) {
	if opts.dedup == recognition.DedupCooldown && a.cfg.AttendanceCooldown <= 0 {
		return nil, nil, errors.New("cooldown dedup needs a positive ATTENDANCE_COOLDOWN_SECONDS")
	}

	log.Printf("recognize: loading %s extractor", a.cfg.ExtractorBackend)
	extractor, err := media.NewExtractor(a.cfg)
	if err != nil {
		return nil, nil, err
	}

	recorderOpts := []recognition.RecorderOption{recognition.WithDedup(opts.dedup, a.cfg.AttendanceCooldown)}
	for _, n := range opts.notifiers {
		recorderOpts = append(recorderOpts, recognition.WithNotifier(n))
	}

	p := &recognition.Pipeline{
		Open:      media.CameraOpener(opts.device),
		Extractor: recognition.NewTimeoutExtractor(extractor, a.cfg.ExtractTimeout),
		Gallery:   gallery,
		Matcher:   recognition.Matcher{Tolerance: opts.tolerance, Policy: a.cfg.MatchPolicy},
		Recorder:  recognition.NewRecorder(a.store, recorderOpts...),
		Renderer:  opts.renderer,
		Mode:      opts.mode,
	}
	if p.Renderer == nil {
		p.Renderer = &media.LogRenderer{}
	}
	return p, func() { extractor.Close() }, nil
}

func runRecognize(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	opts := a.recognitionDefaults()
	if s := mustGetString(cmd, "mode"); s != "" {
		if opts.mode, err = recognition.ParsePipelineMode(s); err != nil {
			return err
		}
	}
	if s := mustGetString(cmd, "dedup"); s != "" {
		if opts.dedup, err = recognition.ParseDedupPolicy(s); err != nil {
			return err
		}
	}
	if t := mustGetFloat64(cmd, "tolerance"); t >= 0 {
		opts.tolerance = t
	}
	if d := mustGetInt(cmd, "camera"); d >= 0 {
		opts.device = d
	}
	if !mustGetBool(cmd, "headless") {
		window := media.NewWindowRenderer("Attendance")
		defer window.Close()
		opts.renderer = window
	}

	gallery, err := a.loadGallery(ctx)
	if err != nil {
		return err
	}
	if gallery.Len() == 0 {
		fmt.Println("Warning: no students enrolled, every face will be Unknown.")
	}

	pipeline, release, err := a.newPipeline(gallery, opts)
	if err != nil {
		return err
	}
	defer release()

	fmt.Printf("Recognizing %d enrolled student(s) on camera %d (tolerance %.2f, %s mode, dedup %s)\n",
		gallery.Len(), opts.device, opts.tolerance, opts.mode, opts.dedup)

	sum, runErr := pipeline.Run(ctx)
	fmt.Printf("\nFrames: %d (dropped %d, skipped %d)\n", sum.Frames, sum.Dropped, sum.Skipped)
	fmt.Printf("Faces: %d, matched: %d, attendance recorded: %d\n", sum.Faces, sum.Matched, sum.Recorded)

	if mustGetBool(cmd, "export-on-exit") {
		// ctx is already cancelled after Ctrl+C
		n, err := report.ExportFile(context.Background(), a.db, a.cfg.ReportPath)
		if err != nil {
			fmt.Printf("Warning: export failed: %v\n", err)
		} else {
			fmt.Printf("Exported %d attendance rows to %s\n", n, a.cfg.ReportPath)
		}
	}
	return runErr
}
