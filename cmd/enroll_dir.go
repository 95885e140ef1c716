package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/utils"
	"github.com/camden-git/faceattend/workers"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollDirCmd = &cobra.Command{
	Use:   "enroll-dir <directory>",
	Short: "Enroll every {id}_{name}.jpg photo in a directory",
	Long: `Enroll students in bulk from a directory of photos named {id}_{name}.jpg.
Underscores in the name become spaces. Files that do not follow the pattern are
listed and skipped. When several files share an id the last one in natural
order wins.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnrollDir,
}

func init() {
	rootCmd.AddCommand(enrollDirCmd)

	enrollDirCmd.Flags().Int("workers", 0, "Number of enrollment workers (defaults to ENROLL_WORKERS)")
}

func runEnrollDir(cmd *cobra.Command, args []string) error {
	dir := args[0]

	images, skipped, err := utils.ListEnrollmentImages(dir)
	if err != nil {
		return err
	}
	images, duplicates := lastImagePerID(images)
	skipped = append(skipped, duplicates...)

	for _, s := range skipped {
		fmt.Printf("Skipping %s\n", s)
	}
	if len(images) == 0 {
		fmt.Println("No enrollment photos found.")
		return nil
	}

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

	numWorkers := mustGetInt(cmd, "workers")
	if numWorkers <= 0 {
		numWorkers = a.cfg.EnrollWorkers
	}

	fmt.Printf("Photos to enroll: %d (skipping %d)\n\n", len(images), len(skipped))

	bar := progressbar.NewOptions(len(images),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var (
		mu       sync.Mutex
		failures []workers.EnrollOutcome
		noFace   int
	)
	onDone := func(out workers.EnrollOutcome) {
		mu.Lock()
		if out.Err != nil {
			failures = append(failures, out)
			if errors.Is(out.Err, recognition.ErrNoFaceDetected) {
				noFace++
			}
		}
		mu.Unlock()
		_ = bar.Add(1)
	}

	newExtractor := func(worker int) (recognition.Extractor, func(), error) {
		ext, err := media.NewExtractor(a.cfg)
		if err != nil {
			return nil, nil, err
		}
		return ext, func() { ext.Close() }, nil
	}

	pool := workers.NewEnrollmentPool(*a.enrollment(gallery, nil), newExtractor, a.cfg.EnrollQueueSize, numWorkers, onDone)
	for _, img := range images {
		if err := pool.Submit(ctx, workers.EnrollJob{Path: img.Path, ID: img.ID, Name: img.Name}); err != nil {
			pool.Stop()
			return fmt.Errorf("enrollment interrupted: %w", err)
		}
	}
	pool.Close()
	_ = bar.Finish()

	fmt.Printf("\n\nEnrolled: %d\n", len(images)-len(failures))
	if len(failures) > 0 {
		fmt.Printf("Failed: %d (%d without a detectable face)\n", len(failures), noFace)
		for _, f := range failures {
			fmt.Printf("  - %s: %v\n", f.Job.Path, f.Err)
		}
	}
	total, err := a.students(gallery).Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Students enrolled in total: %d\n", total)
	return nil
}

// lastImagePerID keeps the last image for every id, preserving order.
func lastImagePerID(images []utils.EnrollmentImage) (kept []utils.EnrollmentImage, dropped []string) {
	last := make(map[int64]int, len(images))
	for i, img := range images {
		last[img.ID] = i
	}
	for i, img := range images {
		if last[img.ID] == i {
			kept = append(kept, img)
		} else {
			dropped = append(dropped, img.Path)
		}
	}
	return kept, dropped
}
