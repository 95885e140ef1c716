package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/services"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Enroll one student from a photo or a camera capture",
	Long: `Enroll a student under the given id and name.

With --image the photo is read from disk. Without it the camera feed is shown;
press SPACE to capture, ESC or q to abort. The largest face in the image is
enrolled. Enrolling an existing id replaces its name and signature.`,
	Args: cobra.NoArgs,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Int64("id", -1, "Student id (required)")
	enrollCmd.Flags().String("name", "", "Student name (required)")
	enrollCmd.Flags().String("image", "", "Photo to enroll from instead of the camera")
	enrollCmd.Flags().Int("camera", -1, "Camera device (defaults to CAMERA_DEVICE)")
	_ = enrollCmd.MarkFlagRequired("id")
	_ = enrollCmd.MarkFlagRequired("name")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	id := mustGetInt64(cmd, "id")
	name := mustGetString(cmd, "name")
	imagePath := mustGetString(cmd, "image")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	device := mustGetInt(cmd, "camera")
	if device < 0 {
		device = a.cfg.CameraDevice
	}

	image, source, err := enrollmentImage(ctx, imagePath, device)
	if err != nil {
		return err
	}

	gallery, err := a.loadGallery(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Loading %s extractor...\n", a.cfg.ExtractorBackend)
	extractor, err := media.NewExtractor(a.cfg)
	if err != nil {
		return err
	}
	defer extractor.Close()

	res, err := a.enrollment(gallery, extractor).Enroll(ctx, services.EnrollmentRequest{
		ID: id, Name: name, Image: image, Source: source,
	})
	if errors.Is(err, recognition.ErrNoFaceDetected) {
		return fmt.Errorf("no face detected, nothing was stored: %w", err)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Enrolled %s (id %d): %d-d signature", res.Name, res.ID, res.Dimension)
	if res.Faces > 1 {
		fmt.Printf(", largest of %d faces", res.Faces)
	}
	fmt.Println()
	if res.Snapshot != "" {
		fmt.Printf("Snapshot: %s\n", res.Snapshot)
	}
	return nil
}

// enrollmentImage reads the image from path, or captures a still from the camera when path is empty.
func enrollmentImage(ctx context.Context, path string, device int) ([]byte, string, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read image: %w", err)
		}
		return data, services.SourceFile, nil
	}

	fmt.Println("Press SPACE to capture, ESC or q to abort.")
	frame, err := media.CaptureStill(ctx, device, "Enroll")
	if err != nil {
		return nil, "", err
	}
	defer frame.Close()

	data, err := media.EncodeJPEG(frame)
	if err != nil {
		return nil, "", err
	}
	return data, services.SourceCamera, nil
}
