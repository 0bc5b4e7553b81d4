package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sdgteacher/sdgchat/internal/capture"
)

func newCamera(imagePath, mediaPath string) *capture.Camera {
	return capture.NewCamera(&capture.FileDevice{ImagePath: imagePath, MediaPath: mediaPath}, capture.CameraConfig{
		ImageQuality: cfg.Capture.ImageQuality,
		RecordLimit:  cfg.Capture.RecordLimit,
		Previews:     &capture.FilePreviews{},
	})
}

// capturePhoto opens the camera, grabs a still and hands it over.
func capturePhoto(ctx context.Context, cam *capture.Camera) (capture.Media, error) {
	if err := cam.Open(ctx, false); err != nil {
		return capture.Media{}, err
	}
	if _, err := cam.CaptureStill(ctx); err != nil {
		cam.Cancel()
		return capture.Media{}, err
	}
	printStep("Preview written to %s", cam.Preview())
	m, _ := cam.Take()
	return m, nil
}

// captureVideo records for length, or until the record limit stops it, and
// hands the clip over with videoContext attached.
func captureVideo(ctx context.Context, cam *capture.Camera, length time.Duration, videoContext string) (capture.Media, error) {
	if err := cam.Open(ctx, true); err != nil {
		return capture.Media{}, err
	}

	autoStopped := make(chan struct{}, 1)
	cam.OnAutoStop = func() {
		select {
		case autoStopped <- struct{}{}:
		default:
		}
	}
	if err := cam.StartRecording(); err != nil {
		cam.Cancel()
		return capture.Media{}, err
	}

	var stop <-chan time.Time
	if length > 0 {
		t := time.NewTimer(length)
		defer t.Stop()
		stop = t.C
	}

	select {
	case <-ctx.Done():
		cam.Cancel()
		return capture.Media{}, ctx.Err()
	case <-autoStopped:
		printWarning("Recording limit of %s reached", cfg.Capture.RecordLimit)
	case <-stop:
		// The countdown may have won the race.
		if err := cam.StopRecording(); err != nil && !errors.Is(err, capture.ErrInvalidState) {
			cam.Cancel()
			return capture.Media{}, err
		}
	}

	if _, err := cam.SendRecording(videoContext); err != nil {
		cam.Cancel()
		return capture.Media{}, err
	}
	m, _ := cam.Take()
	return m, nil
}

// uploadMedia stages an image or video file as if chosen in a file picker.
func uploadMedia(cam *capture.Camera, path string) (capture.Media, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return capture.Media{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if _, err := cam.Upload(data, capture.MIMEForPath(path)); err != nil {
		return capture.Media{}, err
	}
	m, _ := cam.Take()
	return m, nil
}

// transcribeFile records path through the microphone state machine and
// transcribes it.
func transcribeFile(ctx context.Context, t capture.Transcriber, path string) (capture.Transcription, error) {
	mic := capture.NewMicrophone(&capture.FileDevice{MediaPath: path}, t)
	if err := mic.Start(ctx); err != nil {
		return capture.Transcription{}, err
	}
	return mic.Stop(ctx)
}

// --- capture ---

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture a photo or video and send it to the assistant",
}

var capturePhotoCmd = &cobra.Command{
	Use:   "photo <image-file>",
	Short: "Send a still frame from an image file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		media, err := capturePhoto(ctx, newCamera(args[0], ""))
		if err != nil {
			return err
		}
		return sendAndPrint(ctx, a, message, &media)
	},
}

var captureVideoCmd = &cobra.Command{
	Use:   "video <media-file>",
	Short: "Send a recording read from a media file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		videoContext, _ := cmd.Flags().GetString("context")
		length, _ := cmd.Flags().GetDuration("length")
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		printStep("Recording %s", args[0])
		media, err := captureVideo(ctx, newCamera("", args[0]), length, videoContext)
		if err != nil {
			return err
		}
		return sendAndPrint(ctx, a, message, &media)
	},
}

var captureUploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Send an existing image or video file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message, _ := cmd.Flags().GetString("message")
		ctx := cmd.Context()

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		media, err := uploadMedia(newCamera("", ""), args[0])
		if err != nil {
			return err
		}
		return sendAndPrint(ctx, a, message, &media)
	},
}

func init() {
	for _, c := range []*cobra.Command{capturePhotoCmd, captureVideoCmd, captureUploadCmd} {
		c.Flags().StringP("message", "m", "", "text to send with the media")
	}
	captureVideoCmd.Flags().String("context", "", "what the recording shows")
	captureVideoCmd.Flags().Duration("length", time.Second, "how long to record (capped by capture.record_limit)")

	captureCmd.AddCommand(capturePhotoCmd, captureVideoCmd, captureUploadCmd)
}
