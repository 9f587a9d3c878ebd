package cmd

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/broadcast"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/countdown"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Register a new person with a face photo",
	Long: `Capture a face photo with the webcam and register the person with the
attendance backend. The photo is taken automatically after the face has
been held in front of the camera for the countdown.

Examples:
  # Capture from the webcam
  attendance-kiosk enroll --name "Jana Nováková" --email jana@example.com

  # Use an existing photo instead of the webcam
  attendance-kiosk enroll --name "Jana Nováková" --email jana@example.com --image jana.jpg

  # Keep a copy of the captured photo
  attendance-kiosk enroll --name "Jana Nováková" --email jana@example.com --save jana.jpg`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("name", "", "Full name (required)")
	enrollCmd.Flags().String("email", "", "Email address (required)")
	enrollCmd.Flags().String("phone", "", "Phone number")
	enrollCmd.Flags().String("department", "", "Department")
	enrollCmd.Flags().String("position", "", "Position")
	enrollCmd.Flags().String("status", kiosk.StatusActive, "Status (active or inactive)")
	enrollCmd.Flags().String("notes", "", "Notes")
	enrollCmd.Flags().String("image", "", "Register this image file instead of capturing one")
	enrollCmd.Flags().String("save", "", "Write the registered photo to this file")
	enrollCmd.Flags().Duration("timeout", 2*time.Minute, "Give up if no photo was taken within this time")
}

func enrollForm(cmd *cobra.Command) kiosk.PersonForm {
	return kiosk.PersonForm{
		Name:       mustGetString(cmd, "name"),
		Email:      mustGetString(cmd, "email"),
		Phone:      mustGetString(cmd, "phone"),
		Department: mustGetString(cmd, "department"),
		Position:   mustGetString(cmd, "position"),
		Status:     mustGetString(cmd, "status"),
		Notes:      mustGetString(cmd, "notes"),
	}
}

func runEnroll(cmd *cobra.Command, args []string) error {
	form := enrollForm(cmd)
	// Fail before touching the camera
	if _, err := form.Validate(); err != nil {
		return err
	}

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, _, err := newKiosk(ctx, cfg)
	if err != nil {
		return err
	}
	defer k.Close()

	if path := mustGetString(cmd, "image"); path != "" {
		if err := useImageFile(k, path); err != nil {
			return err
		}
	} else {
		waitCtx, cancel := context.WithTimeout(ctx, mustGetDuration(cmd, "timeout"))
		err := captureStill(waitCtx, k, cfg)
		cancel()
		if err != nil {
			return err
		}
	}

	if path := mustGetString(cmd, "save"); path != "" {
		frame, _ := k.Enrollment.Image()
		if err := os.WriteFile(path, frame.Data, 0o644); err != nil {
			return fmt.Errorf("saving photo: %w", err)
		}
		fmt.Printf("Photo saved to %s\n", path)
	}

	fmt.Println("Registering...")
	resp, err := k.Enrollment.Register(ctx, form)
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s (ID %d)\n", resp.Name, resp.ID)
	if resp.Message != "" {
		fmt.Printf("  %s\n", resp.Message)
	}
	return nil
}

func useImageFile(k *kiosk.Kiosk, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	if err := k.Enrollment.UseImage(data, mime.TypeByExtension(filepath.Ext(path))); err != nil {
		return err
	}
	fmt.Printf("Using photo %s\n", path)
	return nil
}

// captureStill runs the enrollment countdown, rendering it as a progress
// bar, until a still has been taken.
func captureStill(ctx context.Context, k *kiosk.Kiosk, cfg *config.Config) error {
	sub := k.Events.Subscribe(broadcast.TopicCountdown)
	defer sub.Close()

	if _, err := k.Enrollment.Start(); err != nil {
		return describeCameraError(err)
	}
	fmt.Println("Look at the camera and hold still...")

	start := cfg.Enrollment.CountdownStart
	bar := progressbar.NewOptions(start,
		progressbar.OptionSetDescription("Hold still"),
		progressbar.OptionShowCount(),
		progressbar.OptionFullWidth(),
	)

	for {
		e, err := sub.Next(ctx)
		if err != nil {
			k.Enrollment.Stop()
			fmt.Println()
			if errors.Is(err, context.DeadlineExceeded) {
				return errors.New("no face was held in front of the camera in time")
			}
			return err
		}
		st, ok := e.Data.(countdown.State)
		if !ok {
			continue
		}
		switch st.Phase {
		case countdown.FaceHeld:
			_ = bar.Set(start - st.Remaining)
		case countdown.Idle:
			if bar.State().CurrentNum > 0 {
				// The face left the frame
				bar.Reset()
			}
		case countdown.Done:
			_ = bar.Finish()
			fmt.Println("\nPhoto captured")
			return nil
		}
	}
}
