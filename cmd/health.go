package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/webcam"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the backend and the camera",
	Long: `Check that the attendance backend is reachable and its face model is
loaded. With --camera the webcam is also opened and a frame is read.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().Bool("camera", false, "Also check the webcam")
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	client, err := newBackend(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Backend.Timeout)
	defer cancel()

	var healthy bool
	health, err := client.Health(ctx)
	if err != nil {
		fmt.Printf("Backend: unreachable (%v)\n", err)
	} else {
		fmt.Printf("Backend: %s (face model loaded: %t)\n", health.Status, health.ArcFaceLoaded)
		healthy = health.Status == "healthy" && health.ArcFaceLoaded
	}

	if mustGetBool(cmd, "camera") {
		if err := checkCamera(cfg); err != nil {
			fmt.Printf("Camera:  %v\n", describeCameraError(err))
			healthy = false
		} else {
			fmt.Printf("Camera:  ok (device %d)\n", cfg.Camera.Device)
		}
	}

	if !healthy {
		return errors.New("health check failed")
	}
	return nil
}

func checkCamera(cfg *config.Config) error {
	camera := capture.New(webcam.New())
	if _, err := camera.Acquire(capture.Constraints{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	}); err != nil {
		return err
	}
	defer camera.Release()

	if _, ok := camera.GrabFrame(); !ok {
		return fmt.Errorf("camera %d opened but returned no frame", cfg.Camera.Device)
	}
	return nil
}
