package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/broadcast"
	"github.com/kozaktomas/attendance-kiosk/internal/capture"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/spf13/cobra"
)

// maxWarmupAttempts bounds how long --once waits for the first frame.
const maxWarmupAttempts = 10

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Recognize faces from the webcam in the terminal",
	Long: `Open the webcam and submit a frame to the recognition backend on every
scan interval, printing each outcome. Runs until interrupted.

Examples:
  # Check people in every 2 seconds
  attendance-kiosk scan

  # Check people out, scanning every second
  attendance-kiosk scan --mode check_out --interval 1s

  # Recognize a single frame and exit
  attendance-kiosk scan --once`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().String("mode", "check_in", "Recognition mode (check_in or check_out)")
	scanCmd.Flags().Duration("interval", 0, "Scan interval (defaults to SCAN_INTERVAL)")
	scanCmd.Flags().Bool("once", false, "Recognize a single frame and exit")
	scanCmd.Flags().Bool("json", false, "Output outcomes as JSON lines")
}

func runScan(cmd *cobra.Command, args []string) error {
	mode, err := recognition.ParseMode(mustGetString(cmd, "mode"))
	if err != nil {
		return err
	}
	jsonOutput := mustGetBool(cmd, "json")

	cfg := config.Load()
	if interval := mustGetDuration(cmd, "interval"); interval > 0 {
		cfg.Scan.Interval = interval
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	k, _, err := newKiosk(ctx, cfg, kiosk.WithGate(localOperator{}))
	if err != nil {
		return err
	}
	defer k.Close()

	if err := k.Live.SetMode("", mode); err != nil {
		return err
	}
	if _, err := k.Live.StartCamera(); err != nil {
		return describeCameraError(err)
	}

	if mustGetBool(cmd, "once") {
		outcome, err := captureOnce(ctx, k, cfg.Scan.FrameRetry)
		if err != nil {
			return err
		}
		return printOutcome(outcome, jsonOutput)
	}

	sub := k.Events.Subscribe(broadcast.TopicResult, broadcast.TopicStatus)
	defer sub.Close()

	if _, err := k.Live.StartScanning(); err != nil {
		return err
	}
	if !jsonOutput {
		fmt.Printf("Scanning in %s mode every %s. Press Ctrl+C to stop.\n", mode.Label(), cfg.Scan.Interval)
	}

	for {
		e, err := sub.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				if !jsonOutput {
					fmt.Println("\nStopping scan...")
				}
				return nil
			}
			return err
		}
		switch data := e.Data.(type) {
		case recognition.Outcome:
			if err := printOutcome(data, jsonOutput); err != nil {
				return err
			}
		case capture.Status:
			if data == capture.StatusError {
				return errors.New("camera stopped with an error")
			}
		}
	}
}

// captureOnce recognizes a single frame, waiting for the camera to warm up.
func captureOnce(ctx context.Context, k *kiosk.Kiosk, retry time.Duration) (recognition.Outcome, error) {
	for attempt := 0; ; attempt++ {
		outcome, err := k.Live.ManualCapture(ctx)
		if !errors.Is(err, kiosk.ErrNoFrame) || attempt >= maxWarmupAttempts {
			return outcome, err
		}
		select {
		case <-ctx.Done():
			return outcome, ctx.Err()
		case <-time.After(retry):
		}
	}
}

func printOutcome(o recognition.Outcome, jsonOutput bool) error {
	if jsonOutput {
		return outputJSON(o)
	}
	fmt.Printf("[%s] %s\n", o.At.Format("15:04:05"), o.Summary())
	return nil
}

// describeCameraError turns device errors into operator guidance.
func describeCameraError(err error) error {
	var devErr *capture.DeviceError
	if errors.As(err, &devErr) {
		return fmt.Errorf("%s: %w", devErr.Message(), err)
	}
	return err
}
