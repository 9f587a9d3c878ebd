package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the kiosk web server",
	Long: `Start the Attendance Kiosk web server.
The server owns the webcam and exposes camera, scanning and enrollment
controls, live recognition events over SSE and websocket, and the kiosk
display page.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Bool("autostart", false, "Start the camera and scanning on launch")
}

// resolveServeHostPort applies explicit flags over the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Connecting to attendance backend at %s...\n", cfg.Backend.URL)
	k, client, err := newKiosk(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.Admin.Token == "" {
		fmt.Println("Warning: ADMIN_TOKEN is not set, mode switches are disabled")
	}

	if mustGetBool(cmd, "autostart") {
		if _, err := k.Live.StartCamera(); err != nil {
			fmt.Printf("Warning: failed to start camera: %v\n", err)
		} else if _, err := k.Live.StartScanning(); err != nil {
			fmt.Printf("Warning: failed to start scanning: %v\n", err)
		}
	}

	server := web.NewServer(cfg, k, client)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Attendance Kiosk on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
