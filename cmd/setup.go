package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/kiosk"
	"github.com/kozaktomas/attendance-kiosk/internal/webcam"
)

// localOperator admits everything: whoever runs a terminal command is
// already trusted with the kiosk.
type localOperator struct{}

func (localOperator) Admit(string) bool { return true }

// newBackend connects to the configured attendance backend.
func newBackend(cfg *config.Config) (*backend.Client, error) {
	if cfg.Backend.URL == "" {
		return nil, errors.New("BACKEND_URL environment variable is required")
	}
	client, err := backend.New(cfg.Backend.URL, backend.WithTimeout(cfg.Backend.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, nil
}

// newKiosk builds a kiosk on the local webcam. The backend health is
// probed once; an unreachable backend only produces a warning.
func newKiosk(ctx context.Context, cfg *config.Config, opts ...kiosk.Option) (*kiosk.Kiosk, *backend.Client, error) {
	client, err := newBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	checkBackend(ctx, client)
	k := kiosk.New(cfg, webcam.New(), kiosk.ServicesFromBackend(client, cfg), opts...)
	return k, client, nil
}

func checkBackend(ctx context.Context, client *backend.Client) {
	health, err := client.Health(ctx)
	if err != nil {
		fmt.Printf("Warning: attendance backend is not reachable: %v\n", err)
		return
	}
	if health.Status != "healthy" {
		fmt.Printf("Warning: attendance backend reports status %q\n", health.Status)
	}
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
