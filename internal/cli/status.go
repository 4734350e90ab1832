package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gstredny/flux-image-generator/internal/endpoint"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check backend health and model state",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	raw := a.client.Endpoint()
	fmt.Fprintf(out, "endpoint: %s\n", raw)
	if issue := endpoint.Diagnose(raw); issue != "" {
		fmt.Fprintf(out, "warning:  %s\n", issue)
	}

	health, err := a.client.Health(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "health:   %s\n", health.Status)
	if !health.Healthy() {
		return nil
	}

	status, err := a.client.Status(cmd.Context())
	if err != nil {
		return err
	}
	loaded := "loading"
	if status.ModelLoaded {
		loaded = "loaded"
	}
	fmt.Fprintf(out, "model:    %s\n", loaded)
	if status.Message != "" {
		fmt.Fprintf(out, "message:  %s\n", status.Message)
	}

	models, err := a.client.Models(cmd.Context())
	if err != nil {
		// Older backends have no /models route.
		return nil
	}
	for _, m := range models {
		name := m.Name
		if name == "" {
			name = m.ID
		}
		fmt.Fprintf(out, "model id: %s\n", name)
	}
	return nil
}
