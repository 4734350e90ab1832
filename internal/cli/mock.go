package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gstredny/flux-image-generator/internal/mockapi"
)

func init() {
	rootCmd.AddCommand(mockCmd)

	mockCmd.Flags().String("addr", "127.0.0.1:8787", "Listen address")
	mockCmd.Flags().Duration("load-delay", 0, "How long the model reports loading after start")
}

var mockCmd = &cobra.Command{
	Use:   "mock",
	Short: "Serve a local stand-in backend",
	Long: `Serve a local HTTP backend that mimics the FLUX API: health and
status probes, single and batch generation, and job polling. Useful for
trying the TUI without a GPU box.`,
	RunE: runMock,
}

func runMock(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	loadDelay, _ := cmd.Flags().GetDuration("load-delay")

	srv := &http.Server{
		Addr:              addr,
		Handler:           mockapi.New(mockapi.Options{LoadDelay: loadDelay}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-cmd.Context().Done()
		_ = srv.Close()
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "mock backend listening on http://%s\n", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
