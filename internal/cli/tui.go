package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/gstredny/flux-image-generator/internal/generate"
	"github.com/gstredny/flux-image-generator/internal/ui"
)

func init() {
	rootCmd.AddCommand(tuiCmd)
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive terminal UI",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// The TUI gates requests on the monitor so a disconnected backend
	// is rejected before the user waits out a full request timeout.
	gen := generate.New(a.client, a.hist, a.mon)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	a.mon.Start(ctx)
	// Give the first probe a moment so the UI rarely opens in the
	// transient checking state.
	time.Sleep(200 * time.Millisecond)

	return ui.Run(ui.Options{
		Context:   ctx,
		Client:    a.client,
		Generator: gen,
		Monitor:   a.mon,
		History:   a.hist,
		Prefs:     a.prefs,
		PrefsPath: a.cfg.PrefsPath,
	})
}
