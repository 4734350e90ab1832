// Package cli wires the fluxgen command tree.
package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/gstredny/flux-image-generator/internal/config"
	"github.com/gstredny/flux-image-generator/internal/flux"
	"github.com/gstredny/flux-image-generator/internal/generate"
	"github.com/gstredny/flux-image-generator/internal/history"
	"github.com/gstredny/flux-image-generator/internal/monitor"
	"github.com/gstredny/flux-image-generator/internal/prefs"
)

var (
	flagConfig   string
	flagEndpoint string
)

var rootCmd = &cobra.Command{
	Use:   "fluxgen",
	Short: "Terminal client for a FLUX image generation backend",
	Long: `fluxgen talks to a FLUX text-to-image backend over HTTP.

Running fluxgen with no subcommand opens the interactive TUI. The
one-shot subcommands (generate, batch, status, history) cover scripted
use, and "fluxgen mock" serves a local stand-in backend for testing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&flagEndpoint, "endpoint", "", "Backend endpoint URL (overrides config)")
}

// Execute runs the command tree.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// app holds the components shared by the commands.
type app struct {
	cfg    config.Config
	prefs  prefs.Prefs
	client *flux.Client
	hist   *history.Store
	gen    *generate.Generator
	mon    *monitor.Monitor
}

// newApp loads config and preferences and wires the client stack. The
// monitor is created but not started; commands that need liveness
// checks start it themselves.
func newApp() (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	if flagEndpoint != "" {
		endpoint = flagEndpoint
	}

	client, err := flux.NewClient(endpoint)
	if err != nil {
		return nil, err
	}

	p, err := prefs.Load(cfg.PrefsPath)
	if err != nil {
		return nil, err
	}

	hist, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return nil, err
	}

	mon := monitor.New(client, 30*time.Second)

	return &app{
		cfg:    cfg,
		prefs:  p,
		client: client,
		hist:   hist,
		// One-shot commands skip the connection gate: a single
		// request failing is a better signal than a stale check.
		gen: generate.New(client, hist, nil),
		mon: mon,
	}, nil
}

func (a *app) Close() {
	if a.hist != nil {
		_ = a.hist.Close()
	}
}
