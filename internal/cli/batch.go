package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gstredny/flux-image-generator/internal/generate"
)

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().String("negative", "", "Negative prompt shared by every job")
	batchCmd.Flags().IntP("steps", "s", 0, "Inference steps (20-50)")
	batchCmd.Flags().Float64P("guidance", "g", 0, "CFG guidance (1.0-10.0)")
	batchCmd.Flags().Int64("seed", -1, "Seed (-1 for random)")
	batchCmd.Flags().Int("width", 0, "Image width (512-2048, multiple of 8)")
	batchCmd.Flags().Int("height", 0, "Image height (512-2048, multiple of 8)")
	batchCmd.Flags().StringP("output-dir", "o", "", "Write decoded images into this directory")
	batchCmd.Flags().Duration("timeout", 0, "Per-job polling budget (default 5m)")
}

var batchCmd = &cobra.Command{
	Use:   "batch PROMPT...",
	Short: "Generate up to 4 images in one batch",
	Long: `Submit up to four prompts as a single batch, then poll each job
until it completes. Shared parameters apply to every prompt.`,
	Args: cobra.RangeArgs(1, generate.MaxBatchSize),
	RunE: runBatch,
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	shared := a.prefs.Params()
	applyParamFlags(cmd, &shared)
	shared.NegativePrompt, _ = cmd.Flags().GetString("negative")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	outputDir, _ := cmd.Flags().GetString("output-dir")

	jobs, err := a.gen.GenerateBatch(cmd.Context(), args, shared)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "submitted %d jobs\n", len(jobs))

	var failed int
	for i, job := range jobs {
		fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s\n", i+1, len(jobs), truncatePrompt(job.Prompt))

		res, err := a.gen.PollJob(cmd.Context(), job.RequestID, generate.PollOptions{
			Timeout: timeout,
			OnProgress: func(pct float64) {
				fmt.Fprintf(cmd.OutOrStdout(), "\r  %3.0f%%", pct)
			},
		})
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "  failed: %v\n", err)
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "  done in %.1fs, seed %d\n", res.Duration, res.Seed)
		if outputDir != "" && len(res.Images) > 0 {
			path := filepath.Join(outputDir, fmt.Sprintf("batch-%s-%d.png", time.Now().Format("20060102-150405"), i+1))
			if err := writeImage(path, res.Images[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  saved %s\n", path)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
	}
	return nil
}

func truncatePrompt(s string) string {
	s = strings.TrimSpace(s)
	// Cut on runes so a multibyte prompt never splits mid-character.
	r := []rune(s)
	if len(r) > 50 {
		return string(r[:49]) + "…"
	}
	return s
}
