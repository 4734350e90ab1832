package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gstredny/flux-image-generator/internal/generate"
)

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().IntP("steps", "s", 0, "Inference steps (20-50)")
	generateCmd.Flags().Float64P("guidance", "g", 0, "CFG guidance (1.0-10.0)")
	generateCmd.Flags().Int64("seed", -1, "Seed (-1 for random)")
	generateCmd.Flags().Int("width", 0, "Image width (512-2048, multiple of 8)")
	generateCmd.Flags().Int("height", 0, "Image height (512-2048, multiple of 8)")
	generateCmd.Flags().StringP("output", "o", "", "Write the decoded image to this file")
}

var generateCmd = &cobra.Command{
	Use:   "generate PROMPT",
	Short: "Generate a single image",
	Long: `Generate one image from a text prompt and record it in history.
Parameters not given on the command line come from preferences, then
from the built-in defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	params := a.prefs.Params()
	params.Prompt = args[0]
	applyParamFlags(cmd, &params)

	res, err := a.gen.GenerateImage(cmd.Context(), params)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "id:       %s\n", res.ID)
	fmt.Fprintf(cmd.OutOrStdout(), "seed:     %d\n", res.Params.Seed)
	fmt.Fprintf(cmd.OutOrStdout(), "duration: %.1fs\n", res.Duration)

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return nil
	}
	if err := writeImage(output, res.Image); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved:    %s\n", output)
	return nil
}

// applyParamFlags overlays explicitly-set flags onto params.
func applyParamFlags(cmd *cobra.Command, params *generate.Params) {
	if cmd.Flags().Changed("steps") {
		params.Steps, _ = cmd.Flags().GetInt("steps")
	}
	if cmd.Flags().Changed("guidance") {
		params.CFGScale, _ = cmd.Flags().GetFloat64("guidance")
	}
	if cmd.Flags().Changed("seed") {
		params.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if cmd.Flags().Changed("width") {
		params.Width, _ = cmd.Flags().GetInt("width")
	}
	if cmd.Flags().Changed("height") {
		params.Height, _ = cmd.Flags().GetInt("height")
	}
}

// writeImage decodes a base64 image payload (with or without a data-URI
// prefix) and writes it to path.
func writeImage(path, payload string) error {
	if i := strings.Index(payload, ","); i >= 0 && strings.HasPrefix(payload, "data:") {
		payload = payload[i+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
