package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyListCmd.Flags().IntP("limit", "n", 0, "Show at most this many entries")
	historyShowCmd.Flags().StringP("output", "o", "", "Write the decoded image to this file")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect locally stored generations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored generations, most recent first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	records, err := a.hist.List(limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no generations stored")
		return nil
	}
	for _, r := range records {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), truncatePrompt(r.Prompt))
	}
	return nil
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one stored generation",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.hist.Get(args[0])
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("no generation with id %s", args[0])
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:       %s\n", r.ID)
	fmt.Fprintf(out, "created:  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "prompt:   %s\n", r.Prompt)
	fmt.Fprintf(out, "params:   steps %d, guidance %.1f, %dx%d, seed %d\n",
		r.Steps, r.CFGScale, r.Width, r.Height, r.Seed)
	fmt.Fprintf(out, "duration: %.1fs\n", r.Duration)

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		return nil
	}
	if err := writeImage(output, r.Image); err != nil {
		return err
	}
	fmt.Fprintf(out, "saved:    %s\n", output)
	return nil
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete one stored generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.hist.Delete(args[0])
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all stored generations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.hist.Clear()
	},
}
