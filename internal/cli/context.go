package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [description]",
		Short: "Assemble relevant memories for a task",
		Long:  "Retrieve and score memories, then greedily pack them into a token budget.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runContext,
	}

	cmd.Flags().String("type", "", "Filter by memory type")
	cmd.Flags().IntP("budget", "b", 4000, "Max tokens in output")
	cmd.Flags().Float64("min-similarity", -1, "Similarity threshold (default from config)")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	budget, _ := cmd.Flags().GetInt("budget")
	minSim, _ := cmd.Flags().GetFloat64("min-similarity")

	p := store.ContextParams{
		Query:  strings.Join(args, " "),
		Type:   typ,
		Budget: budget,
	}
	if minSim >= 0 {
		p.MinSimilarity = &minSim
	}

	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	result, err := rt.store.Context(ctx, p)
	if err != nil {
		exitErr("context", err)
	}
	rt.mustSave(ctx)

	printJSON(cmd.OutOrStdout(), result)
}
