package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Retrieve memories by similarity",
		Long: "Embed the query and return stored memories whose cosine similarity " +
			"reaches the threshold, best first. Every result counts as an access.",
		Args: cobra.MinimumNArgs(1),
		Run:  runSearch,
	}

	cmd.Flags().String("type", "", "Filter by memory type")
	cmd.Flags().IntP("limit", "l", 0, "Max results (default from config)")
	cmd.Flags().Float64("min-similarity", -1, "Similarity threshold (default from config)")
	cmd.Flags().String("since", "", "Only memories created at or after this RFC3339 time")
	cmd.Flags().String("until", "", "Only memories created at or before this RFC3339 time")
	cmd.Flags().Bool("context", false, "Attach tier and access metadata to each result")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	minSim, _ := cmd.Flags().GetFloat64("min-similarity")
	sinceStr, _ := cmd.Flags().GetString("since")
	untilStr, _ := cmd.Flags().GetString("until")
	withContext, _ := cmd.Flags().GetBool("context")

	p := store.RetrieveParams{
		Query:          strings.Join(args, " "),
		Type:           typ,
		Limit:          limit,
		IncludeContext: withContext,
	}
	if minSim >= 0 {
		p.MinSimilarity = &minSim
	}
	var err error
	if p.Since, err = parseTimeFlag(sinceStr); err != nil {
		exitErr("since", err)
	}
	if p.Until, err = parseTimeFlag(untilStr); err != nil {
		exitErr("until", err)
	}

	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	results, err := rt.store.Retrieve(ctx, p)
	if err != nil {
		exitErr("search", err)
	}
	rt.mustSave(ctx)

	out := cmd.OutOrStdout()
	if textMode() {
		for _, r := range results {
			fmt.Fprintf(out, "%.3f\t%s\t%s\n", r.Similarity, r.ID, oneLine(r.Content, 80))
		}
		return
	}
	printJSON(out, results)
}

func parseTimeFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
