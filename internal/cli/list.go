package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/model"
	"github.com/rcliao/tiermem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Run:   runList,
	}

	cmd.Flags().String("tier", "", "Filter by tier: short-term, long-term, episodic, semantic, working")
	cmd.Flags().String("type", "", "Filter by memory type")
	cmd.Flags().IntP("limit", "l", 20, "Max results (0 for all)")
	cmd.Flags().Bool("ids-only", false, "Only output ids")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	tierStr, _ := cmd.Flags().GetString("tier")
	typ, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")
	idsOnly, _ := cmd.Flags().GetBool("ids-only")

	var t model.Tier
	if tierStr != "" {
		var err error
		if t, err = model.ParseTier(tierStr); err != nil {
			exitErr("list", err)
		}
	}

	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	memories, err := rt.store.List(ctx, store.ListParams{Tier: t, Type: typ, Limit: limit})
	if err != nil {
		exitErr("list", err)
	}

	out := cmd.OutOrStdout()
	switch {
	case idsOnly:
		for _, m := range memories {
			fmt.Fprintln(out, m.ID)
		}
	case textMode():
		for _, m := range memories {
			md, _ := rt.store.Metadata(m.ID)
			fmt.Fprintf(out, "%s\t%s\t%.2f\t%s\n", m.ID, md.Tier, m.Importance, oneLine(m.Content, 80))
		}
	default:
		printJSON(out, memories)
	}
}
