package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change a memory",
		Long:  "Change content, type, importance, tags or source. New content is re-embedded and the memory is re-filed.",
		Args:  cobra.ExactArgs(1),
		Run:   runUpdate,
	}

	cmd.Flags().String("content", "", "New content")
	cmd.Flags().String("type", "", "New type")
	cmd.Flags().Float64P("importance", "i", 0, "New importance in [0,1]")
	cmd.Flags().StringP("tags", "t", "", "Replace tags (comma-separated, empty clears)")
	cmd.Flags().StringP("source", "s", "", "New source")

	RootCmd.AddCommand(cmd)
}

func runUpdate(cmd *cobra.Command, args []string) {
	var p store.UpdateParams
	flags := cmd.Flags()
	if flags.Changed("content") {
		s, _ := flags.GetString("content")
		p.Content = &s
	}
	if flags.Changed("type") {
		s, _ := flags.GetString("type")
		p.Type = &s
	}
	if flags.Changed("importance") {
		f, _ := flags.GetFloat64("importance")
		p.Importance = &f
	}
	if flags.Changed("tags") {
		s, _ := flags.GetString("tags")
		p.Tags = splitTags(s)
		if p.Tags == nil {
			p.Tags = []string{}
		}
	}
	if flags.Changed("source") {
		s, _ := flags.GetString("source")
		p.Source = &s
	}
	if p.Content == nil && p.Type == nil && p.Importance == nil && p.Tags == nil && p.Source == nil {
		exitErr("update", fmt.Errorf("nothing to change"))
	}

	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	mem, err := rt.store.Update(ctx, args[0], p)
	if err != nil {
		exitErr("update", err)
	}
	rt.mustSave(ctx)

	printJSON(cmd.OutOrStdout(), mem)
}
