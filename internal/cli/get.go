package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a memory and its metadata",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	mem, err := rt.store.Get(ctx, args[0])
	if err != nil {
		exitErr("get", err)
	}
	md, err := rt.store.Metadata(args[0])
	if err != nil {
		exitErr("get", err)
	}

	printJSON(cmd.OutOrStdout(), struct {
		*model.Memory
		Metadata model.Metadata `json:"metadata"`
	}{mem, md})
}
