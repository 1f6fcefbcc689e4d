package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	if err := rt.store.Delete(ctx, args[0]); err != nil {
		exitErr("rm", err)
	}
	rt.mustSave(ctx)

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q}`+"\n", args[0])
}
