package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export memories as JSON",
		Long:  "Export memories as a JSON array in creation order. Filter by type with --type.",
		Run:   runExport,
	}

	cmd.Flags().String("type", "", "Filter by memory type")

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	typ, _ := cmd.Flags().GetString("type")

	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	records, err := rt.store.ExportAll(ctx, typ)
	if err != nil {
		exitErr("export", err)
	}

	printJSON(cmd.OutOrStdout(), records)
}
