package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/tiermem/internal/lifecycle"
)

func init() {
	cmd := &cobra.Command{
		Use:       "maintain <cleanup|compress|stats>...",
		Short:     "Run maintenance tasks once",
		Long:      "Run one or more maintenance passes immediately and save the result.",
		Args:      cobra.MinimumNArgs(1),
		ValidArgs: []string{"cleanup", "compress", "stats"},
		Run:       runMaintain,
	}

	RootCmd.AddCommand(cmd)
}

func runMaintain(cmd *cobra.Command, args []string) {
	var tasks []lifecycle.Task
	for _, a := range args {
		t, err := lifecycle.ParseTask(a)
		if err != nil {
			exitErr("maintain", err)
		}
		tasks = append(tasks, t)
	}

	ctx := cmd.Context()
	rt := mustOpen(ctx)
	defer rt.Close()

	mgr := lifecycle.New(rt.store, rt.gateway, lifecycle.Intervals{},
		lifecycle.WithLogger(rt.logger), lifecycle.WithMetrics(rt.metrics))

	reports := make(map[lifecycle.Task]any, len(tasks))
	for _, t := range tasks {
		rep, err := mgr.RunOnce(ctx, t)
		if err != nil {
			exitErr(string(t), err)
		}
		if rep != nil {
			reports[t] = rep
		}
	}
	rt.mustSave(ctx)

	printJSON(cmd.OutOrStdout(), reports)
}
