package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sttts/kcore/pkg/live"
)

var watchCmd = &cobra.Command{
	Use:   "watch KIND",
	Short: "Follow resources live across every selected cluster",
	Long: `Watch keeps one list+watch connection per cluster and prints the merged
state whenever any cluster reports a change. Lost connections are retried with
backoff; clusters that keep failing are reported as unavailable.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatchCmd,
}

var watchArgs getFlags

func init() {
	watchCmd.Flags().StringVarP(&watchArgs.output, "output", "o", "", "Output format: wide, yaml or json.")
	watchCmd.Flags().BoolVarP(&watchArgs.allNamespaces, "all-namespaces", "A", false, "Watch across all namespaces.")
	watchCmd.Flags().StringVarP(&watchArgs.labelSelector, "selector", "l", "", "Label selector.")
	watchCmd.Flags().StringVar(&watchArgs.fieldSelector, "field-selector", "", "Field selector.")
	rootCmd.AddCommand(watchCmd)
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
		desc, ns, err := a.kind(args[0], watchArgs.allNamespaces)
		if err != nil {
			return err
		}
		sub, err := a.fanout.Subscribe(ctx, live.Key{
			Kind:          desc,
			Namespace:     ns,
			LabelSelector: watchArgs.labelSelector,
			FieldSelector: watchArgs.fieldSelector,
		})
		if err != nil {
			return err
		}
		defer sub.Close()

		out := cmd.OutOrStdout()
		showCluster := len(a.clusters.Active()) > 1
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-sub.Updates():
				if !ok {
					return nil
				}
				fmt.Fprintf(out, "%s %s\n", dimStyle.Render(time.Now().Format(time.TimeOnly)), renderHealth(snap.Unavailable, snap.Clusters))
				if err := printObjects(out, desc, snap.Items, watchArgs.output, showCluster); err != nil {
					return err
				}
			}
		}
	})
}
