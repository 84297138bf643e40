package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sttts/kcore/pkg/multicluster"
	"github.com/sttts/kcore/pkg/resources"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show node resource usage from the metrics API",
	Args:  cobra.NoArgs,
	RunE:  runTopCmd,
}

func init() {
	rootCmd.AddCommand(topCmd)
}

type clusterUsage struct {
	cluster string
	usage   resources.NodeUsage
}

func runTopCmd(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
		res := multicluster.Do(ctx, a.clusters.Active(), a.cfg.FanOut.Timeout.Duration, a.cfg.FanOut.Concurrency,
			func(ctx context.Context, cluster string) ([]resources.NodeUsage, error) {
				return a.client.NodeMetrics(ctx)
			})
		if err := reportFailures(cmd.ErrOrStderr(), res); err != nil {
			return err
		}
		var all []clusterUsage
		for _, r := range res.Succeeded() {
			for _, u := range r.Value {
				all = append(all, clusterUsage{cluster: r.Cluster, usage: u})
			}
		}
		return printUsage(cmd.OutOrStdout(), all, len(res.Results) > 1)
	})
}

func printUsage(w io.Writer, all []clusterUsage, showCluster bool) error {
	var headers []string
	if showCluster {
		headers = append(headers, "CLUSTER")
	}
	headers = append(headers, "NAME", "CPU(cores)", "MEMORY(bytes)")
	rows := make([][]string, 0, len(all))
	for _, u := range all {
		var row []string
		if showCluster {
			row = append(row, u.cluster)
		}
		row = append(row, u.usage.Name, fmt.Sprintf("%dm", u.usage.CPU.MilliValue()), fmt.Sprintf("%dMi", u.usage.Memory.Value()/(1<<20)))
		rows = append(rows, row)
	}
	_, err := io.WriteString(w, renderTable(headers, rows))
	return err
}
