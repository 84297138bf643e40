package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	authorizationv1 "k8s.io/api/authorization/v1"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/multicluster"
)

var canICmd = &cobra.Command{
	Use:   "can-i VERB KIND [NAME]",
	Short: "Check whether the current user may perform an action",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runCanICmd,
}

func init() {
	rootCmd.AddCommand(canICmd)
}

func runCanICmd(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
		desc, ns, err := a.kind(args[1], false)
		if err != nil {
			return err
		}
		attrs := authorizationv1.ResourceAttributes{
			Namespace: ns,
			Verb:      args[0],
			Group:     desc.Group,
			Version:   desc.Version,
			Resource:  desc.Plural,
		}
		if len(args) == 3 {
			attrs.Name = args[2]
		}
		res := multicluster.Do(ctx, a.clusters.Active(), a.cfg.FanOut.Timeout.Duration, a.cfg.FanOut.Concurrency,
			func(ctx context.Context, cluster string) (bool, error) {
				return a.client.CanI(ctx, attrs, api.InCluster(cluster))
			})
		out := cmd.OutOrStdout()
		for _, r := range res.Results {
			switch {
			case r.Err != nil:
				fmt.Fprintln(out, errorStyle.Render(fmt.Sprintf("%s %s: %v", crossMark, r.Cluster, r.Err)))
			case r.Value:
				fmt.Fprintln(out, okStyle.Render(fmt.Sprintf("%s %s: yes", checkMark, r.Cluster)))
			default:
				fmt.Fprintln(out, warningStyle.Render(fmt.Sprintf("%s %s: no", skipMark, r.Cluster)))
			}
		}
		return res.Err()
	})
}
