package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/multicluster"
	"github.com/sttts/kcore/pkg/resources"
)

var getCmd = &cobra.Command{
	Use:   "get KIND [NAME]",
	Short: "List or fetch resources in every selected cluster",
	Example: `  # List pods in the default namespace of the current context
  kc get pods

  # List nodes in two clusters
  kc get nodes --context prod --context staging -o wide`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGetCmd,
}

type getFlags struct {
	output        string
	allNamespaces bool
	labelSelector string
	fieldSelector string
}

var getArgs getFlags

func init() {
	getCmd.Flags().StringVarP(&getArgs.output, "output", "o", "", "Output format: wide, yaml or json.")
	getCmd.Flags().BoolVarP(&getArgs.allNamespaces, "all-namespaces", "A", false, "List across all namespaces.")
	getCmd.Flags().StringVarP(&getArgs.labelSelector, "selector", "l", "", "Label selector.")
	getCmd.Flags().StringVar(&getArgs.fieldSelector, "field-selector", "", "Field selector.")
	rootCmd.AddCommand(getCmd)
}

func runGetCmd(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), true, func(ctx context.Context, a *app) error {
		desc, ns, err := a.kind(args[0], getArgs.allNamespaces)
		if err != nil {
			return err
		}
		showCluster := len(a.clusters.Active()) > 1

		var objs []*resources.Object
		if len(args) == 2 {
			if desc.Namespaced && ns == "" {
				return fmt.Errorf("a namespace is required to get %s %s", desc.Kind, args[1])
			}
			res, err := a.fanout.Get(ctx, desc, ns, args[1])
			if err != nil {
				return err
			}
			if err := reportFailures(cmd.ErrOrStderr(), res); err != nil {
				return err
			}
			objs = res.Values()
		} else {
			var opts []api.Option
			if getArgs.labelSelector != "" {
				opts = append(opts, api.WithLabelSelector(getArgs.labelSelector))
			}
			if getArgs.fieldSelector != "" {
				opts = append(opts, api.WithFieldSelector(getArgs.fieldSelector))
			}
			res, err := a.fanout.List(ctx, desc, ns, opts...)
			if err != nil {
				return err
			}
			if err := reportFailures(cmd.ErrOrStderr(), res); err != nil {
				return err
			}
			objs = multicluster.Concat(res)
		}
		return printObjects(cmd.OutOrStdout(), desc, objs, getArgs.output, showCluster)
	})
}
