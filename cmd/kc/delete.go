package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sttts/kcore/pkg/actions"
)

var deleteCmd = &cobra.Command{
	Use:   "delete KIND NAME",
	Short: "Delete a resource in every selected cluster",
	Args:  cobra.ExactArgs(2),
	RunE:  runDeleteCmd,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDeleteCmd(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
		desc, ns, err := a.kind(args[0], false)
		if err != nil {
			return err
		}
		lookupCtx, cancel := context.WithTimeout(ctx, rootArgs.timeout)
		defer cancel()
		res, err := a.fanout.Get(lookupCtx, desc, ns, args[1])
		if err != nil {
			return err
		}
		if err := reportFailures(cmd.ErrOrStderr(), res); err != nil {
			return err
		}

		l := a.bus.Subscribe()
		defer l.Close()
		var dispatched []*actions.Action
		for _, obj := range res.Values() {
			dispatched = append(dispatched, a.applier.Delete(context.WithoutCancel(ctx), obj, ""))
		}
		return followActions(ctx, cmd.OutOrStdout(), l, dispatched...)
	})
}
