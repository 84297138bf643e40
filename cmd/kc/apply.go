package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/sttts/kcore/pkg/actions"
	"github.com/sttts/kcore/pkg/resources"
)

var applyCmd = &cobra.Command{
	Use:   "apply -f FILE",
	Short: "Create or replace resources from YAML or JSON manifests",
	Long: `Apply validates every document before contacting a cluster, then
dispatches one action per invocation. The action waits for the configured
grace period and can be cancelled with Ctrl-C until it starts.`,
	Example: `  # Apply a manifest to the current context
  kc apply -f deploy.yaml

  # Apply from stdin to two clusters
  cat deploy.yaml | kc apply -f - --context a --context b`,
	Args: cobra.NoArgs,
	RunE: runApplyCmd,
}

type applyFlags struct {
	files []string
}

var applyArgs applyFlags

func init() {
	applyCmd.Flags().StringArrayVarP(&applyArgs.files, "filename", "f", nil, "Manifest file, or - for stdin. Repeatable.")
	_ = applyCmd.MarkFlagRequired("filename")
	rootCmd.AddCommand(applyCmd)
}

func runApplyCmd(cmd *cobra.Command, args []string) error {
	docs, err := readManifests(cmd.InOrStdin(), applyArgs.files)
	if err != nil {
		return err
	}
	if err := resources.Validate(resources.Flatten(docs)); err != nil {
		return err
	}
	return withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
		l := a.bus.Subscribe()
		defer l.Close()
		action, err := a.applier.ApplyTo(context.WithoutCancel(ctx), docs, a.clusters.Active(), "")
		if err != nil {
			return err
		}
		return followActions(ctx, cmd.OutOrStdout(), l, action)
	})
}

func readManifests(stdin io.Reader, files []string) ([]*unstructured.Unstructured, error) {
	var docs []*unstructured.Unstructured
	for _, f := range files {
		var r io.Reader = stdin
		if f != "-" {
			fh, err := os.Open(f)
			if err != nil {
				return nil, err
			}
			defer fh.Close()
			r = fh
		}
		d, err := resources.DecodeManifests(r)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		docs = append(docs, d...)
	}
	return docs, nil
}

// followActions prints status lines until every action reached a terminal
// state. Interrupting ctx cancels actions that have not started yet.
func followActions(ctx context.Context, w io.Writer, l *actions.Listener, as ...*actions.Action) error {
	open := map[string]*actions.Action{}
	for _, a := range as {
		open[a.ID()] = a
	}
	var errs []error
	interrupted := ctx.Done()
	for len(open) > 0 {
		select {
		case <-interrupted:
			interrupted = nil
			for _, a := range open {
				if !a.Cancel() {
					fmt.Fprintln(w, warningStyle.Render("already running, waiting for it to finish"))
				}
			}
		case ev, ok := <-l.Events():
			if !ok {
				return utilerrors.NewAggregate(errs)
			}
			if _, ok := open[ev.ID]; !ok {
				continue
			}
			fmt.Fprintln(w, renderEvent(ev))
			if ev.State.Terminal() {
				delete(open, ev.ID)
				if ev.Err != nil {
					errs = append(errs, ev.Err)
				}
			}
		}
	}
	return utilerrors.NewAggregate(errs)
}
