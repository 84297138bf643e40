package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/resources"
)

var nodeShellCmd = &cobra.Command{
	Use:   "node-shell NODE",
	Short: "Open a root shell on a node through a privileged helper pod",
	Long: `node-shell schedules a privileged pod on the node, enters the host
namespaces and attaches stdin and stdout. The pod is removed when the shell
exits or kc is interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runNodeShellCmd,
}

func init() {
	rootCmd.AddCommand(nodeShellCmd)
}

func runNodeShellCmd(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), false, func(ctx context.Context, a *app) error {
		active := a.clusters.Active()
		if len(active) != 1 {
			return fmt.Errorf("node-shell needs exactly one context, got %d", len(active))
		}
		obj, err := a.client.Nodes().Get(ctx, "", args[0], api.InCluster(active[0]))
		if err != nil {
			return err
		}
		node, err := resources.AsNode(obj)
		if err != nil {
			return err
		}
		session, err := node.Shell(ctx, a.shellOptions())
		if err != nil {
			return err
		}
		defer session.Close()
		return attach(ctx, session, cmd.InOrStdin(), cmd.OutOrStdout())
	})
}

// attach copies in to the session and the session output to out until the
// remote shell exits, in is exhausted or ctx ends.
func attach(ctx context.Context, s *resources.ShellSession, in io.Reader, out io.Writer) error {
	inputDone := make(chan error, 1)
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				if err := s.Stdin(buf[:n]); err != nil {
					inputDone <- err
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				inputDone <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-inputDone:
			if err != nil {
				return err
			}
			inputDone = nil
		case data, ok := <-s.Output():
			if !ok {
				return s.Err()
			}
			if _, err := out.Write(data); err != nil {
				return err
			}
		}
	}
}
