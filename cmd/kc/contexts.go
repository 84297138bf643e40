package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sttts/kcore/pkg/appconfig"
	"github.com/sttts/kcore/pkg/kubeconfig"
)

var contextsCmd = &cobra.Command{
	Use:     "contexts",
	Aliases: []string{"ctx"},
	Short:   "List kubeconfig contexts and the ones kc fans out to",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		km, cfg, err := loadContexts()
		if err != nil {
			return err
		}
		return printContexts(cmd.OutOrStdout(), km, cfg.Kubernetes.Clusters.Active)
	},
}

var useContextCmd = &cobra.Command{
	Use:   "use-context NAME",
	Short: "Switch the current kubeconfig context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		km, _, err := loadContexts()
		if err != nil {
			return err
		}
		if err := km.SetCurrentContext(args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Switched to context %q.", args[0])))
		return nil
	},
}

var selectCmd = &cobra.Command{
	Use:   "select [CONTEXT...]",
	Short: "Persist the contexts operations fan out to; no arguments resets to the current context",
	RunE: func(cmd *cobra.Command, args []string) error {
		km, cfg, err := loadContexts()
		if err != nil {
			return err
		}
		for _, name := range args {
			if _, ok := km.Context(name); !ok {
				return fmt.Errorf("unknown context %q", name)
			}
		}
		cfg.Kubernetes.Clusters.Active = args
		if rootArgs.config != "" {
			err = appconfig.SaveFile(rootArgs.config, cfg)
		} else {
			err = appconfig.Save(cfg)
		}
		if err != nil {
			return err
		}
		return printContexts(cmd.OutOrStdout(), km, args)
	},
}

func init() {
	rootCmd.AddCommand(contextsCmd, useContextCmd, selectCmd)
}

func loadContexts() (*kubeconfig.Manager, *appconfig.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	km := kubeconfig.NewManager()
	if rootArgs.kubeconfig != "" {
		err = km.Load(rootArgs.kubeconfig)
	} else {
		err = km.Discover()
	}
	return km, cfg, err
}

func printContexts(w io.Writer, km *kubeconfig.Manager, active []string) error {
	selected := map[string]bool{}
	for _, a := range active {
		selected[a] = true
	}
	rows := [][]string{}
	for _, c := range km.Contexts() {
		current, sel := "", ""
		if c.Name == km.Current() {
			current = "*"
		}
		if selected[c.Name] || (len(active) == 0 && current == "*") {
			sel = checkMark
		}
		rows = append(rows, []string{current, sel, c.Name, c.Cluster, c.Server, c.Namespace})
	}
	_, err := io.WriteString(w, renderTable([]string{"CURRENT", "ACTIVE", "NAME", "CLUSTER", "SERVER", "NAMESPACE"}, rows))
	return err
}
