package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	klog "k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:           "kc",
	Short:         "Multi-cluster Kubernetes client",
	Version:       version + " (" + commit + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := zap.New(zap.UseFlagOptions(&zapOpts), zap.WriteTo(cmd.ErrOrStderr()))
		ctrl.SetLogger(logger)
		klog.SetLogger(logger)
		cmd.SetContext(logr.NewContext(cmd.Context(), logger))
	},
}

type rootFlags struct {
	contexts   []string
	namespace  string
	kubeconfig string
	config     string
	timeout    time.Duration
}

var (
	rootArgs = rootFlags{namespace: "default", timeout: time.Minute}
	zapOpts  = zap.Options{}
)

func init() {
	rootCmd.PersistentFlags().StringArrayVar(&rootArgs.contexts, "context", nil,
		"Kubeconfig context to operate on. Repeat to fan out to several clusters.")
	rootCmd.PersistentFlags().StringVarP(&rootArgs.namespace, "namespace", "n", rootArgs.namespace,
		"Namespace scope for namespaced kinds.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.kubeconfig, "kubeconfig", "",
		"Path to a kubeconfig file. Defaults to $KUBECONFIG or every file in ~/.kube.")
	rootCmd.PersistentFlags().StringVar(&rootArgs.config, "config", "",
		"Path to the kc config file. Defaults to ~/.kc/config.yaml.")
	rootCmd.PersistentFlags().DurationVar(&rootArgs.timeout, "timeout", rootArgs.timeout,
		"Timeout for one-shot operations.")

	fs := flag.NewFlagSet("zap", flag.ContinueOnError)
	zapOpts.BindFlags(fs)
	rootCmd.PersistentFlags().AddGoFlagSet(fs)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		rootCmd.PrintErrln(errorStyle.Render("Error: " + err.Error()))
		os.Exit(1)
	}
}
