package kctesting

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/go-logr/logr"
	klog "k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

var setupOnce sync.Once

// SetupLogging points controller-runtime and klog at a shared zap logger.
// Output is discarded unless DEBUG is set.
func SetupLogging() {
	setupOnce.Do(func() {
		logger := zap.New(zap.WriteTo(io.Discard))
		if os.Getenv("DEBUG") != "" {
			logger = zap.New(zap.UseDevMode(true))
		}
		ctrl.SetLogger(logger)
		klog.SetLogger(ctrl.Log)
	})
}

// Context returns ctx carrying the test logger, named after the test.
func Context(ctx context.Context, name string) context.Context {
	SetupLogging()
	return logr.NewContext(ctx, ctrl.Log.WithName(name))
}
