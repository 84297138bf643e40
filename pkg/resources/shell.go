package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/apimachinery/pkg/util/wait"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/transport"
)

const (
	DefaultShellImage     = "docker.io/library/alpine:latest"
	DefaultShellNamespace = "kube-system"

	shellContainer = "shell"
	shellCommand   = "((clear && bash) || (clear && zsh) || (clear && ash) || (clear && sh))"

	// remote command stream channels
	stdinChannel  = 0
	stdoutChannel = 1
	stderrChannel = 2
	errorChannel  = 3
	resizeChannel = 4
)

// ExecSubProtocols are the accepted remote command protocols, newest first.
var ExecSubProtocols = []string{"v4.channel.k8s.io", "v3.channel.k8s.io", "v2.channel.k8s.io", "channel.k8s.io"}

// ShellOptions configures a node shell.
type ShellOptions struct {
	Image     string
	Namespace string
	// ReadyTimeout bounds the wait for the helper pod to run. Zero skips waiting.
	ReadyTimeout time.Duration
	PollInterval time.Duration
	// CleanupTimeout bounds the helper pod deletion.
	CleanupTimeout time.Duration
}

func (o ShellOptions) withDefaults() ShellOptions {
	if o.Image == "" {
		o.Image = DefaultShellImage
	}
	if o.Namespace == "" {
		o.Namespace = DefaultShellNamespace
	}
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = 30 * time.Second
	}
	return o
}

// ShellPod returns the privileged helper pod that enters the host namespaces
// of node.
func ShellPod(node, name string, opts ShellOptions) *corev1.Pod {
	opts = opts.withDefaults()
	grace := int64(0)
	privileged := true
	return &corev1.Pod{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Pod"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: opts.Namespace,
			Labels:    map[string]string{"app.kubernetes.io/name": "node-shell"},
		},
		Spec: corev1.PodSpec{
			NodeName:                      node,
			RestartPolicy:                 corev1.RestartPolicyNever,
			TerminationGracePeriodSeconds: &grace,
			HostPID:                       true,
			HostIPC:                       true,
			HostNetwork:                   true,
			Tolerations:                   []corev1.Toleration{{Operator: corev1.TolerationOpExists}},
			PriorityClassName:             "system-node-critical",
			Containers: []corev1.Container{{
				Name:            shellContainer,
				Image:           opts.Image,
				Stdin:           true,
				StdinOnce:       true,
				TTY:             true,
				SecurityContext: &corev1.SecurityContext{Privileged: &privileged},
				Command:         []string{"nsenter"},
				Args:            []string{"-t", "1", "-m", "-u", "-i", "-n", "sleep", "14000"},
			}},
		},
	}
}

// ExecPath returns the exec URL that starts an interactive shell in the
// helper pod.
func ExecPath(namespace, pod string) string {
	q := url.Values{}
	q.Set("container", shellContainer)
	q["command"] = []string{"sh", "-c", shellCommand}
	q.Set("stdin", "1")
	q.Set("stdout", "1")
	q.Set("stderr", "1")
	q.Set("tty", "1")
	return fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/exec?%s", url.PathEscape(namespace), url.PathEscape(pod), q.Encode())
}

// Shell starts a helper pod on the node and attaches an interactive shell.
// The pod is deleted when the session ends, however it ends.
func (n *Node) Shell(ctx context.Context, opts ShellOptions) (*ShellSession, error) {
	if n.client == nil {
		return nil, fmt.Errorf("node %s is not bound to a client", n.Name())
	}
	opts = opts.withDefaults()
	name := fmt.Sprintf("node-shell-%s-%s", n.Name(), rand.String(5))
	logger := crlog.FromContext(ctx).WithValues("node", n.Name(), "pod", name)

	content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(ShellPod(n.Name(), name, opts))
	if err != nil {
		return nil, err
	}
	pods := n.client.Endpoint(PodKind)
	clusterOpt := n.clusterOption()
	if _, err := pods.Post(ctx, &unstructured.Unstructured{Object: content}, clusterOpt...); err != nil {
		return nil, err
	}
	logger.V(1).Info("created node shell pod")

	s := &ShellSession{
		pod:       name,
		namespace: opts.Namespace,
		output:    make(chan []byte),
		closed:    make(chan struct{}),
		logger:    logger,
	}
	s.remove = func() error {
		delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.CleanupTimeout)
		defer cancel()
		return pods.DeleteAt(delCtx, opts.Namespace, name, clusterOpt...)
	}

	if opts.ReadyTimeout > 0 {
		if err := waitRunning(ctx, pods, opts, name, clusterOpt); err != nil {
			_ = s.cleanup()
			return nil, err
		}
	}

	cluster := api.ResolveCluster(ctx, n.client.defaultCluster, clusterOpt...)
	stream, err := n.client.transport.OpenStream(ctx, cluster, ExecPath(opts.Namespace, name), transport.StreamOptions{SubProtocols: ExecSubProtocols})
	if err != nil {
		_ = s.cleanup()
		return nil, fmt.Errorf("attach node shell %s: %w", name, err)
	}
	s.stream = stream
	go s.pump()
	return s, nil
}

func waitRunning(ctx context.Context, pods *api.Endpoint, opts ShellOptions, name string, clusterOpt []api.Option) error {
	err := wait.PollUntilContextTimeout(ctx, opts.PollInterval, opts.ReadyTimeout, true, func(ctx context.Context) (bool, error) {
		u, err := pods.GetAt(ctx, opts.Namespace, name, clusterOpt...)
		if err != nil {
			return false, nil
		}
		phase, _, _ := unstructured.NestedString(u.Object, "status", "phase")
		switch corev1.PodPhase(phase) {
		case corev1.PodRunning:
			return true, nil
		case corev1.PodFailed, corev1.PodSucceeded:
			return false, fmt.Errorf("node shell pod %s is %s", name, phase)
		}
		return false, nil
	})
	if err != nil {
		return fmt.Errorf("wait for node shell pod %s: %w", name, err)
	}
	return nil
}

// ShellSession is an attached node shell.
type ShellSession struct {
	pod       string
	namespace string
	stream    transport.Stream
	output    chan []byte
	logger    logr.Logger

	closeOnce sync.Once
	closed    chan struct{}

	removeOnce sync.Once
	remove     func() error
	removeErr  error

	mu      sync.Mutex
	execErr error
}

// Pod returns the helper pod name.
func (s *ShellSession) Pod() string { return s.pod }

// Output delivers stdout and stderr data. It is closed when the session ends.
func (s *ShellSession) Output() <-chan []byte { return s.output }

// Done is closed when the underlying stream ends.
func (s *ShellSession) Done() <-chan struct{} { return s.stream.Done() }

// Err returns the stream error or the remote command failure, if any.
func (s *ShellSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.execErr != nil {
		return s.execErr
	}
	return s.stream.Err()
}

// Stdin sends data to the shell.
func (s *ShellSession) Stdin(data []byte) error {
	return s.stream.Send(append([]byte{stdinChannel}, data...))
}

// Resize changes the terminal size.
func (s *ShellSession) Resize(width, height uint16) error {
	data, err := json.Marshal(struct {
		Width  uint16
		Height uint16
	}{width, height})
	if err != nil {
		return err
	}
	return s.stream.Send(append([]byte{resizeChannel}, data...))
}

// Close ends the session and deletes the helper pod. It is safe to call more
// than once and concurrently with a remote close.
func (s *ShellSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	s.stream.Cancel()
	return s.cleanup()
}

func (s *ShellSession) pump() {
	defer func() {
		close(s.output)
		_ = s.cleanup()
	}()
	for frame := range s.stream.ResultChan() {
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case stdoutChannel, stderrChannel:
			select {
			case s.output <- frame[1:]:
			case <-s.closed:
			}
		case errorChannel:
			s.recordExecError(frame[1:])
		}
	}
}

func (s *ShellSession) recordExecError(data []byte) {
	var status metav1.Status
	if err := json.Unmarshal(data, &status); err != nil || status.Status == metav1.StatusSuccess {
		return
	}
	s.mu.Lock()
	s.execErr = fmt.Errorf("node shell: %s", status.Message)
	s.mu.Unlock()
}

func (s *ShellSession) cleanup() error {
	s.removeOnce.Do(func() {
		s.removeErr = s.remove()
		if s.removeErr != nil {
			s.logger.Error(s.removeErr, "failed to delete node shell pod")
		}
	})
	return s.removeErr
}
