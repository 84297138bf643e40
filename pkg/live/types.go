// Package live keeps list+watch connections to API servers and shares their
// snapshots between subscribers. There is at most one connection per Key,
// however many subscribers it has.
package live

import (
	"fmt"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/sttts/kcore/pkg/api"
	"github.com/sttts/kcore/pkg/resources"
)

// State is the lifecycle state of a connection.
type State string

const (
	StateIdle         State = "Idle"
	StateConnecting   State = "Connecting"
	StateStreaming    State = "Streaming"
	StateReconnecting State = "Reconnecting"
	StateClosed       State = "Closed"
)

// Health tells subscribers whether a snapshot is current.
type Health string

const (
	// Synced snapshots reflect the server as of ResourceVersion.
	Synced Health = "Synced"
	// Unavailable snapshots carry the last known items after repeated
	// connection failures. The connection keeps retrying.
	Unavailable Health = "Unavailable"
)

// Key identifies one shared connection.
type Key struct {
	Kind          api.Descriptor
	Cluster       string
	Namespace     string
	FieldSelector string
	LabelSelector string
}

func (k Key) String() string {
	s := k.Kind.String()
	if k.Cluster != "" {
		s = k.Cluster + "/" + s
	}
	if k.Namespace != "" {
		s += "/" + k.Namespace
	}
	if k.LabelSelector != "" {
		s += "?l=" + k.LabelSelector
	}
	if k.FieldSelector != "" {
		s += "?f=" + k.FieldSelector
	}
	return s
}

// Validate checks the key before a connection is made.
func (k Key) Validate() error {
	if err := k.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid key %s: %w", k, err)
	}
	if !k.Kind.Namespaced && k.Namespace != "" {
		return field.ErrorList{field.Forbidden(field.NewPath("namespace"), fmt.Sprintf("%s is cluster-scoped", k.Kind.Kind))}.ToAggregate()
	}
	return nil
}

func (k Key) options() []api.Option {
	opts := []api.Option{api.InCluster(k.Cluster)}
	if k.FieldSelector != "" {
		opts = append(opts, api.WithFieldSelector(k.FieldSelector))
	}
	if k.LabelSelector != "" {
		opts = append(opts, api.WithLabelSelector(k.LabelSelector))
	}
	return opts
}

// Snapshot is the complete list for a key at one point in time. Items are
// unique by UID and sorted by namespace and name. Snapshots are shared
// between subscribers and must not be modified.
type Snapshot struct {
	Key             Key
	Items           []*resources.Object
	ResourceVersion string
	Health          Health
	// Err is the last connection error for Unavailable snapshots.
	Err error
}
