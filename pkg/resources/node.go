package resources

import (
	corev1 "k8s.io/api/core/v1"
)

// Node is a typed view of a Node object.
type Node struct {
	*Object
	typed corev1.Node
}

// AsNode returns the typed view of o.
func AsNode(o *Object) (*Node, error) {
	n := &Node{Object: o}
	if err := convert(o, NodeKind.Kind, &n.typed); err != nil {
		return nil, err
	}
	return n, nil
}

// ExternalIP returns the first ExternalIP address, or "".
func (n *Node) ExternalIP() string { return n.address(corev1.NodeExternalIP) }

// InternalIP returns the first InternalIP address, or "".
func (n *Node) InternalIP() string { return n.address(corev1.NodeInternalIP) }

func (n *Node) address(t corev1.NodeAddressType) string {
	for _, a := range n.typed.Status.Addresses {
		if a.Type == t {
			return a.Address
		}
	}
	return ""
}

// Conditions returns status.conditions.
func (n *Node) Conditions() []corev1.NodeCondition { return n.typed.Status.Conditions }

// Ready reports whether the Ready condition is True.
func (n *Node) Ready() bool {
	for _, c := range n.typed.Status.Conditions {
		if c.Type == corev1.NodeReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

// Taints returns spec.taints.
func (n *Node) Taints() []corev1.Taint { return n.typed.Spec.Taints }

// Unschedulable reports spec.unschedulable.
func (n *Node) Unschedulable() bool { return n.typed.Spec.Unschedulable }

// KubeletVersion returns status.nodeInfo.kubeletVersion.
func (n *Node) KubeletVersion() string { return n.typed.Status.NodeInfo.KubeletVersion }
