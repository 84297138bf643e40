package resources

import (
	corev1 "k8s.io/api/core/v1"
)

// Pod is a typed view of a Pod object.
type Pod struct {
	*Object
	typed corev1.Pod
}

// AsPod returns the typed view of o.
func AsPod(o *Object) (*Pod, error) {
	p := &Pod{Object: o}
	if err := convert(o, PodKind.Kind, &p.typed); err != nil {
		return nil, err
	}
	return p, nil
}

// Phase returns status.phase.
func (p *Pod) Phase() corev1.PodPhase { return p.typed.Status.Phase }

// NodeName returns spec.nodeName.
func (p *Pod) NodeName() string { return p.typed.Spec.NodeName }

// Containers returns the names of spec.containers in order.
func (p *Pod) Containers() []string {
	names := make([]string, 0, len(p.typed.Spec.Containers))
	for _, c := range p.typed.Spec.Containers {
		names = append(names, c.Name)
	}
	return names
}

// Restarts sums the restart counts of all container statuses.
func (p *Pod) Restarts() int32 {
	var n int32
	for _, s := range p.typed.Status.ContainerStatuses {
		n += s.RestartCount
	}
	return n
}

// ReadyContainers returns ready and total container counts, as in "1/2".
func (p *Pod) ReadyContainers() (ready, total int) {
	for _, s := range p.typed.Status.ContainerStatuses {
		if s.Ready {
			ready++
		}
	}
	return ready, len(p.typed.Spec.Containers)
}
