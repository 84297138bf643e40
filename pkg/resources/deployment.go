package resources

import (
	appsv1 "k8s.io/api/apps/v1"
)

// Deployment is a typed view of a Deployment object.
type Deployment struct {
	*Object
	typed appsv1.Deployment
}

// AsDeployment returns the typed view of o.
func AsDeployment(o *Object) (*Deployment, error) {
	d := &Deployment{Object: o}
	if err := convert(o, DeploymentKind.Kind, &d.typed); err != nil {
		return nil, err
	}
	return d, nil
}

// Replicas returns spec.replicas, defaulting to 1 like the server does.
func (d *Deployment) Replicas() int32 {
	if d.typed.Spec.Replicas == nil {
		return 1
	}
	return *d.typed.Spec.Replicas
}

// ReadyReplicas returns status.readyReplicas.
func (d *Deployment) ReadyReplicas() int32 { return d.typed.Status.ReadyReplicas }

// UpdatedReplicas returns status.updatedReplicas.
func (d *Deployment) UpdatedReplicas() int32 { return d.typed.Status.UpdatedReplicas }
