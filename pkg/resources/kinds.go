package resources

import "github.com/sttts/kcore/pkg/api"

var (
	PodKind                   = api.Descriptor{Kind: "Pod", Version: "v1", Plural: "pods", Namespaced: true, DetailsRoute: "pod"}
	NodeKind                  = api.Descriptor{Kind: "Node", Version: "v1", Plural: "nodes", DetailsRoute: "node"}
	NamespaceKind             = api.Descriptor{Kind: "Namespace", Version: "v1", Plural: "namespaces", DetailsRoute: "namespace"}
	ServiceKind               = api.Descriptor{Kind: "Service", Version: "v1", Plural: "services", Namespaced: true, DetailsRoute: "service"}
	ConfigMapKind             = api.Descriptor{Kind: "ConfigMap", Version: "v1", Plural: "configmaps", Namespaced: true, DetailsRoute: "configmap"}
	SecretKind                = api.Descriptor{Kind: "Secret", Version: "v1", Plural: "secrets", Namespaced: true, DetailsRoute: "secret"}
	EventKind                 = api.Descriptor{Kind: "Event", Version: "v1", Plural: "events", Namespaced: true, DetailsRoute: "event"}
	PersistentVolumeKind      = api.Descriptor{Kind: "PersistentVolume", Version: "v1", Plural: "persistentvolumes", DetailsRoute: "persistentvolume"}
	PersistentVolumeClaimKind = api.Descriptor{Kind: "PersistentVolumeClaim", Version: "v1", Plural: "persistentvolumeclaims", Namespaced: true, DetailsRoute: "persistentvolumeclaim"}
	DeploymentKind            = api.Descriptor{Kind: "Deployment", Group: "apps", Version: "v1", Plural: "deployments", Namespaced: true, DetailsRoute: "deployment"}
	ReplicaSetKind            = api.Descriptor{Kind: "ReplicaSet", Group: "apps", Version: "v1", Plural: "replicasets", Namespaced: true, DetailsRoute: "replicaset"}
	StatefulSetKind           = api.Descriptor{Kind: "StatefulSet", Group: "apps", Version: "v1", Plural: "statefulsets", Namespaced: true, DetailsRoute: "statefulset"}
	DaemonSetKind             = api.Descriptor{Kind: "DaemonSet", Group: "apps", Version: "v1", Plural: "daemonsets", Namespaced: true, DetailsRoute: "daemonset"}
	JobKind                   = api.Descriptor{Kind: "Job", Group: "batch", Version: "v1", Plural: "jobs", Namespaced: true, DetailsRoute: "job"}
	CronJobKind               = api.Descriptor{Kind: "CronJob", Group: "batch", Version: "v1", Plural: "cronjobs", Namespaced: true, DetailsRoute: "cronjob"}
	NetworkPolicyKind         = api.Descriptor{Kind: "NetworkPolicy", Group: "networking.k8s.io", Version: "v1", Plural: "networkpolicies", Namespaced: true, DetailsRoute: "networkpolicy"}
	IngressKind               = api.Descriptor{Kind: "Ingress", Group: "networking.k8s.io", Version: "v1", Plural: "ingresses", Namespaced: true, DetailsRoute: "ingress"}
)

// BuiltinKinds returns the descriptors known out of the box.
func BuiltinKinds() []api.Descriptor {
	return []api.Descriptor{
		PodKind, NodeKind, NamespaceKind, ServiceKind, ConfigMapKind, SecretKind, EventKind,
		PersistentVolumeKind, PersistentVolumeClaimKind,
		DeploymentKind, ReplicaSetKind, StatefulSetKind, DaemonSetKind,
		JobKind, CronJobKind,
		NetworkPolicyKind, IngressKind,
	}
}
