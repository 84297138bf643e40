package resources

import (
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// NetworkPolicy is a typed view of a NetworkPolicy object.
type NetworkPolicy struct {
	*Object
	typed networkingv1.NetworkPolicy
}

// AsNetworkPolicy returns the typed view of o.
func AsNetworkPolicy(o *Object) (*NetworkPolicy, error) {
	np := &NetworkPolicy{Object: o}
	if err := convert(o, NetworkPolicyKind.Kind, &np.typed); err != nil {
		return nil, err
	}
	return np, nil
}

// PodSelector returns spec.podSelector.
func (np *NetworkPolicy) PodSelector() metav1.LabelSelector { return np.typed.Spec.PodSelector }

// PolicyTypes returns spec.policyTypes. When unset, Ingress is implied and
// Egress is added if egress rules exist.
func (np *NetworkPolicy) PolicyTypes() []networkingv1.PolicyType {
	if len(np.typed.Spec.PolicyTypes) > 0 {
		return np.typed.Spec.PolicyTypes
	}
	types := []networkingv1.PolicyType{networkingv1.PolicyTypeIngress}
	if len(np.typed.Spec.Egress) > 0 {
		types = append(types, networkingv1.PolicyTypeEgress)
	}
	return types
}

// Ingress returns spec.ingress.
func (np *NetworkPolicy) Ingress() []networkingv1.NetworkPolicyIngressRule {
	return np.typed.Spec.Ingress
}

// Egress returns spec.egress.
func (np *NetworkPolicy) Egress() []networkingv1.NetworkPolicyEgressRule {
	return np.typed.Spec.Egress
}
