// Package resources models Kubernetes objects as typed wrappers around their
// server documents.
//
// Every kind shares the Object contract and differs only in its api.Descriptor;
// kinds with extra accessors (Node, Pod, Deployment, NetworkPolicy) are thin
// typed views over an Object. Descriptors are collected in an explicit
// Registry that is built once and passed to whoever needs it.
package resources
