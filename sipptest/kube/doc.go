// Package kube answers the read-mostly cluster questions
// the toolkit asks (namespaces, pods, services, node
// addresses) and forwards the Kamailio service to
// localhost. Two backends implement Cluster: Kubectl
// shells out to kubectl, API talks to the API server
// through client-go.
package kube
